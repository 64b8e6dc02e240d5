package web

import (
	"encoding/json"
	"net/http"
	"strings"
)

// errorResponse is the JSON error shape for API clients.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Expired bool   `json:"expired,omitempty"`
}

// isAPIRequest decides whether a denial is answered with JSON or a rendered
// page: path under /api/, or an Accept header that asks for JSON.
func isAPIRequest(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeJSON writes a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes the standard API error shape.
func (s *Server) writeJSONError(w http.ResponseWriter, status int, errorCode, message string) {
	s.writeJSON(w, status, errorResponse{Error: errorCode, Message: message})
}

// renderError writes an error either as JSON or as the rendered error page,
// depending on the caller's content negotiation.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, errorCode, message string) {
	if isAPIRequest(r) {
		s.writeJSONError(w, status, errorCode, message)
		return
	}
	s.renderErrorPage(w, r, status, message)
}
