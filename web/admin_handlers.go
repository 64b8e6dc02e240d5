package web

import (
	"net/http"
)

// handleAdminUsers lists accounts for operators. Password hashes never leave
// the storage layer's JSON marshalling.
func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.logger.Errorw("Failed to list users", "error", err)
		s.writeJSONError(w, http.StatusInternalServerError,
			"error_interno", "Ha ocurrido un error inesperado.")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":    len(users),
		"usuarios": users,
	})
}

// handleHealth is the liveness endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
