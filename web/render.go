package web

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"modofit/session"
	"modofit/views"
)

// page is the view model every template receives. Data carries the
// page-specific payload.
type page struct {
	Title         string
	Authenticated bool
	CSRFToken     string
	Flashes       []session.Flash
	Data          interface{}
}

// renderer holds the parsed page templates, one template set per page so a
// page can only reference blocks from the shared layout and itself.
type renderer struct {
	pages map[string]*template.Template
}

var pageNames = []string{
	"home", "login", "registro", "dashboard", "facturacion", "checkout", "error",
}

// newRenderer parses every page template against the shared layout.
func newRenderer() (*renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.ParseFS(views.Templates,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = t
	}
	return &renderer{pages: pages}, nil
}

// render writes a page. The template executes into a buffer first so a
// template error can still produce a clean 500 instead of a half-written
// body.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data interface{}) {
	t, ok := s.renderer.pages[name]
	if !ok {
		s.logger.Errorf("Unknown template: %s", name)
		http.Error(w, "error interno", http.StatusInternalServerError)
		return
	}

	p := page{
		Title: title,
		Data:  data,
	}
	if sess := sessionFrom(r); sess != nil {
		p.Authenticated = sess.Authenticated()
		p.CSRFToken = sess.Data.CSRFToken
		p.Flashes = s.takeFlashes(w, r, sess)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		s.logger.Errorf("Template %s failed: %v", name, err)
		http.Error(w, "error interno", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// takeFlashes drains queued flash messages and persists the drain, so a
// message shows exactly once.
func (s *Server) takeFlashes(w http.ResponseWriter, r *http.Request, sess *session.Session) []session.Flash {
	flashes := sess.TakeFlashes()
	if len(flashes) > 0 && !sess.Fresh() {
		if err := s.sessions.Save(r.Context(), w, sess); err != nil {
			s.logger.Warnw("Failed to persist flash drain", "error", err)
		}
	}
	return flashes
}

// errorPageData feeds the error template.
type errorPageData struct {
	Code    int
	Message string
}

// renderErrorPage writes the rendered error page with the given status.
func (s *Server) renderErrorPage(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.render(w, r, status, "error", http.StatusText(status), errorPageData{
		Code:    status,
		Message: message,
	})
}
