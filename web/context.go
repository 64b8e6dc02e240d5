package web

import (
	"context"
	"net/http"

	"modofit/session"
)

type contextKey struct{ name string }

var sessionKey = &contextKey{"session"}

// withSession stores the request session in the context.
func withSession(r *http.Request, s *session.Session) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), sessionKey, s))
}

// sessionFrom returns the session attached by the session middleware. Every
// handler below that middleware can rely on a non-nil session.
func sessionFrom(r *http.Request) *session.Session {
	s, _ := r.Context().Value(sessionKey).(*session.Session)
	return s
}
