package web

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"modofit/metrics"
	"modofit/session"
)

// defaultCSRFTokenBytes is the entropy of a token when config does not say
// otherwise; the hex string is twice as long (128 characters).
const defaultCSRFTokenBytes = 64

// clockSkewTolerance absorbs small clock differences when judging token
// issue timestamps. Anything issued further in the future is treated as
// corrupt, and corrupt means expired.
const clockSkewTolerance = 5 * time.Minute

// Candidate token sources, in precedence order: form field, query parameter,
// then either header spelling.
const (
	csrfFormField     = "_csrf"
	csrfHeader        = "X-CSRF-Token"
	csrfHeaderAlt     = "X-XSRF-Token"
	csrfErrorCode     = "EBADCSRFTOKEN"
	csrfErrorMessage  = "Token de seguridad inválido o faltante. Recarga la página e inténtalo de nuevo."
	csrfExpiredDetail = "Token de seguridad expirado. Recarga la página e inténtalo de nuevo."
)

// safeMethods never mutate state and pass verification unconditionally.
var safeMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// csrfReason classifies a verification failure.
type csrfReason string

const (
	csrfNoSession     csrfReason = "no_session"
	csrfTokenMismatch csrfReason = "token_mismatch"
	csrfTokenExpired  csrfReason = "token_expired"
)

// generateCSRFToken returns a hex token from numBytes of CSPRNG output.
func generateCSRFToken(numBytes int) (string, error) {
	if numBytes <= 0 {
		numBytes = defaultCSRFTokenBytes
	}
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("csrf token generation: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// csrfTokenExpired reports whether a token issued at the given time is past
// its maximum age. Zero and far-future timestamps count as expired: a token
// whose age cannot be established is never accepted.
func (s *Server) csrfTokenExpired(issuedAt time.Time, now time.Time) bool {
	if issuedAt.IsZero() {
		return true
	}
	if issuedAt.After(now.Add(clockSkewTolerance)) {
		return true
	}
	return now.Sub(issuedAt) > s.cfg.CSRF.MaxAge
}

// ensureCSRFToken lazily issues the session's token, or replaces it when the
// stored one has aged out. It reports whether the session changed and needs
// a save. Calling it twice inside the validity window is a no-op.
func (s *Server) ensureCSRFToken(sess *session.Session) (bool, error) {
	if sess.Data.CSRFToken != "" && !s.csrfTokenExpired(sess.Data.CSRFIssuedAt, time.Now()) {
		return false, nil
	}

	token, err := generateCSRFToken(s.cfg.CSRF.TokenBytes)
	if err != nil {
		return false, err
	}
	sess.Data.CSRFToken = token
	sess.Data.CSRFIssuedAt = time.Now()
	return true, nil
}

// extractCSRFCandidate pulls the client-supplied token from the request.
// Body beats query beats headers, matching what the form templates and the
// JS fetch helpers send.
func extractCSRFCandidate(r *http.Request) string {
	if v := r.PostFormValue(csrfFormField); v != "" {
		return v
	}
	if v := r.URL.Query().Get(csrfFormField); v != "" {
		return v
	}
	if v := r.Header.Get(csrfHeader); v != "" {
		return v
	}
	return r.Header.Get(csrfHeaderAlt)
}

// verifyCSRF checks a state-changing request against the session-bound
// token. Safe methods always pass. The reason is only meaningful when ok is
// false.
func (s *Server) verifyCSRF(r *http.Request, sess *session.Session) (csrfReason, bool) {
	if safeMethods[r.Method] {
		return "", true
	}

	// A fresh session means the request arrived without a usable session
	// cookie; there is no stored token to compare against.
	if sess == nil || sess.Fresh() || sess.Data.CSRFToken == "" {
		return csrfNoSession, false
	}

	candidate := extractCSRFCandidate(r)
	if !compareTokensTimingSafe(candidate, sess.Data.CSRFToken) {
		return csrfTokenMismatch, false
	}

	// The match only counts while the stored token is inside its window.
	if s.csrfTokenExpired(sess.Data.CSRFIssuedAt, time.Now()) {
		return csrfTokenExpired, false
	}

	return "", true
}

// compareTokensTimingSafe compares tokens in constant time. An empty
// candidate never matches.
func compareTokensTimingSafe(candidate, stored string) bool {
	if candidate == "" || stored == "" {
		return false
	}
	if len(candidate) != len(stored) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
}

// csrfProtectionMiddleware enforces token verification on state-changing
// requests and keeps the session's token alive for page renders. On
// rejection it rotates the session token before answering so the client's
// next page load carries a usable one, then responds 403.
func (s *Server) csrfProtectionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessionFrom(r)

		// Safe methods render pages; make sure the session carries a live
		// token for the forms they embed. Only established sessions are
		// persisted here: a fresh session gets no cookie until a handler
		// decides it matters, which keeps crawlers from filling the store —
		// and lets verification tell "no session" apart from "bad token".
		if safeMethods[r.Method] && sess != nil {
			rotated, err := s.ensureCSRFToken(sess)
			if err != nil {
				s.logger.Errorf("CSRF token issue failed: %v", err)
				s.renderError(w, r, http.StatusInternalServerError,
					"error_interno", "Ha ocurrido un error inesperado.")
				return
			}
			if rotated && !sess.Fresh() {
				if err := s.sessions.Save(r.Context(), w, sess); err != nil {
					s.logger.Errorw("Session save failed",
						"method", r.Method, "path", r.URL.Path, "error", err)
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		reason, ok := s.verifyCSRF(r, sess)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		metrics.CSRFRejections.WithLabelValues(string(reason)).Inc()
		s.logger.Warnw("CSRF verification failed",
			"reason", string(reason),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_ip", clientIP(r))

		// Burn the stored token and issue a fresh one; a rejected token
		// must never verify on a later attempt.
		if sess != nil {
			if token, err := generateCSRFToken(s.cfg.CSRF.TokenBytes); err == nil {
				sess.Data.CSRFToken = token
				sess.Data.CSRFIssuedAt = time.Now()
				if err := s.sessions.Save(r.Context(), w, sess); err != nil {
					s.logger.Errorf("Failed to save session after CSRF rejection: %v", err)
				}
			}
		}

		expired := reason == csrfTokenExpired
		if isAPIRequest(r) {
			message := csrfErrorMessage
			if expired {
				message = csrfExpiredDetail
			}
			s.writeJSON(w, http.StatusForbidden, errorResponse{
				Error:   csrfErrorCode,
				Message: message,
				Expired: expired,
			})
			return
		}

		s.renderErrorPage(w, r, http.StatusForbidden, csrfErrorMessage)
	})
}
