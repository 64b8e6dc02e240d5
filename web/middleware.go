package web

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"modofit/metrics"
)

// clientIP returns the remote address without the port. Proxy headers are
// deliberately ignored; this deployment terminates TLS itself.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// securityHeadersMiddleware sets the browser-side hardening headers on every
// response.
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; frame-ancestors 'none'; form-action 'self'")
		if s.cfg.IsProduction() {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs each request and feeds the request counters.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(
			r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDuration.Observe(elapsed.Seconds())

		s.logger.Infow("Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
			"remote_ip", clientIP(r))
	})
}

// recoveryMiddleware converts handler panics into a 500 response instead of
// taking the process down.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Errorf("Panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				s.renderError(w, r, http.StatusInternalServerError,
					"error_interno", "Ha ocurrido un error inesperado.")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware attaches the request session. Token issuance lives in
// the CSRF middleware: a state-changing request must be verified against the
// stored token exactly as it was, expired or not.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r)
		if err != nil {
			s.logger.Errorw("Session load failed",
				"method", r.Method, "path", r.URL.Path, "error", err)
			s.renderError(w, r, http.StatusInternalServerError,
				"error_interno", "Ha ocurrido un error inesperado.")
			return
		}

		next.ServeHTTP(w, withSession(r, sess))
	})
}

// limiterEntry pairs a per-IP limiter with its last use for cleanup.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// loginRateLimitMiddleware applies a per-IP token bucket to the login
// endpoint. Entries idle for an hour are dropped by the cleanup loop.
func (s *Server) loginRateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		s.limiterMu.Lock()
		entry, ok := s.loginLimiters[ip]
		if !ok {
			entry = &limiterEntry{
				limiter: rate.NewLimiter(
					rate.Limit(float64(s.cfg.RateLimit.Login.RequestsPerMinute)/60.0),
					s.cfg.RateLimit.Login.Burst),
			}
			s.loginLimiters[ip] = entry
		}
		entry.lastSeen = time.Now()
		allowed := entry.limiter.Allow()
		s.limiterMu.Unlock()

		if !allowed {
			s.logger.Warnw("Login rate limit exceeded", "remote_ip", ip)
			s.renderError(w, r, http.StatusTooManyRequests,
				"demasiados_intentos", "Demasiados intentos. Espera un momento e inténtalo de nuevo.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// limiterCleanupLoop drops rate limiter entries that have been idle for an
// hour.
func (s *Server) limiterCleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-1 * time.Hour)
			s.limiterMu.Lock()
			for ip, entry := range s.loginLimiters {
				if entry.lastSeen.Before(cutoff) {
					delete(s.loginLimiters, ip)
				}
			}
			s.limiterMu.Unlock()
		}
	}
}
