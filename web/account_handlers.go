package web

import (
	"errors"
	"net/http"
	"time"

	"modofit/metrics"
	"modofit/session"
	"modofit/storage"
	"modofit/util"
)

// loginForm is the POST /usuario/login payload.
type loginForm struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=128"`
}

const genericLoginError = "Email o contraseña incorrectos."

// handleLoginPage renders the login form. Logged-in users are pushed to the
// dashboard. Anonymous visitors get a brand new session ID first: whatever
// ID the browser presented (possibly planted by an attacker before the
// victim ever logged in) must not survive into an authenticated session.
func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	if sess.Authenticated() {
		http.Redirect(w, r, "/usuario/dashboard", http.StatusSeeOther)
		return
	}

	// Everything except unprivileged presentation state (pending flash
	// messages, the captured return target) is dropped with the old ID.
	sess.Data = session.Data{
		ReturnTo: sess.Data.ReturnTo,
		Flashes:  sess.Data.Flashes,
	}
	if _, err := s.ensureCSRFToken(sess); err != nil {
		s.logger.Errorf("CSRF token issue failed: %v", err)
		s.renderErrorPage(w, r, http.StatusInternalServerError, "Ha ocurrido un error inesperado.")
		return
	}

	if err := s.sessions.Regenerate(r.Context(), w, sess); err != nil {
		s.logger.Errorw("Pre-auth session regeneration failed", "error", err)
		s.renderErrorPage(w, r, http.StatusInternalServerError, "Ha ocurrido un error inesperado.")
		return
	}
	metrics.SessionRegenerations.WithLabelValues("pre_auth").Inc()

	var mensaje string
	if r.URL.Query().Get("mensaje") == "logout_exitoso" {
		mensaje = "Has cerrado sesión correctamente."
	}

	s.render(w, r, http.StatusOK, "login", "Iniciar sesión", struct {
		Mensaje string
	}{Mensaje: mensaje})
}

// handleLogin processes a credential submission.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	ctx := r.Context()

	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	if err := s.validate.Struct(form); err != nil {
		metrics.LoginAttempts.WithLabelValues("invalid_input").Inc()
		s.failLogin(w, r, sess)
		return
	}

	// The attempt is counted and persisted before credentials are checked,
	// so a crash or early return cannot lose it.
	sess.Data.LoginAttempts++
	if err := s.sessions.Save(ctx, w, sess); err != nil {
		s.logger.Errorw("Failed to persist login attempt count", "error", err)
		s.failLogin(w, r, sess)
		return
	}

	user, err := s.users.ValidateCredentials(ctx, form.Email, form.Password)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAccountLocked):
			metrics.LoginAttempts.WithLabelValues("locked").Inc()
		case errors.Is(err, storage.ErrInvalidCredentials), errors.Is(err, storage.ErrAccountInactive):
			metrics.LoginAttempts.WithLabelValues("bad_credentials").Inc()
			if rerr := s.users.RecordFailedLogin(ctx, form.Email); rerr != nil {
				s.logger.Warnw("Failed to record failed login", "error", rerr)
			}
		default:
			metrics.LoginAttempts.WithLabelValues("error").Inc()
			s.logger.Errorw("Credential check failed",
				"method", r.Method, "path", r.URL.Path, "error", util.SanitizeError(err))
		}
		s.failLogin(w, r, sess)
		return
	}

	// Privilege changes, so the session ID changes with it. Only the
	// identity and the still-valid CSRF token survive into the new
	// session; attempt counters and anything an attacker could have
	// planted pre-auth are dropped.
	now := time.Now()
	returnTo := util.SanitizeReturnTo(sess.Data.ReturnTo)
	anonData := sess.Data
	sess.Data = session.Data{
		UserID:       user.UserID,
		Email:        user.Email,
		Name:         user.Name,
		Role:         user.Role,
		CSRFToken:    sess.Data.CSRFToken,
		CSRFIssuedAt: sess.Data.CSRFIssuedAt,
		LastLogin:    now,
	}
	if err := s.sessions.Regenerate(ctx, w, sess); err != nil {
		// Without a clean ID swap the login must not proceed. The session
		// reverts to its anonymous state before the failure is reported.
		s.logger.Errorw("Post-auth session regeneration failed",
			"user_id", user.UserID, "error", err)
		metrics.LoginAttempts.WithLabelValues("regeneration_failed").Inc()
		sess.Data = anonData
		s.failLogin(w, r, sess)
		return
	}
	metrics.SessionRegenerations.WithLabelValues("post_auth").Inc()

	if err := s.users.RecordSuccessfulLogin(ctx, user.UserID, now); err != nil {
		s.logger.Warnw("Failed to record successful login",
			"user_id", user.UserID, "error", err)
	}

	metrics.LoginAttempts.WithLabelValues("success").Inc()
	s.logger.Infow("Login successful", "user_id", user.UserID, "remote_ip", clientIP(r))

	if isAPIRequest(r) {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"usuario_id": user.UserID,
			"nombre":     user.Name,
		})
		return
	}

	target := returnTo
	if target == "" {
		target = "/usuario/dashboard"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// failLogin answers every failed login the same way. The message never says
// whether the account exists, is locked, or had the wrong password.
func (s *Server) failLogin(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.logger.Infow("Login failed",
		"attempts", sess.Data.LoginAttempts, "remote_ip", clientIP(r))

	if isAPIRequest(r) {
		s.writeJSONError(w, http.StatusUnauthorized, "credenciales_invalidas", genericLoginError)
		return
	}

	sess.AddFlash("error", genericLoginError)
	if err := s.sessions.Save(r.Context(), w, sess); err != nil {
		s.logger.Warnw("Failed to persist login failure flash", "error", err)
	}
	http.Redirect(w, r, "/usuario/login", http.StatusSeeOther)
}

// handleLogout tears the session down completely and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	userID := sess.Data.UserID

	if err := s.sessions.Destroy(r.Context(), w, sess); err != nil {
		// The cookie is already cleared; the orphaned row expires on its
		// own. The user still ends up logged out.
		s.logger.Warnw("Session destroy failed", "user_id", userID, "error", err)
	}

	s.logger.Infow("Logout", "user_id", userID)
	http.Redirect(w, r, "/usuario/login?mensaje=logout_exitoso", http.StatusSeeOther)
}

// dashboardData feeds the dashboard template.
type dashboardData struct {
	Name        string
	LastLogin   string
	ActiveCount int
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	subs, err := s.sales.ListSubscriptionsByUser(r.Context(), sess.Data.UserID)
	if err != nil {
		s.logger.Errorw("Failed to load subscriptions",
			"user_id", sess.Data.UserID, "error", err)
		s.renderErrorPage(w, r, http.StatusInternalServerError, "Ha ocurrido un error inesperado.")
		return
	}

	active := 0
	for _, sub := range subs {
		if sub.Status == storage.SubscriptionActive {
			active++
		}
	}

	data := dashboardData{
		Name:        sess.Data.Name,
		ActiveCount: active,
	}
	if !sess.Data.LastLogin.IsZero() {
		data.LastLogin = sess.Data.LastLogin.Format("02/01/2006 15:04")
	}

	s.render(w, r, http.StatusOK, "dashboard", "Panel", data)
}

// billingRow is one subscription line on the billing page.
type billingRow struct {
	PlanName  string
	Status    string
	Price     string
	StartedAt string
	RenewsAt  string
}

func (s *Server) handleBilling(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)

	subs, err := s.sales.ListSubscriptionsByUser(r.Context(), sess.Data.UserID)
	if err != nil {
		s.logger.Errorw("Failed to load subscriptions",
			"user_id", sess.Data.UserID, "error", err)
		s.renderErrorPage(w, r, http.StatusInternalServerError, "Ha ocurrido un error inesperado.")
		return
	}

	rows := make([]billingRow, 0, len(subs))
	for _, sub := range subs {
		rows = append(rows, billingRow{
			PlanName:  sub.PlanName,
			Status:    sub.Status,
			Price:     formatPrice(sub.PriceCents),
			StartedAt: sub.StartedAt.Format("02/01/2006"),
			RenewsAt:  sub.RenewsAt.Format("02/01/2006"),
		})
	}

	s.render(w, r, http.StatusOK, "facturacion", "Facturación", struct {
		Subscriptions []billingRow
	}{Subscriptions: rows})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "home", "Inicio", nil)
}
