package web

import (
	"errors"
	"net/http"

	"modofit/storage"
	"modofit/util"
)

// signupForm is the POST /registro payload.
type signupForm struct {
	Nombre   string `validate:"required,min=2,max=100"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=128"`
}

// handleSignupPage renders the signup form. The session is persisted here so
// the form's CSRF token is backed by a real cookie when the POST arrives.
func (s *Server) handleSignupPage(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	if sess.Authenticated() {
		http.Redirect(w, r, "/usuario/dashboard", http.StatusSeeOther)
		return
	}

	if err := s.sessions.Save(r.Context(), w, sess); err != nil {
		s.logger.Errorw("Session save failed", "path", r.URL.Path, "error", err)
		s.renderErrorPage(w, r, http.StatusInternalServerError, "Ha ocurrido un error inesperado.")
		return
	}

	s.render(w, r, http.StatusOK, "registro", "Crear cuenta", struct {
		Nombre, Email string
	}{})
}

// handleSignup creates an account and sends the user to the login page.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	ctx := r.Context()

	form := signupForm{
		Nombre:   r.PostFormValue("nombre"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	rerender := func(message string) {
		sess.AddFlash("error", message)
		s.render(w, r, http.StatusUnprocessableEntity, "registro", "Crear cuenta", struct {
			Nombre, Email string
		}{Nombre: form.Nombre, Email: form.Email})
	}

	if err := s.validate.Struct(form); err != nil {
		rerender("Revisa los datos del formulario.")
		return
	}
	if err := s.passwordPolicy.Validate(form.Password, form.Email); err != nil {
		rerender(err.Error())
		return
	}

	user := &storage.User{
		Email:    form.Email,
		Name:     form.Nombre,
		Password: form.Password,
		Role:     storage.RoleClient,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			rerender("Ya existe una cuenta con ese email.")
			return
		}
		s.logger.Errorw("Failed to create user",
			"path", r.URL.Path, "error", util.SanitizeError(err))
		s.renderErrorPage(w, r, http.StatusInternalServerError, "Ha ocurrido un error inesperado.")
		return
	}

	s.logger.Infow("User registered", "user_id", user.UserID)

	sess.AddFlash("success", "Cuenta creada. Ya puedes iniciar sesión.")
	if err := s.sessions.Save(ctx, w, sess); err != nil {
		s.logger.Warnw("Failed to persist signup flash", "error", err)
	}
	http.Redirect(w, r, "/usuario/login", http.StatusSeeOther)
}
