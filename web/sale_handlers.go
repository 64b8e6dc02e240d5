package web

import (
	"errors"
	"fmt"
	"net/http"

	"modofit/metrics"
	"modofit/storage"
)

// formatPrice renders cents as a user-facing amount.
func formatPrice(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// planView is one plan card on the checkout page.
type planView struct {
	Code        string
	Name        string
	Description string
	Price       string
}

func (s *Server) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	plans, err := s.sales.ListPlans(r.Context())
	if err != nil {
		s.logger.Errorw("Failed to load plans", "error", err)
		s.renderErrorPage(w, r, http.StatusInternalServerError, "Ha ocurrido un error inesperado.")
		return
	}

	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{
			Code:        p.Code,
			Name:        p.Name,
			Description: p.Description,
			Price:       formatPrice(p.PriceCents),
		})
	}

	s.render(w, r, http.StatusOK, "checkout", "Planes", struct {
		Plans []planView
	}{Plans: views})
}

// handleCheckoutConfirm purchases the selected plan for the logged-in user.
func (s *Server) handleCheckoutConfirm(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r)
	planCode := r.PostFormValue("plan")

	sub, err := s.sales.CreateSubscription(r.Context(), sess.Data.UserID, planCode)
	if err != nil {
		if errors.Is(err, storage.ErrPlanNotFound) {
			s.renderError(w, r, http.StatusUnprocessableEntity,
				"plan_desconocido", "El plan seleccionado no existe.")
			return
		}
		s.logger.Errorw("Failed to create subscription",
			"user_id", sess.Data.UserID, "plan", planCode, "error", err)
		s.renderError(w, r, http.StatusInternalServerError,
			"error_interno", "Ha ocurrido un error inesperado.")
		return
	}

	metrics.SubscriptionsCreated.WithLabelValues(sub.PlanCode).Inc()

	if isAPIRequest(r) {
		s.writeJSON(w, http.StatusCreated, sub)
		return
	}

	sess.AddFlash("success", fmt.Sprintf("¡%s contratado! Bienvenido a ModoFit.", sub.PlanName))
	if err := s.sessions.Save(r.Context(), w, sess); err != nil {
		s.logger.Warnw("Failed to persist checkout flash", "error", err)
	}
	http.Redirect(w, r, "/usuario/facturacion", http.StatusSeeOther)
}

// handleSubscriptionsAPI returns a user's subscriptions as JSON. The
// ownership guard has already checked that usuario_id belongs to the caller
// (or that the caller is an admin).
func (s *Server) handleSubscriptionsAPI(w http.ResponseWriter, r *http.Request) {
	userID, err := ownedUserID(r)
	if err != nil {
		s.writeJSONError(w, http.StatusUnprocessableEntity,
			"parametro_invalido", "usuario_id inválido.")
		return
	}

	subs, err := s.sales.ListSubscriptionsByUser(r.Context(), userID)
	if err != nil {
		s.logger.Errorw("Failed to load subscriptions", "user_id", userID, "error", err)
		s.writeJSONError(w, http.StatusInternalServerError,
			"error_interno", "Ha ocurrido un error inesperado.")
		return
	}
	if subs == nil {
		subs = []storage.Subscription{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"usuario_id":    userID,
		"suscripciones": subs,
	})
}
