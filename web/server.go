// Package web is the HTTP layer of ModoFit: routing, middleware, the
// session-bound CSRF defense, authorization guards, and the page handlers.
package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"modofit/config"
	"modofit/session"
	"modofit/storage"
	"modofit/util"
	"modofit/views"
)

// Server is the HTTP server and its collaborators.
type Server struct {
	router   *mux.Router
	server   *http.Server
	cfg      *config.Config
	logger   *zap.SugaredLogger
	sessions *session.Manager
	users    storage.UserStorage
	sales    storage.SaleStorage

	validate       *validator.Validate
	renderer       *renderer
	passwordPolicy *util.PasswordPolicy

	limiterMu     sync.Mutex
	loginLimiters map[string]*limiterEntry

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewServer wires the HTTP layer. The session manager and storages are owned
// by the caller; the server only uses them.
func NewServer(
	cfg *config.Config,
	logger *zap.SugaredLogger,
	sessions *session.Manager,
	users storage.UserStorage,
	sales storage.SaleStorage,
) (*Server, error) {
	rend, err := newRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		router:         mux.NewRouter(),
		cfg:            cfg,
		logger:         logger,
		sessions:       sessions,
		users:          users,
		sales:          sales,
		validate:       validator.New(),
		renderer:       rend,
		passwordPolicy: util.DefaultPasswordPolicy(),
		loginLimiters:  make(map[string]*limiterEntry),
		stopCh:         make(chan struct{}),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	s.wg.Add(1)
	go s.limiterCleanupLoop()

	return s, nil
}

func (s *Server) setupRoutes() {
	// Outermost first: recover, harden, log, then session + CSRF for
	// everything below.
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.securityHeadersMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.sessionMiddleware)
	s.router.Use(s.csrfProtectionMiddleware)

	s.router.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.PathPrefix("/static/").Handler(
		http.FileServer(http.FS(views.Static))).Methods(http.MethodGet)

	s.router.HandleFunc("/registro", s.handleSignupPage).Methods(http.MethodGet)
	s.router.HandleFunc("/registro", s.handleSignup).Methods(http.MethodPost)

	s.router.HandleFunc("/usuario/login", s.handleLoginPage).Methods(http.MethodGet)
	s.router.Handle("/usuario/login",
		s.loginRateLimitMiddleware(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	s.router.Handle("/usuario/logout",
		s.requireAuthenticated(http.HandlerFunc(s.handleLogout))).Methods(http.MethodGet)
	s.router.Handle("/usuario/dashboard",
		s.requireAuthenticated(http.HandlerFunc(s.handleDashboard))).Methods(http.MethodGet)
	s.router.Handle("/usuario/facturacion",
		s.requireAuthenticated(http.HandlerFunc(s.handleBilling))).Methods(http.MethodGet)

	s.router.Handle("/venta/checkout",
		s.requireAuthenticated(http.HandlerFunc(s.handleCheckoutPage))).Methods(http.MethodGet)
	s.router.Handle("/venta/confirmar",
		s.requireAuthenticated(http.HandlerFunc(s.handleCheckoutConfirm))).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Handle("/venta/suscripciones/{usuario_id}",
		s.requireOwnership(ownershipParam)(http.HandlerFunc(s.handleSubscriptionsAPI))).Methods(http.MethodGet)
	api.Handle("/admin/usuarios",
		s.requireAdmin(http.HandlerFunc(s.handleAdminUsers))).Methods(http.MethodGet)

	s.router.NotFoundHandler = s.sessionMiddleware(http.HandlerFunc(s.handleNotFound))
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound, "no_encontrado", "Página no encontrada.")
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until it is stopped.
func (s *Server) Start() error {
	s.logger.Infow("HTTP server listening",
		"addr", s.server.Addr,
		"environment", s.cfg.Environment)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts down background loops.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)

	s.wg.Wait()
	return err
}
