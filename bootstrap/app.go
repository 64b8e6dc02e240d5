// Package bootstrap assembles the application: logger, config, databases,
// session store and HTTP server, plus graceful shutdown.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"modofit/config"
	"modofit/session"
	"modofit/storage"
	"modofit/web"
)

// App represents the ModoFit application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	SQLite *storage.SQLite
	Users  *storage.SQLiteUserStorage
	Sales  *storage.SQLiteSaleStorage

	SessionStore session.Store
	Sessions     *session.Manager

	Server *web.Server
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{}

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("ModoFit starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	if err := EnsureDataDirectories(cfg, sugar); err != nil {
		return nil, fmt.Errorf("pre-flight check failed: %w", err)
	}

	sqlite, err := InitSQLite(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.SQLite = sqlite
	app.Users = storage.NewSQLiteUserStorage(sqlite, sugar)
	app.Sales = storage.NewSQLiteSaleStorage(sqlite, sugar)

	store, err := NewSessionStore(cfg, sugar)
	if err != nil {
		return nil, err
	}
	app.SessionStore = store
	app.Sessions = session.NewManager(store, session.Config{
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.IsProduction(),
	}, sugar)

	if err := app.seedAdminUser(ctx); err != nil {
		sugar.Errorf("Admin seeding encountered errors: %v", err)
	}

	server, err := web.NewServer(cfg, sugar, app.Sessions, app.Users, app.Sales)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP server: %w", err)
	}
	app.Server = server

	return app, nil
}

// Start runs the HTTP server in a goroutine.
func (a *App) Start() {
	go func() {
		if err := a.Server.Start(); err != nil {
			a.Sugar.Errorf("HTTP server error: %v", err)
		}
	}()
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if a.Server != nil {
		if err := a.Server.Stop(ctx); err != nil {
			a.Sugar.Errorw("Failed to stop HTTP server", "error", err)
		}
	}

	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			a.Sugar.Errorw("Failed to close session manager", "error", err)
		}
	}

	if a.SQLite != nil {
		a.SQLite.Close()
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}

// seedAdminUser creates the configured admin account if it does not exist.
// With no admin email configured the step is skipped entirely.
func (a *App) seedAdminUser(ctx context.Context) error {
	if a.Config.Auth.AdminEmail == "" {
		a.Sugar.Info("No admin account configured, skipping seed")
		return nil
	}
	if a.Config.Auth.AdminPasswordHashed == "" {
		return fmt.Errorf("auth.admin_email is set but no admin password was provided")
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	created, err := a.Users.SeedAdmin(ctx,
		a.Config.Auth.AdminEmail,
		a.Config.Auth.AdminName,
		a.Config.Auth.AdminPasswordHashed)
	if err != nil {
		return err
	}
	if created {
		a.Sugar.Infow("Admin account created", "email", a.Config.Auth.AdminEmail)
	}
	return nil
}
