package bootstrap

import (
	"fmt"

	"go.uber.org/zap"

	"modofit/config"
	"modofit/session"
	"modofit/storage"
)

// InitSQLite opens the application database.
func InitSQLite(cfg *config.Config, sugar *zap.SugaredLogger) (*storage.SQLite, error) {
	sugar.Infow("Initializing SQLite database", "path", cfg.Database.SQLitePath)

	sqlite, err := storage.NewSQLite(cfg.Database.SQLitePath, sugar)
	if err != nil {
		sugar.Error(ClassifySQLiteError(err, cfg.Database.SQLitePath))
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}

	sugar.Info("SQLite database initialized successfully")
	return sqlite, nil
}

// NewSessionStore builds the session store selected by session.backend.
func NewSessionStore(cfg *config.Config, sugar *zap.SugaredLogger) (session.Store, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		sugar.Warn("Using in-memory session store; sessions will not survive restarts")
		return session.NewMemoryStore(), nil

	case config.SessionBackendSQLite:
		sugar.Infow("Using SQLite session store", "path", cfg.Session.SQLitePath)
		store, err := session.NewSQLiteStore(cfg.Session.SQLitePath)
		if err != nil {
			sugar.Error(ClassifySQLiteError(err, cfg.Session.SQLitePath))
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return store, nil

	case config.SessionBackendPostgres:
		sugar.Info("Using PostgreSQL session store")
		store, err := session.NewPostgresStore(cfg.Session.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return store, nil

	case config.SessionBackendRedis:
		sugar.Infow("Using Redis session store", "addr", cfg.Session.Redis.Addr)
		store, err := session.NewRedisStore(
			cfg.Session.Redis.Addr, cfg.Session.Redis.Password, cfg.Session.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown session backend: %s", cfg.Session.Backend)
	}
}
