package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Session backend names accepted by session.backend.
const (
	SessionBackendMemory   = "memory"
	SessionBackendSQLite   = "sqlite"
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

// Config holds all configuration for the ModoFit service
type Config struct {
	// Environment selects cookie hardening and error verbosity:
	// "development" (default) or "production".
	Environment string `mapstructure:"environment"`

	// DataDir is the base data directory (MODOFIT_DATA_DIR, default: ./data)
	DataDir string `mapstructure:"data_dir"`

	Server struct {
		Host         string        `mapstructure:"host"`
		Port         int           `mapstructure:"port"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"server"`

	Database struct {
		// SQLitePath is the application database (MODOFIT_SQLITE_PATH,
		// default: ${DataDir}/modofit.db)
		SQLitePath string `mapstructure:"sqlite_path"`
	} `mapstructure:"database"`

	Session struct {
		Backend    string        `mapstructure:"backend"`
		CookieName string        `mapstructure:"cookie_name"`
		TTL        time.Duration `mapstructure:"ttl"`
		// SQLitePath is the session database when backend=sqlite
		// (default: ${DataDir}/sessions.db)
		SQLitePath  string `mapstructure:"sqlite_path"`
		PostgresDSN string `mapstructure:"postgres_dsn"`
		Redis       struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"session"`

	CSRF struct {
		// TokenBytes is the entropy of generated tokens; the hex token is
		// twice as long.
		TokenBytes int           `mapstructure:"token_bytes"`
		MaxAge     time.Duration `mapstructure:"max_age"`
	} `mapstructure:"csrf"`

	Auth struct {
		// AdminEmail/AdminPassword seed an admin account on first start.
		// The plaintext is hashed during LoadConfig and cleared.
		AdminEmail          string `mapstructure:"admin_email"`
		AdminName           string `mapstructure:"admin_name"`
		AdminPassword       string `mapstructure:"admin_password"`
		AdminPasswordHashed string
		BcryptCost          int `mapstructure:"bcrypt_cost"`
	} `mapstructure:"auth"`

	RateLimit struct {
		// Login limits are per client IP.
		Login struct {
			RequestsPerMinute int `mapstructure:"requests_per_minute"`
			Burst             int `mapstructure:"burst"`
		} `mapstructure:"login"`
	} `mapstructure:"rate_limit"`
}

func setDefaults() {
	viper.SetDefault("environment", EnvDevelopment)
	viper.SetDefault("data_dir", "./data")

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.idle_timeout", 120*time.Second)

	viper.SetDefault("database.sqlite_path", "") // Empty = derive from data_dir

	viper.SetDefault("session.backend", SessionBackendSQLite)
	viper.SetDefault("session.cookie_name", "modofit_session")
	viper.SetDefault("session.ttl", 24*time.Hour)
	viper.SetDefault("session.sqlite_path", "") // Empty = derive from data_dir
	viper.SetDefault("session.postgres_dsn", "")
	viper.SetDefault("session.redis.addr", "127.0.0.1:6379")
	viper.SetDefault("session.redis.password", "")
	viper.SetDefault("session.redis.db", 0)

	viper.SetDefault("csrf.token_bytes", 64)
	viper.SetDefault("csrf.max_age", 24*time.Hour)

	viper.SetDefault("auth.admin_email", "")
	viper.SetDefault("auth.admin_name", "Administrador")
	viper.SetDefault("auth.bcrypt_cost", bcrypt.DefaultCost)

	viper.SetDefault("rate_limit.login.requests_per_minute", 10)
	viper.SetDefault("rate_limit.login.burst", 5)
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix("MODOFIT")
	viper.AutomaticEnv()

	// Explicit bindings for shorter, cleaner env var names
	_ = viper.BindEnv("environment", "MODOFIT_ENV")
	_ = viper.BindEnv("data_dir", "MODOFIT_DATA_DIR")
	_ = viper.BindEnv("database.sqlite_path", "MODOFIT_SQLITE_PATH")
	_ = viper.BindEnv("session.backend", "MODOFIT_SESSION_BACKEND")
	_ = viper.BindEnv("session.postgres_dsn", "MODOFIT_SESSION_POSTGRES_DSN")
	_ = viper.BindEnv("session.redis.addr", "MODOFIT_SESSION_REDIS_ADDR")
	_ = viper.BindEnv("session.redis.password", "MODOFIT_SESSION_REDIS_PASSWORD")
	_ = viper.BindEnv("auth.admin_email", "MODOFIT_ADMIN_EMAIL")
	_ = viper.BindEnv("auth.admin_password", "MODOFIT_ADMIN_PASSWORD")
}

// validateAndHash validates the config and hashes the seeded admin password
func validateAndHash(config *Config) error {
	if config.Auth.AdminPassword != "" {
		if len(config.Auth.AdminPassword) < 12 {
			return fmt.Errorf("admin password must be at least 12 characters")
		}

		weakSecrets := []string{
			"secret", "password", "changeme", "default", "admin",
			"modofit", "test", "example", "12345",
		}
		lowerPassword := strings.ToLower(config.Auth.AdminPassword)
		for _, weak := range weakSecrets {
			if strings.Contains(lowerPassword, weak) {
				return fmt.Errorf("admin password appears to contain a weak/default value")
			}
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(config.Auth.AdminPassword), config.Auth.BcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash admin password: %w", err)
		}
		config.Auth.AdminPasswordHashed = string(hashed)
		config.Auth.AdminPassword = "" // clear plain password
	}

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

func validateConfig(config *Config) error {
	switch config.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("invalid environment %q (want %q or %q)",
			config.Environment, EnvDevelopment, EnvProduction)
	}

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Session.Backend {
	case SessionBackendMemory, SessionBackendSQLite:
	case SessionBackendPostgres:
		if config.Session.PostgresDSN == "" {
			return fmt.Errorf("session.postgres_dsn is required when session.backend=postgres")
		}
	case SessionBackendRedis:
		if config.Session.Redis.Addr == "" {
			return fmt.Errorf("session.redis.addr is required when session.backend=redis")
		}
	default:
		return fmt.Errorf("invalid session backend: %s", config.Session.Backend)
	}

	if config.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}

	if config.CSRF.TokenBytes < 32 {
		return fmt.Errorf("csrf.token_bytes must be at least 32 (got %d)", config.CSRF.TokenBytes)
	}
	if config.CSRF.MaxAge <= 0 {
		return fmt.Errorf("csrf.max_age must be positive")
	}

	if config.Auth.BcryptCost < bcrypt.MinCost || config.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("invalid bcrypt cost: %d", config.Auth.BcryptCost)
	}

	if config.RateLimit.Login.RequestsPerMinute < 1 {
		return fmt.Errorf("rate_limit.login.requests_per_minute must be at least 1")
	}

	return nil
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateAndHash(&config); err != nil {
		return nil, err
	}

	config.resolveDataPaths()

	return &config, nil
}

// resolveDataPaths derives file paths from DataDir when not explicitly set.
func (c *Config) resolveDataPaths() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = filepath.Join(c.DataDir, "modofit.db")
	}
	if c.Session.SQLitePath == "" {
		c.Session.SQLitePath = filepath.Join(c.DataDir, "sessions.db")
	}
}

// IsProduction reports whether the service runs with production hardening
// (Secure cookies, terse error pages).
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
