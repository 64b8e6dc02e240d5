package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is the session lifetime used when Config.TTL is zero.
const DefaultTTL = 24 * time.Hour

// DefaultCookieName is the session cookie name used when Config.CookieName is empty.
const DefaultCookieName = "modofit_session"

// idLength is the length in hex characters of a session ID (16 random bytes).
const idLength = 32

// Config controls cookie attributes and housekeeping for a Manager.
type Config struct {
	CookieName      string
	CookiePath      string
	TTL             time.Duration
	Secure          bool // set the Secure cookie attribute (production)
	CleanupInterval time.Duration
}

// Manager binds a Store to HTTP cookie handling. It owns session ID
// generation, expiry, regeneration and destruction, and runs a background
// sweep that removes expired rows from the store.
type Manager struct {
	store  Store
	cfg    Config
	logger *zap.SugaredLogger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a Manager over the given store. Zero-value config fields
/// are replaced with defaults: cookie "modofit_session" on "/", 24h TTL,
// cleanup every 10 minutes.
func NewManager(store Store, cfg Config, logger *zap.SugaredLogger) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}

	m := &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupWorker()

	return m
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.cfg.TTL
}

// CookieName returns the configured session cookie name.
func (m *Manager) CookieName() string {
	return m.cfg.CookieName
}

// Get returns the session for the request's cookie, or a fresh unsaved
// session when the cookie is absent, malformed, unknown, or expired. It never
// returns a usable expired session: anything stale is discarded and replaced.
func (m *Manager) Get(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || !isValidID(cookie.Value) {
		return m.newSession(), nil
	}

	s, err := m.store.Get(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return m.newSession(), nil
		}
		return nil, fmt.Errorf("session lookup: %w", err)
	}

	if s.Expired(time.Now()) {
		// Best effort removal; the cleanup worker catches leftovers.
		if derr := m.store.Delete(r.Context(), s.ID); derr != nil {
			m.logger.Warnw("Failed to delete expired session", "error", derr)
		}
		return m.newSession(), nil
	}

	return s, nil
}

// Save persists the session and refreshes the cookie. The expiry is pushed
// out to now+TTL on every save (rolling expiration).
func (m *Manager) Save(ctx context.Context, w http.ResponseWriter, s *Session) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.ExpiresAt = now.Add(m.cfg.TTL)

	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	s.fresh = false

	m.setCookie(w, s.ID, s.ExpiresAt)
	return nil
}

// Regenerate swaps the session identifier while persisting the Data the
// caller left on the session. The new record is written before the old one is
// removed so a crash between the two steps cannot lose the session. On
// failure the old ID is restored and an error returned; callers must treat
// that as a failed privilege transition. If the old record cannot be removed
// after the new one is live, the new record is rolled back and the cookie
// cleared so the possibly-fixated old ID is never left usable.
func (m *Manager) Regenerate(ctx context.Context, w http.ResponseWriter, s *Session) error {
	oldID := s.ID

	newID, err := generateID()
	if err != nil {
		return fmt.Errorf("session id generation: %w", err)
	}

	now := time.Now()
	s.ID = newID
	s.CreatedAt = now
	s.ExpiresAt = now.Add(m.cfg.TTL)

	if err := m.store.Save(ctx, s); err != nil {
		s.ID = oldID
		return fmt.Errorf("session regenerate save: %w", err)
	}

	if oldID != "" && !s.fresh {
		if err := m.store.Delete(ctx, oldID); err != nil {
			// Fail closed: do not leave two live IDs for one session.
			if derr := m.store.Delete(ctx, newID); derr != nil {
				m.logger.Errorf("Failed to roll back regenerated session %s: %v", anonymizeID(newID), derr)
			}
			s.ID = oldID
			m.clearCookie(w)
			return fmt.Errorf("session regenerate delete old: %w", err)
		}
	}

	s.fresh = false
	m.setCookie(w, s.ID, s.ExpiresAt)
	return nil
}

// Destroy removes the session from the store and expires the cookie. The
// cookie is cleared unconditionally, even when the store delete fails.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, s *Session) error {
	m.clearCookie(w)

	if s.ID == "" || s.fresh {
		return nil
	}
	if err := m.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("session destroy: %w", err)
	}
	return nil
}

// Close stops the cleanup worker and closes the underlying store.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	return m.store.Close()
}

func (m *Manager) newSession() *Session {
	id, err := generateID()
	if err != nil {
		// crypto/rand failing means the process has no usable entropy
		// source. There is no safe fallback for session identifiers.
		panic(fmt.Sprintf("session: cannot generate session id: %v", err))
	}
	now := time.Now()
	return &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
		fresh:     true,
	}
}

func (m *Manager) cleanupWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n, err := m.store.Cleanup(ctx, time.Now())
			cancel()
			if err != nil {
				m.logger.Warnw("Session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Infow("Expired sessions removed", "count", n)
			}
		}
	}
}

func (m *Manager) setCookie(w http.ResponseWriter, id string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     m.cfg.CookiePath,
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     m.cfg.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// generateID returns a new 32-character hex session identifier from 16 bytes
// of CSPRNG output.
func generateID() (string, error) {
	b := make([]byte, idLength/2)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hexLookup marks valid lowercase hex characters for ID validation.
var hexLookup [256]bool

func init() {
	for _, c := range "0123456789abcdef" {
		hexLookup[c] = true
	}
}

// isValidID checks that an ID from a cookie is exactly idLength lowercase hex
// characters before it is allowed anywhere near a store query.
func isValidID(id string) bool {
	if len(id) != idLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !hexLookup[id[i]] {
			return false
		}
	}
	return true
}

// anonymizeID truncates a session ID for logging.
func anonymizeID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
