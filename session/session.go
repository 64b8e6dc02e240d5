// Package session provides server-side session management for ModoFit with
// pluggable persistence backends (memory, SQLite, PostgreSQL, Redis).
//
// Sessions are identified by an opaque 32-character hex ID carried in a
// cookie. All state lives server side; the cookie never contains data.
package session

import (
	"context"
	"errors"
	"time"
)

// Storage error constants
var (
	// ErrNotFound is returned when a session ID is not present in the store
	ErrNotFound = errors.New("session not found")

	// ErrInvalidSessionID is returned when a session ID fails format validation
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Flash is a one-shot message rendered on the next page view and then dropped.
type Flash struct {
	Kind    string `json:"kind"` // "success", "error", "info"
	Message string `json:"message"`
}

// Data is the serializable payload of a session. Regeneration replaces the
// session ID but persists whatever Data the caller left in place, so field
// carry-forward across a privilege change is always explicit at the call site.
type Data struct {
	// Identity. UserID == 0 means anonymous.
	UserID int64  `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`

	// CSRF token bound to this session, with its issue time.
	CSRFToken    string    `json:"csrf_token,omitempty"`
	CSRFIssuedAt time.Time `json:"csrf_issued_at,omitempty"`

	// Login bookkeeping.
	LoginAttempts int       `json:"login_attempts,omitempty"`
	LastLogin     time.Time `json:"last_login,omitempty"`

	// URL to return to after a login prompted by an auth guard.
	ReturnTo string `json:"return_to,omitempty"`

	Flashes []Flash `json:"flashes,omitempty"`
}

// Session is a single server-side session record.
type Session struct {
	ID        string
	Data      Data
	CreatedAt time.Time
	ExpiresAt time.Time

	// fresh marks sessions created this request that have never been saved.
	fresh bool
}

// Authenticated reports whether the session carries a logged-in identity.
func (s *Session) Authenticated() bool {
	return s.Data.UserID != 0
}

// IsAdmin reports whether the session identity has the admin role.
func (s *Session) IsAdmin() bool {
	return s.Authenticated() && s.Data.Role == RoleAdmin
}

// Expired reports whether the session is past its expiry at the given time.
// A zero ExpiresAt is treated as expired: sessions without a recorded expiry
// are never trusted.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt.IsZero() || now.After(s.ExpiresAt)
}

// Fresh reports whether the session was created during this request and has
// not yet been persisted.
func (s *Session) Fresh() bool {
	return s.fresh
}

// AddFlash queues a one-shot message for the next rendered page.
func (s *Session) AddFlash(kind, message string) {
	s.Data.Flashes = append(s.Data.Flashes, Flash{Kind: kind, Message: message})
}

// TakeFlashes returns queued flash messages and clears them.
func (s *Session) TakeFlashes() []Flash {
	f := s.Data.Flashes
	s.Data.Flashes = nil
	return f
}

// Role names
const (
	RoleClient = "Cliente"
	RoleAdmin  = "Admin"
)

// Store is the persistence contract for sessions. Implementations must treat
// an unknown ID as ErrNotFound, not as an error condition.
type Store interface {
	// Get retrieves the session with the given ID.
	Get(ctx context.Context, id string) (*Session, error)

	// Save inserts or replaces the session record.
	Save(ctx context.Context, s *Session) error

	// Delete removes the session. Deleting an absent ID is not an error.
	Delete(ctx context.Context, id string) error

	// Cleanup removes sessions that expired before the given time and
	// returns how many were removed.
	Cleanup(ctx context.Context, before time.Time) (int64, error)

	// Close releases backend resources.
	Close() error
}
