package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests. Sessions do
// not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

// Get retrieves a session by ID.
func (ms *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	s, ok := ms.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Copy so callers cannot mutate the stored record without Save.
	cp := *s
	return &cp, nil
}

// Save inserts or replaces a session.
func (ms *MemoryStore) Save(_ context.Context, s *Session) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cp := *s
	ms.sessions[s.ID] = &cp
	return nil
}

// Delete removes a session. Unknown IDs are ignored.
func (ms *MemoryStore) Delete(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.sessions, id)
	return nil
}

// Cleanup removes sessions that expired before the given time.
func (ms *MemoryStore) Cleanup(_ context.Context, before time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var removed int64
	for id, s := range ms.sessions {
		if s.ExpiresAt.Before(before) {
			delete(ms.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the memory store.
func (ms *MemoryStore) Close() error {
	return nil
}

// Len returns the number of live sessions. Test helper.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.sessions)
}
