package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testManager(t *testing.T, store Store, cfg Config) *Manager {
	t.Helper()
	m := NewManager(store, cfg, zap.NewNop().Sugar())
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestManagerGetWithoutCookie(t *testing.T) {
	m := testManager(t, NewMemoryStore(), Config{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s, err := m.Get(req)
	require.NoError(t, err)

	assert.True(t, s.Fresh())
	assert.False(t, s.Authenticated())
	assert.Len(t, s.ID, 32)
}

func TestManagerSaveAndGetRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	m := testManager(t, store, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	s, err := m.Get(req)
	require.NoError(t, err)
	s.Data.UserID = 42
	s.Data.Role = RoleClient

	require.NoError(t, m.Save(req.Context(), rec, s))
	assert.False(t, s.Fresh())

	cookie := sessionCookie(t, rec, DefaultCookieName)
	require.NotNil(t, cookie, "Save must set the session cookie")
	assert.Equal(t, s.ID, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.False(t, cookie.Secure, "Secure is off unless configured")

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.AddCookie(cookie)
	s2, err := m.Get(req2)
	require.NoError(t, err)
	assert.Equal(t, s.ID, s2.ID)
	assert.Equal(t, int64(42), s2.Data.UserID)
	assert.True(t, s2.Authenticated())
}

func TestManagerSecureCookie(t *testing.T) {
	m := testManager(t, NewMemoryStore(), Config{Secure: true})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	s, err := m.Get(req)
	require.NoError(t, err)
	require.NoError(t, m.Save(req.Context(), rec, s))

	cookie := sessionCookie(t, rec, DefaultCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}

func TestManagerGetRejectsMalformedCookie(t *testing.T) {
	m := testManager(t, NewMemoryStore(), Config{})

	testCases := []struct {
		name  string
		value string
	}{
		{"too short", "abc123"},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		{"uppercase hex", "ABCDEF0123456789ABCDEF0123456789"},
		{"non hex", "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"},
		{"sql injection", "' OR '1'='1 --xxxxxxxxxxxxxxxxxx"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: tc.value})

			s, err := m.Get(req)
			require.NoError(t, err)
			assert.True(t, s.Fresh(), "malformed cookie must yield a fresh session")
			assert.NotEqual(t, tc.value, s.ID)
		})
	}
}

func TestManagerGetDiscardsExpiredSession(t *testing.T) {
	store := NewMemoryStore()
	m := testManager(t, store, Config{})

	expired := &Session{
		ID:        "00112233445566778899aabbccddeeff",
		Data:      Data{UserID: 7},
		CreatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, store.Save(context.Background(), expired))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: expired.ID})

	s, err := m.Get(req)
	require.NoError(t, err)
	assert.True(t, s.Fresh())
	assert.NotEqual(t, expired.ID, s.ID)
	assert.False(t, s.Authenticated())

	_, err = store.Get(context.Background(), expired.ID)
	assert.ErrorIs(t, err, ErrNotFound, "expired session must be removed from the store")
}

func TestManagerRegenerateSwapsIDKeepsData(t *testing.T) {
	store := NewMemoryStore()
	m := testManager(t, store, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	s, err := m.Get(req)
	require.NoError(t, err)
	s.Data.UserID = 5
	s.Data.CSRFToken = "deadbeef"
	require.NoError(t, m.Save(req.Context(), rec, s))
	oldID := s.ID

	rec2 := httptest.NewRecorder()
	require.NoError(t, m.Regenerate(req.Context(), rec2, s))

	assert.NotEqual(t, oldID, s.ID)
	assert.Equal(t, int64(5), s.Data.UserID)
	assert.Equal(t, "deadbeef", s.Data.CSRFToken)

	_, err = store.Get(context.Background(), oldID)
	assert.ErrorIs(t, err, ErrNotFound, "old session ID must no longer resolve")

	loaded, err := store.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), loaded.Data.UserID)

	cookie := sessionCookie(t, rec2, DefaultCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, s.ID, cookie.Value)
}

func TestManagerRegenerateFreshSessionSkipsOldDelete(t *testing.T) {
	store := NewMemoryStore()
	m := testManager(t, store, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	s, err := m.Get(req)
	require.NoError(t, err)
	require.True(t, s.Fresh())
	oldID := s.ID

	require.NoError(t, m.Regenerate(req.Context(), rec, s))
	assert.NotEqual(t, oldID, s.ID)
	assert.Equal(t, 1, store.Len(), "only the regenerated session may exist")
}

// failingStore wraps a Store and fails selected operations.
type failingStore struct {
	Store
	failSave   bool
	failDelete bool
}

var errStoreDown = errors.New("store down")

func (f *failingStore) Save(ctx context.Context, s *Session) error {
	if f.failSave {
		return errStoreDown
	}
	return f.Store.Save(ctx, s)
}

func (f *failingStore) Delete(ctx context.Context, id string) error {
	if f.failDelete {
		return errStoreDown
	}
	return f.Store.Delete(ctx, id)
}

func TestManagerRegenerateSaveFailureRestoresOldID(t *testing.T) {
	inner := NewMemoryStore()
	fs := &failingStore{Store: inner}
	m := testManager(t, fs, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	s, err := m.Get(req)
	require.NoError(t, err)
	require.NoError(t, m.Save(req.Context(), rec, s))
	oldID := s.ID

	fs.failSave = true
	rec2 := httptest.NewRecorder()
	err = m.Regenerate(req.Context(), rec2, s)
	require.Error(t, err)
	assert.Equal(t, oldID, s.ID, "failed regeneration must leave the old ID in place")
}

func TestManagerRegenerateOldDeleteFailureClearsCookie(t *testing.T) {
	inner := NewMemoryStore()
	fs := &failingStore{Store: inner}
	m := testManager(t, fs, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	s, err := m.Get(req)
	require.NoError(t, err)
	require.NoError(t, m.Save(req.Context(), rec, s))

	fs.failDelete = true
	rec2 := httptest.NewRecorder()
	err = m.Regenerate(req.Context(), rec2, s)
	require.Error(t, err)

	cookie := sessionCookie(t, rec2, DefaultCookieName)
	require.NotNil(t, cookie, "cookie must be cleared when the old ID cannot be retired")
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestManagerDestroy(t *testing.T) {
	store := NewMemoryStore()
	m := testManager(t, store, Config{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	s, err := m.Get(req)
	require.NoError(t, err)
	s.Data.UserID = 9
	require.NoError(t, m.Save(req.Context(), rec, s))

	rec2 := httptest.NewRecorder()
	require.NoError(t, m.Destroy(req.Context(), rec2, s))

	cookie := sessionCookie(t, rec2, DefaultCookieName)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)

	_, err = store.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := generateID()
		require.NoError(t, err)
		require.Len(t, id, idLength)
		assert.False(t, seen[id], "session IDs must not repeat")
		seen[id] = true
	}
}

func TestSessionExpiredZeroTime(t *testing.T) {
	s := &Session{}
	assert.True(t, s.Expired(time.Now()), "missing expiry must count as expired")
}

func TestTakeFlashesClears(t *testing.T) {
	s := &Session{}
	s.AddFlash("success", "listo")
	s.AddFlash("error", "fallo")

	flashes := s.TakeFlashes()
	require.Len(t, flashes, 2)
	assert.Equal(t, "listo", flashes[0].Message)
	assert.Empty(t, s.TakeFlashes())
}
