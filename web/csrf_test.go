package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modofit/session"
)

func TestGenerateCSRFToken(t *testing.T) {
	a, err := generateCSRFToken(64)
	require.NoError(t, err)
	b, err := generateCSRFToken(64)
	require.NoError(t, err)

	assert.Len(t, a, 128)
	assert.NotEqual(t, a, b)

	// Non-positive sizes fall back to the default entropy.
	c, err := generateCSRFToken(0)
	require.NoError(t, err)
	assert.Len(t, c, 2*defaultCSRFTokenBytes)
}

func TestCSRFTokenExpired(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	tests := []struct {
		name     string
		issuedAt time.Time
		expired  bool
	}{
		{"zero timestamp", time.Time{}, true},
		{"just issued", now, false},
		{"inside window", now.Add(-59 * time.Minute), false},
		{"past max age", now.Add(-61 * time.Minute), true},
		{"slightly in the future", now.Add(time.Minute), false},
		{"absurdly in the future", now.Add(10 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expired, env.server.csrfTokenExpired(tt.issuedAt, now))
		})
	}
}

func TestEnsureCSRFTokenIdempotent(t *testing.T) {
	env := newTestEnv(t)
	sess := &session.Session{}

	rotated, err := env.server.ensureCSRFToken(sess)
	require.NoError(t, err)
	assert.True(t, rotated)
	token := sess.Data.CSRFToken
	assert.Len(t, token, 2*env.cfg.CSRF.TokenBytes)

	rotated, err = env.server.ensureCSRFToken(sess)
	require.NoError(t, err)
	assert.False(t, rotated)
	assert.Equal(t, token, sess.Data.CSRFToken)

	// An aged-out token is replaced.
	sess.Data.CSRFIssuedAt = time.Now().Add(-2 * time.Hour)
	rotated, err = env.server.ensureCSRFToken(sess)
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.NotEqual(t, token, sess.Data.CSRFToken)
}

func TestExtractCSRFCandidatePrecedence(t *testing.T) {
	newReq := func(body url.Values, query string, headers map[string]string) *http.Request {
		target := "/venta/confirmar"
		if query != "" {
			target += "?" + query
		}
		req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(body.Encode()))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req
	}

	headers := map[string]string{
		"X-CSRF-Token": "from-header",
		"X-XSRF-Token": "from-alt-header",
	}

	t.Run("body beats everything", func(t *testing.T) {
		req := newReq(url.Values{"_csrf": {"from-body"}}, "_csrf=from-query", headers)
		assert.Equal(t, "from-body", extractCSRFCandidate(req))
	})

	t.Run("query beats headers", func(t *testing.T) {
		req := newReq(url.Values{}, "_csrf=from-query", headers)
		assert.Equal(t, "from-query", extractCSRFCandidate(req))
	})

	t.Run("primary header beats alternate", func(t *testing.T) {
		req := newReq(url.Values{}, "", headers)
		assert.Equal(t, "from-header", extractCSRFCandidate(req))
	})

	t.Run("alternate header as last resort", func(t *testing.T) {
		req := newReq(url.Values{}, "", map[string]string{"X-XSRF-Token": "from-alt-header"})
		assert.Equal(t, "from-alt-header", extractCSRFCandidate(req))
	})

	t.Run("nothing supplied", func(t *testing.T) {
		req := newReq(url.Values{}, "", nil)
		assert.Equal(t, "", extractCSRFCandidate(req))
	})
}

func TestCompareTokensTimingSafe(t *testing.T) {
	assert.True(t, compareTokensTimingSafe("abc123", "abc123"))
	assert.False(t, compareTokensTimingSafe("abc123", "abc124"))
	assert.False(t, compareTokensTimingSafe("", "abc123"))
	assert.False(t, compareTokensTimingSafe("abc123", ""))
	assert.False(t, compareTokensTimingSafe("abc", "abc123"))
}

func TestPostWithoutSessionCookieRejected(t *testing.T) {
	env := newTestEnv(t)

	// No jar: the request carries no session cookie at all.
	resp, err := http.PostForm(env.ts.URL+"/registro", url.Values{
		"_csrf":    {"0011223344556677"},
		"nombre":   {"Ana"},
		"email":    {"ana@example.com"},
		"password": {testPassword},
	})
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "403")
}

func TestPostWithoutSessionCookieRejectedJSON(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/registro",
		strings.NewReader("nombre=Ana"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Expired bool   `json:"expired"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "EBADCSRFTOKEN", payload.Error)
	assert.NotEmpty(t, payload.Message)
	assert.False(t, payload.Expired)
}

func TestPostWithWrongTokenRejectedAndBurned(t *testing.T) {
	env := newTestEnv(t)

	goodToken := env.pageToken("/registro")
	sessID := env.sessionID()
	require.NotEmpty(t, sessID)

	form := url.Values{
		"_csrf":    {strings.Repeat("ab", 32)},
		"nombre":   {"Ana"},
		"email":    {"ana@example.com"},
		"password": {testPassword},
	}
	resp := env.postFormNoFollow("/registro", form)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// The rejection rotated the stored token, so even the previously valid
	// one is dead now.
	stored := env.storeSession(env.sessionID())
	assert.NotEqual(t, goodToken, stored.Data.CSRFToken)

	form.Set("_csrf", goodToken)
	resp = env.postFormNoFollow("/registro", form)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPostWithValidTokenAccepted(t *testing.T) {
	env := newTestEnv(t)

	token := env.pageToken("/registro")
	resp := env.postFormNoFollow("/registro", url.Values{
		"_csrf":    {token},
		"nombre":   {"Ana"},
		"email":    {"ana@example.com"},
		"password": {testPassword},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/usuario/login", resp.Header.Get("Location"))
}

func TestTokenAcceptedFromQueryAndHeader(t *testing.T) {
	env := newTestEnv(t)

	t.Run("query parameter", func(t *testing.T) {
		token := env.pageToken("/registro")
		// Empty form: verification passes via the query candidate, then the
		// handler rejects the payload itself.
		resp, err := env.client.PostForm(env.ts.URL+"/registro?_csrf="+token, url.Values{})
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("header", func(t *testing.T) {
		token := env.pageToken("/registro")
		req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/registro", nil)
		require.NoError(t, err)
		req.Header.Set("X-CSRF-Token", token)
		resp, err := env.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestExpiredTokenRejectedWithExpiredFlag(t *testing.T) {
	env := newTestEnv(t)

	// Plant an established session whose token matches but aged out.
	sessID := strings.Repeat("5c", 16)
	token := strings.Repeat("e1", 32)
	now := time.Now()
	require.NoError(t, env.store.Save(context.Background(), &session.Session{
		ID: sessID,
		Data: session.Data{
			CSRFToken:    token,
			CSRFIssuedAt: now.Add(-2 * time.Hour),
		},
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}))

	req, err := http.NewRequest(http.MethodPost, env.ts.URL+"/registro",
		strings.NewReader(url.Values{"_csrf": {token}}.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: env.cfg.Session.CookieName, Value: sessID})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var payload struct {
		Error   string `json:"error"`
		Expired bool   `json:"expired"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, "EBADCSRFTOKEN", payload.Error)
	assert.True(t, payload.Expired)

	// The stored token was replaced during the rejection.
	stored := env.storeSession(sessID)
	assert.NotEqual(t, token, stored.Data.CSRFToken)
}

func TestSafeMethodsBypassVerification(t *testing.T) {
	env := newTestEnv(t)

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		req, err := http.NewRequest(method, env.ts.URL+"/", nil)
		require.NoError(t, err)
		resp, err := env.client.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.NotEqual(t, http.StatusForbidden, resp.StatusCode, "method %s", method)
	}
}
