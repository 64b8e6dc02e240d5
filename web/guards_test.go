package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modofit/storage"
)

func (e *testEnv) getJSON(path string) (*http.Response, string) {
	e.t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	require.NoError(e.t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := e.client.Do(req)
	require.NoError(e.t, err)
	return resp, readBody(e.t, resp)
}

func TestRequireAuthenticatedRedirectsBrowsers(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/usuario/dashboard",
		"/usuario/facturacion",
		"/venta/checkout",
	} {
		resp, err := env.noFollow().Get(env.ts.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "path %s", path)
		assert.Equal(t, "/usuario/login", resp.Header.Get("Location"), "path %s", path)
	}
}

func TestRequireAuthenticatedAnswersAPIWith401(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/usuario/dashboard", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := env.noFollow().Do(req)
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "no_autenticado")
}

func TestReturnToCapturedAcrossLogin(t *testing.T) {
	env := newTestEnv(t)
	env.createUser("ana@example.com", storage.RoleClient)

	// The anonymous visit to a guarded page records where to come back to.
	resp, err := env.noFollow().Get(env.ts.URL + "/venta/checkout")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	stored := env.storeSession(env.sessionID())
	assert.Equal(t, "/venta/checkout", stored.Data.ReturnTo)

	// Login lands on the captured target instead of the dashboard.
	token := env.pageToken("/usuario/login")
	resp2 := env.postFormNoFollow("/usuario/login", url.Values{
		"_csrf":    {token},
		"email":    {"ana@example.com"},
		"password": {testPassword},
	})
	assert.Equal(t, http.StatusSeeOther, resp2.StatusCode)
	assert.Equal(t, "/venta/checkout", resp2.Header.Get("Location"))
}

func TestRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.createUser("cliente@example.com", storage.RoleClient)
	env.createUser("admin@example.com", storage.RoleAdmin)

	t.Run("anonymous gets uniform 403", func(t *testing.T) {
		resp, body := env.getJSON("/api/admin/usuarios")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Contains(t, body, "prohibido")
	})

	t.Run("client role gets the same 403", func(t *testing.T) {
		resp, _ := env.login("cliente@example.com", testPassword)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp2, body := env.getJSON("/api/admin/usuarios")
		assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
		assert.Contains(t, body, "prohibido")
	})

	t.Run("admin passes", func(t *testing.T) {
		resp, _ := env.login("admin@example.com", testPassword)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp2, body := env.getJSON("/api/admin/usuarios")
		assert.Equal(t, http.StatusOK, resp2.StatusCode)
		assert.Contains(t, body, "cliente@example.com")
		// Password hashes never appear in the listing.
		assert.NotContains(t, body, "$2a$")
		assert.NotContains(t, body, "password")
	})
}

func TestRequireOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser("ana@example.com", storage.RoleClient)
	other := env.createUser("otro@example.com", storage.RoleClient)
	env.createUser("admin@example.com", storage.RoleAdmin)

	_, err := env.sales.CreateSubscription(context.Background(), owner.UserID, "SUB001")
	require.NoError(t, err)

	t.Run("anonymous API caller gets 401", func(t *testing.T) {
		resp, body := env.getJSON(fmt.Sprintf("/api/venta/suscripciones/%d", owner.UserID))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Contains(t, body, "no_autenticado")
	})

	t.Run("owner reads own subscriptions", func(t *testing.T) {
		resp, _ := env.login("ana@example.com", testPassword)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp2, body := env.getJSON(fmt.Sprintf("/api/venta/suscripciones/%d", owner.UserID))
		assert.Equal(t, http.StatusOK, resp2.StatusCode)
		assert.Contains(t, body, "SUB001")
	})

	t.Run("other user is denied", func(t *testing.T) {
		resp, _ := env.login("otro@example.com", testPassword)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp2, body := env.getJSON(fmt.Sprintf("/api/venta/suscripciones/%d", owner.UserID))
		assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
		assert.Contains(t, body, "prohibido")
		assert.NotContains(t, body, "SUB001")
	})

	t.Run("non-integer parameter is denied", func(t *testing.T) {
		resp, _ := env.login("otro@example.com", testPassword)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp2, _ := env.getJSON("/api/venta/suscripciones/abc")
		assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
	})

	t.Run("admin bypasses ownership", func(t *testing.T) {
		resp, _ := env.login("admin@example.com", testPassword)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp2, body := env.getJSON(fmt.Sprintf("/api/venta/suscripciones/%d", owner.UserID))
		assert.Equal(t, http.StatusOK, resp2.StatusCode)
		assert.Contains(t, body, "SUB001")

		resp3, body3 := env.getJSON(fmt.Sprintf("/api/venta/suscripciones/%d", other.UserID))
		assert.Equal(t, http.StatusOK, resp3.StatusCode)
		assert.Contains(t, body3, `"suscripciones":[]`)
	})
}
