package auth

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, f *serviceFixture) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	h := NewHandler(logger, f.service)
	mw := Middleware{Tokens: f.service.tokens, Logger: logger}

	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		h.MountPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate)
			h.MountProtectedRoutes(r)
		})
	})
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginEndpoint(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{RotateRefresh: true})
	router := newTestRouter(t, f)

	rec := postJSON(t, router, "/auth/login", map[string]string{
		"login":    f.user.Username,
		"password": testPassword,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var pair TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pair))
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, f.user.Username, pair.User.Username)
}

func TestLoginEndpointBadCredentials(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{})
	router := newTestRouter(t, f)

	rec := postJSON(t, router, "/auth/login", map[string]string{
		"login":    f.user.Username,
		"password": "wrong-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestLoginEndpointValidationCollapsesTo401(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{})
	router := newTestRouter(t, f)

	// A short password fails validation but answers exactly like a genuine
	// mismatch.
	rec := postJSON(t, router, "/auth/login", map[string]string{
		"login":    f.user.Username,
		"password": "short",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid credentials")
}

func TestLoginEndpointLocked(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{})
	router := newTestRouter(t, f)

	for i := 0; i < 5; i++ {
		postJSON(t, router, "/auth/login", map[string]string{
			"login": f.user.Username, "password": "wrong-password",
		}, "")
	}
	rec := postJSON(t, router, "/auth/login", map[string]string{
		"login": f.user.Username, "password": testPassword,
	}, "")
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Contains(t, rec.Body.String(), "account locked until")
}

func TestRefreshEndpoint(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{RotateRefresh: true})
	router := newTestRouter(t, f)

	pair, err := f.login(t, testPassword)
	require.NoError(t, err)

	rec := postJSON(t, router, "/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var next TokenPair
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &next))
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The rotated-out token answers 401 from now on.
	rec = postJSON(t, router, "/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshEndpointUnknownToken(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{RotateRefresh: true})
	router := newTestRouter(t, f)

	// A well-formed value that was never issued answers the same 401 as a
	// revoked or malformed one.
	never, err := f.service.tokens.NewRefreshValue()
	require.NoError(t, err)
	rec := postJSON(t, router, "/auth/refresh", map[string]string{
		"refresh_token": never,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestLogoutEndpointRequiresAuth(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{})
	router := newTestRouter(t, f)

	rec := postJSON(t, router, "/auth/logout", map[string]string{
		"refresh_token": "whatever",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{RotateRefresh: true})
	router := newTestRouter(t, f)

	pair, err := f.login(t, testPassword)
	require.NoError(t, err)

	rec := postJSON(t, router, "/auth/logout", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, pair.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = postJSON(t, router, "/auth/refresh", map[string]string{
		"refresh_token": pair.RefreshToken,
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAllEndpoint(t *testing.T) {
	f := newServiceFixture(t, ServiceConfig{RotateRefresh: true})
	router := newTestRouter(t, f)

	first, err := f.login(t, testPassword)
	require.NoError(t, err)
	second, err := f.login(t, testPassword)
	require.NoError(t, err)

	rec := postJSON(t, router, "/auth/logout_all", struct{}{}, first.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	for _, raw := range []string{first.RefreshToken, second.RefreshToken} {
		rec := postJSON(t, router, "/auth/refresh", map[string]string{"refresh_token": raw}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}
