package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagodirecto/crm/internal/shared"
)

func newAuthenticatedRequest(t *testing.T, tokens *Tokens, u *User, scopes []string) *http.Request {
	t.Helper()
	raw, err := tokens.IssueAccess(u, []string{"administrator"}, scopes, time.Now().UTC())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	return req
}

func TestAuthenticateInjectsPrincipal(t *testing.T) {
	tokens := newTestTokens(t, 5*time.Minute, time.Hour)
	u := testUser()
	mw := Middleware{Tokens: tokens}

	var got *shared.Principal
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = shared.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newAuthenticatedRequest(t, tokens, u, []string{"customers:read"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, u.TenantID, got.TenantID)
	assert.Equal(t, u.Username, got.Username)
	assert.True(t, got.HasPermission("customers:read"))
	assert.False(t, got.HasPermission("customers:delete"))
}

func TestAuthenticateRejects(t *testing.T) {
	tokens := newTestTokens(t, 5*time.Minute, time.Hour)
	mw := Middleware{Tokens: tokens}
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	cases := map[string]func(r *http.Request){
		"missing header": func(r *http.Request) {},
		"wrong scheme": func(r *http.Request) {
			r.Header.Set("Authorization", "Basic abc")
		},
		"empty token": func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer ")
		},
		"garbage token": func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer not.a.jwt")
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			mutate(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	tokens := newTestTokens(t, 5*time.Minute, time.Hour)
	raw, err := tokens.IssueAccess(testUser(), nil, nil, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	mw := Middleware{Tokens: tokens}
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestPropagateTenantRequiresPrincipal(t *testing.T) {
	mw := Middleware{}
	handler := mw.PropagateTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc123")
	token, ok := bearerToken(req)
	assert.True(t, ok)
	assert.Equal(t, "abc123", token)
}
