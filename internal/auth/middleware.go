package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pagodirecto/crm/internal/platform/httpx"
	"github.com/pagodirecto/crm/internal/shared"
)

// Middleware authenticates requests and propagates the tenant context.
type Middleware struct {
	Tokens   *Tokens
	Sessions *shared.TenantSessions
	Logger   *slog.Logger
}

// Authenticate extracts the bearer token, validates it and stores the
// resulting principal in the request context. Any failure leaves the request
// unauthenticated and is rejected here: protected routes deny by default.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		claims, err := m.Tokens.ValidateAccess(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("reject access token", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		// Parse errors are impossible here; ValidateAccess checked both ids.
		userID, _ := uuid.Parse(claims.Subject)
		tenantID, _ := uuid.Parse(claims.TenantID)
		principal := &shared.Principal{
			UserID:      userID,
			TenantID:    tenantID,
			Username:    claims.Username,
			Email:       claims.Email,
			Roles:       claims.Roles,
			Permissions: claims.Permissions,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// PropagateTenant binds a tenant-scoped database session to the request after
// authentication succeeded and before any handler query runs. The session is
// released, with its variables cleared, on every exit path including panics.
func (m Middleware) PropagateTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := shared.PrincipalFromContext(r.Context())
		if principal == nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		sess, err := m.Sessions.Acquire(r.Context(), principal)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("acquire tenant session", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		defer sess.Release(r.Context())
		next.ServeHTTP(w, r.WithContext(shared.ContextWithTenantSession(r.Context(), sess)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
