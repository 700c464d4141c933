package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pagodirecto/crm/internal/platform/httpx"
	"github.com/pagodirecto/crm/internal/shared"
)

// Middleware authorizes requests against the permission snapshot carried by
// the access token. It deliberately does not re-read the database: a role
// change after mint takes effect on the next token, never retroactively.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny passes when the principal holds at least one required scope.
func (m Middleware) RequireAny(scopes ...string) func(http.Handler) http.Handler {
	normalized := normalizeScopes(scopes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, scope := range normalized {
				if principal.HasPermission(scope) {
					next.ServeHTTP(w, r)
					return
				}
			}
			m.deny(w, r, principal, normalized)
		})
	}
}

// RequireAll passes only when the principal holds every required scope.
func (m Middleware) RequireAll(scopes ...string) func(http.Handler) http.Handler {
	normalized := normalizeScopes(scopes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, scope := range normalized {
				if !principal.HasPermission(scope) {
					m.deny(w, r, principal, normalized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, principal *shared.Principal, required []string) {
	if m.Logger != nil {
		m.Logger.Warn("permission denied",
			slog.String("path", r.URL.Path),
			slog.String("user_id", principal.UserID.String()),
			slog.Any("required", required))
	}
	httpx.RespondError(w, shared.ErrPermissionDenied)
}

func normalizeScopes(scopes []string) []string {
	normalized := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(strings.ToLower(s))
		if s != "" {
			normalized = append(normalized, s)
		}
	}
	return normalized
}
