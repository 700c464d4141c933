package shared

import (
	"context"

	"github.com/google/uuid"
)

// Principal describes the authenticated actor for the duration of a request.
// Roles and Permissions are the sets snapshotted into the access token at
// mint time; later role changes do not affect an already-issued token.
type Principal struct {
	UserID      uuid.UUID
	TenantID    uuid.UUID
	Username    string
	Email       string
	Roles       []string
	Permissions []string
}

// HasPermission reports whether the principal carries the given scope.
func (p *Principal) HasPermission(scope string) bool {
	if p == nil {
		return false
	}
	for _, s := range p.Permissions {
		if s == scope {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the authenticated principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. A nil result
// means the request is unauthenticated and must be denied by default.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
