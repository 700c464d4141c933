package rbac

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagodirecto/crm/internal/shared"
)

// Repository defines persistence for roles, permissions and their
// assignments.
type Repository interface {
	// RolesForUser and ScopesForUser feed the permission resolver. They run
	// on the unscoped pool because resolution happens during login, before
	// any tenant session exists.
	RolesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
	ScopesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)

	ListRoles(ctx context.Context, tenantID uuid.UUID) ([]Role, error)
	GetRole(ctx context.Context, id uuid.UUID) (Role, error)
	CreateRole(ctx context.Context, role Role) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id uuid.UUID) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, perm Permission) (Permission, error)
	UpdatePermission(ctx context.Context, id uuid.UUID, scope, description string) (Permission, error)

	RolePermissions(ctx context.Context, roleID uuid.UUID) ([]Permission, error)
	AttachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	DetachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	AssignRole(ctx context.Context, userID, roleID uuid.UUID) error
	RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error
}

// PGRepository implements Repository using PostgreSQL. Management queries go
// through the tenant-scoped session when the request carries one; resolution
// queries always use the pool. The fallback is held as a Querier so tests
// can substitute one.
type PGRepository struct {
	pool shared.Querier
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)
