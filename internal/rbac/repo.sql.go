package rbac

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pagodirecto/crm/internal/shared"
)

// RolesForUser returns the names of all roles assigned to the user.
func (r *PGRepository) RolesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ro.name
		 FROM crm_roles ro
		 JOIN crm_user_roles ur ON ur.role_id = ro.id
		 WHERE ur.user_id = $1
		 ORDER BY ro.name`, userID)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}

// ScopesForUser returns the deduplicated union of permission scopes across
// every role the user holds.
func (r *PGRepository) ScopesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.scope
		 FROM crm_permissions p
		 JOIN crm_role_permissions rp ON rp.permission_id = p.id
		 JOIN crm_user_roles ur ON ur.role_id = rp.role_id
		 WHERE ur.user_id = $1
		 ORDER BY p.scope`, userID)
	if err != nil {
		return nil, err
	}
	return collectStrings(rows)
}

const roleColumns = `id, tenant_id, name, description, hierarchy_level, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description,
		&role.HierarchyLevel, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles of a tenant ordered by hierarchy then name.
func (r *PGRepository) ListRoles(ctx context.Context, tenantID uuid.UUID) ([]Role, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	rows, err := q.Query(ctx,
		`SELECT `+roleColumns+` FROM crm_roles
		 WHERE tenant_id = $1
		 ORDER BY hierarchy_level DESC, name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *PGRepository) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	return scanRole(q.QueryRow(ctx, `SELECT `+roleColumns+` FROM crm_roles WHERE id = $1`, id))
}

// CreateRole inserts a new role.
func (r *PGRepository) CreateRole(ctx context.Context, role Role) (Role, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx,
		`INSERT INTO crm_roles (id, tenant_id, name, description, hierarchy_level, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now(), now())
		 RETURNING `+roleColumns,
		uuid.New(), role.TenantID, role.Name, role.Description, role.HierarchyLevel)
	created, err := scanRole(row)
	if err != nil {
		return Role{}, mapConstraintErr(err)
	}
	return created, nil
}

// UpdateRole updates name, description and hierarchy level.
func (r *PGRepository) UpdateRole(ctx context.Context, role Role) (Role, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx,
		`UPDATE crm_roles
		 SET name = $2, description = $3, hierarchy_level = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+roleColumns,
		role.ID, role.Name, role.Description, role.HierarchyLevel)
	updated, err := scanRole(row)
	if err != nil {
		return Role{}, mapConstraintErr(err)
	}
	return updated, nil
}

// DeleteRole removes the role and its assignments.
func (r *PGRepository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	q := shared.QuerierFromContext(ctx, r.pool)
	tag, err := q.Exec(ctx, `DELETE FROM crm_roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const permColumns = `id, resource, action, scope, description, created_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Resource, &p.Action, &p.Scope, &p.Description, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// ListPermissions returns the permission catalogue ordered by scope.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	rows, err := q.Query(ctx, `SELECT `+permColumns+` FROM crm_permissions ORDER BY scope`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EnsurePermission upserts a permission on its (resource, action) key.
func (r *PGRepository) EnsurePermission(ctx context.Context, perm Permission) (Permission, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx,
		`INSERT INTO crm_permissions (id, resource, action, scope, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (resource, action)
		 DO UPDATE SET scope = EXCLUDED.scope, description = EXCLUDED.description
		 RETURNING `+permColumns,
		uuid.New(), perm.Resource, perm.Action, perm.Scope, perm.Description)
	return scanPermission(row)
}

// UpdatePermission changes scope and description only; resource and action
// are immutable once a permission exists.
func (r *PGRepository) UpdatePermission(ctx context.Context, id uuid.UUID, scope, description string) (Permission, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	row := q.QueryRow(ctx,
		`UPDATE crm_permissions SET scope = $2, description = $3
		 WHERE id = $1
		 RETURNING `+permColumns, id, scope, description)
	return scanPermission(row)
}

// RolePermissions returns the permissions attached to a role.
func (r *PGRepository) RolePermissions(ctx context.Context, roleID uuid.UUID) ([]Permission, error) {
	q := shared.QuerierFromContext(ctx, r.pool)
	rows, err := q.Query(ctx,
		`SELECT p.id, p.resource, p.action, p.scope, p.description, p.created_at
		 FROM crm_permissions p
		 JOIN crm_role_permissions rp ON rp.permission_id = p.id
		 WHERE rp.role_id = $1
		 ORDER BY p.scope`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// AttachPermission links a permission to a role.
func (r *PGRepository) AttachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	q := shared.QuerierFromContext(ctx, r.pool)
	_, err := q.Exec(ctx,
		`INSERT INTO crm_role_permissions (role_id, permission_id)
		 VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, permissionID)
	return err
}

// DetachPermission unlinks a permission from a role.
func (r *PGRepository) DetachPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	q := shared.QuerierFromContext(ctx, r.pool)
	_, err := q.Exec(ctx,
		`DELETE FROM crm_role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	return err
}

// AssignRole grants a role to a user.
func (r *PGRepository) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	q := shared.QuerierFromContext(ctx, r.pool)
	_, err := q.Exec(ctx,
		`INSERT INTO crm_user_roles (user_id, role_id, assigned_at)
		 VALUES ($1, $2, now()) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole revokes a role from a user. The change takes effect on the next
// token mint, not for tokens already issued.
func (r *PGRepository) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	q := shared.QuerierFromContext(ctx, r.pool)
	_, err := q.Exec(ctx,
		`DELETE FROM crm_user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

func collectStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func mapConstraintErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrDuplicate
	}
	return err
}
