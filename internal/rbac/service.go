package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Service orchestrates role and permission operations and implements the
// permission resolver consumed by the token issuer.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Resolve expands the user's role memberships into role names and the union
// of their permission scopes. No caching: each call re-reads assignments so
// role changes take effect on the next token mint.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID) ([]string, []string, error) {
	roles, err := s.repo.RolesForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	scopes, err := s.repo.ScopesForUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return roles, scopes, nil
}

// ListRoles returns all roles of the tenant.
func (s *Service) ListRoles(ctx context.Context, tenantID uuid.UUID) ([]Role, error) {
	return s.repo.ListRoles(ctx, tenantID)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role after trimming and validating the name.
func (s *Service) CreateRole(ctx context.Context, role Role) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role.Description = strings.TrimSpace(role.Description)
	return s.repo.CreateRole(ctx, role)
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, role Role) (Role, error) {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role.Description = strings.TrimSpace(role.Description)
	return s.repo.UpdateRole(ctx, role)
}

// DeleteRole removes a role by id.
func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteRole(ctx, id)
}

// ListPermissions returns the permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermission upserts a permission, deriving the scope string from the
// resource and action when none is supplied.
func (s *Service) EnsurePermission(ctx context.Context, perm Permission) (Permission, error) {
	perm.Resource = strings.TrimSpace(strings.ToLower(perm.Resource))
	if perm.Resource == "" {
		return Permission{}, errors.New("rbac: permission resource required")
	}
	if !perm.Action.Valid() {
		return Permission{}, errors.New("rbac: unknown permission action")
	}
	if perm.Scope == "" {
		perm.Scope = perm.Resource + ":" + strings.ToLower(string(perm.Action))
	}
	return s.repo.EnsurePermission(ctx, perm)
}

// UpdatePermission changes the mutable fields of a permission.
func (s *Service) UpdatePermission(ctx context.Context, id uuid.UUID, scope, description string) (Permission, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return Permission{}, errors.New("rbac: permission scope required")
	}
	return s.repo.UpdatePermission(ctx, id, scope, strings.TrimSpace(description))
}

// SetRolePermissions replaces the permission set of a role, attaching the
// missing links and detaching the stale ones.
func (s *Service) SetRolePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	current, err := s.repo.RolePermissions(ctx, roleID)
	if err != nil {
		return err
	}
	existing := make(map[uuid.UUID]struct{}, len(current))
	for _, p := range current {
		existing[p.ID] = struct{}{}
	}
	keep := make(map[uuid.UUID]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if err := s.repo.AttachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if err := s.repo.DetachPermission(ctx, roleID, id); err != nil {
				return err
			}
		}
	}
	return nil
}

// AssignRole grants a role to a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return s.repo.AssignRole(ctx, userID, roleID)
}

// RemoveRole revokes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return s.repo.RemoveRole(ctx, userID, roleID)
}
