package rbac

import (
	"time"

	"github.com/google/uuid"
)

// Action is the closed set of permission verbs.
type Action string

const (
	ActionCreate  Action = "CREATE"
	ActionRead    Action = "READ"
	ActionUpdate  Action = "UPDATE"
	ActionDelete  Action = "DELETE"
	ActionExecute Action = "EXECUTE"
	ActionAdmin   Action = "ADMIN"
)

// Valid reports whether the action belongs to the closed set.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute, ActionAdmin:
		return true
	}
	return false
}

// Role groups permissions within a tenant. HierarchyLevel ranks roles
// relative to each other; no cycle constraints exist.
type Role struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Name           string
	Description    string
	HierarchyLevel int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Permission is a (resource, action, scope) triple. Once referenced by a role
// only its scope and description may change.
type Permission struct {
	ID          uuid.UUID
	Resource    string
	Action      Action
	Scope       string
	Description string
	CreatedAt   time.Time
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    uuid.UUID
	RoleID    uuid.UUID
	CreatedAt time.Time
}
