package roles

import (
	"time"

	"github.com/gatehouse-iam/gatehouse/internal/permissions"
)

// Lifecycle mirrors the permission lifecycle variant for roles.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleDeleted Lifecycle = "deleted"
)

// Role represents a named bundle of permissions assignable to users.
// The permission set is a join-record association, not an embedded graph.
type Role struct {
	ID          int64
	Name        string
	Lifecycle   Lifecycle
	Permissions []permissions.Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Deleted reports whether the role is soft-deleted.
func (r Role) Deleted() bool {
	return r.Lifecycle == LifecycleDeleted
}

// PermissionIDs returns the associated permission IDs.
func (r Role) PermissionIDs() []int64 {
	ids := make([]int64, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		ids = append(ids, p.ID)
	}
	return ids
}

// UpdateInput carries a partial role update; nil fields stay untouched.
type UpdateInput struct {
	Name          *string
	PermissionIDs []int64
	// ReplacePermissions distinguishes "clear the set" from "leave it alone"
	// when PermissionIDs is empty.
	ReplacePermissions bool
}
