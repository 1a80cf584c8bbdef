package users

import (
	"time"

	"github.com/gatehouse-iam/gatehouse/internal/roles"
)

// Lifecycle mirrors the role/permission lifecycle variant for users.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "active"
	LifecycleDeleted Lifecycle = "deleted"
)

// User represents a user account. PasswordHash never leaves the service
// layer; response mapping omits it.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Phone        string
	Lifecycle    Lifecycle
	Roles        []roles.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Deleted reports whether the account is soft-deleted.
func (u User) Deleted() bool {
	return u.Lifecycle == LifecycleDeleted
}

// RoleIDs returns the assigned role IDs.
func (u User) RoleIDs() []int64 {
	ids := make([]int64, 0, len(u.Roles))
	for _, r := range u.Roles {
		ids = append(ids, r.ID)
	}
	return ids
}

// RegisterInput carries registration data. Password is plaintext here and
// is hashed before any store sees it.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	RoleIDs  []int64
}

// UpdateInput carries a partial user update; nil fields stay untouched.
type UpdateInput struct {
	Name  *string
	Email *string
	Phone *string
	// RoleIDs replaces the role set when ReplaceRoles is true.
	RoleIDs      []int64
	ReplaceRoles bool
}
