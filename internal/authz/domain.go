package authz

import "time"

// User carries the identity fields needed for access-control decisions.
// The password hash never enters this package.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Role is a named permission bundle assigned to a user.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Permission is an atomic capability granted through a role.
type Permission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UserContext is the resolved access-control graph for one user: the user,
// their live roles, and the deduplicated union of permissions across those
// roles, sorted by permission ID for reproducible output.
type UserContext struct {
	User        User         `json:"user"`
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"permissions"`
}

// PermissionNames returns the effective permission set as names.
func (uc UserContext) PermissionNames() []string {
	names := make([]string, 0, len(uc.Permissions))
	for _, p := range uc.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// HasPermission reports whether the effective set contains the named permission.
func (uc UserContext) HasPermission(name string) bool {
	for _, p := range uc.Permissions {
		if p.Name == name {
			return true
		}
	}
	return false
}
