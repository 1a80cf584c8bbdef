package permissions

import "time"

// Lifecycle is the explicit entity state. Every query path names which
// variants it includes, so a soft delete cannot leak back through a code
// path that forgot to filter a flag.
type Lifecycle string

const (
	// LifecycleActive marks a live record.
	LifecycleActive Lifecycle = "active"
	// LifecycleDeleted marks a soft-deleted record kept for audit.
	LifecycleDeleted Lifecycle = "deleted"
)

// Permission represents an atomic named capability grantable to a role.
type Permission struct {
	ID        int64
	Name      string
	Lifecycle Lifecycle
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deleted reports whether the permission is soft-deleted.
func (p Permission) Deleted() bool {
	return p.Lifecycle == LifecycleDeleted
}

// SearchFilters narrows permission searches.
type SearchFilters struct {
	// Name filters by case-insensitive substring.
	Name string
	// Deleted selects a lifecycle; nil means active records only.
	Deleted *bool
}
