package roles

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-iam/gatehouse/internal/permissions"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Repository defines data access methods for roles.
type Repository interface {
	List(ctx context.Context, nameFilter string, params shared.ListParams) ([]Role, int, error)
	Get(ctx context.Context, id int64) (Role, error)
	FindIDByName(ctx context.Context, name string) (int64, error)
	Exists(ctx context.Context, id int64) (bool, error)
	CountUserReferences(ctx context.Context, roleID int64) (int64, error)
	Create(ctx context.Context, name string, permissionIDs []int64) (Role, error)
	Update(ctx context.Context, id int64, input UpdateInput) (Role, error)
	SoftDelete(ctx context.Context, id int64) (Role, error)
	PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository provides PostgreSQL backed persistence.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// List returns active roles in insertion order, optionally filtered by a
// name substring.
func (r *repository) List(ctx context.Context, nameFilter string, params shared.ListParams) ([]Role, int, error) {
	params = params.Normalize()

	where := ` WHERE lifecycle = 'active'`
	args := []interface{}{}
	argCount := 0
	if nameFilter != "" {
		argCount++
		where += ` AND name ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+nameFilter+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM roles`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, name, lifecycle, created_at, updated_at FROM roles` + where + ` ORDER BY id ASC`
	argCount++
	query += ` LIMIT $` + strconv.Itoa(argCount)
	args = append(args, params.Limit)
	argCount++
	query += ` OFFSET $` + strconv.Itoa(argCount)
	args = append(args, params.Offset())

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Lifecycle, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, 0, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range roles {
		perms, err := r.loadPermissions(ctx, r.db, roles[i].ID)
		if err != nil {
			return nil, 0, err
		}
		roles[i].Permissions = perms
	}
	return roles, total, nil
}

// Get fetches a role by ID regardless of lifecycle, with its active
// permissions attached.
func (r *repository) Get(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx, `SELECT id, name, lifecycle, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.Lifecycle, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFoundError("role", strconv.FormatInt(id, 10))
		}
		return Role{}, err
	}
	perms, err := r.loadPermissions(ctx, r.db, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms
	return role, nil
}

// FindIDByName returns the ID of the active role holding the name.
func (r *repository) FindIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1 AND lifecycle = 'active'`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// Exists reports whether an active role with the ID exists.
func (r *repository) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1 AND lifecycle = 'active')`, id).Scan(&found)
	return found, err
}

// CountUserReferences counts live users still holding the role.
func (r *repository) CountUserReferences(ctx context.Context, roleID int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_roles ur JOIN users u ON u.id = ur.user_id AND u.lifecycle = 'active' WHERE ur.role_id = $1`,
		roleID,
	).Scan(&count)
	return count, err
}

// Create inserts a role and its permission associations in one transaction.
func (r *repository) Create(ctx context.Context, name string, permissionIDs []int64) (Role, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Role{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	var role Role
	err = tx.QueryRow(ctx,
		`INSERT INTO roles (name, lifecycle, created_at, updated_at) VALUES ($1, 'active', $2, $2) RETURNING id, name, lifecycle, created_at, updated_at`,
		name, now,
	).Scan(&role.ID, &role.Name, &role.Lifecycle, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, shared.ConflictError("role", "role name "+name+" has already been taken")
		}
		return Role{}, err
	}

	for _, permID := range dedupeIDs(permissionIDs) {
		if _, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			role.ID, permID,
		); err != nil {
			return Role{}, err
		}
	}

	perms, err := r.loadPermissions(ctx, tx, role.ID)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms

	if err := tx.Commit(ctx); err != nil {
		return Role{}, err
	}
	return role, nil
}

// Update applies a partial update. The permission set is replaced by
// attaching missing pairs and detaching stale ones rather than rewriting
// the whole association.
func (r *repository) Update(ctx context.Context, id int64, input UpdateInput) (Role, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Role{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var role Role
	if input.Name != nil {
		err = tx.QueryRow(ctx,
			`UPDATE roles SET name = $1, updated_at = $2 WHERE id = $3 AND lifecycle = 'active' RETURNING id, name, lifecycle, created_at, updated_at`,
			*input.Name, time.Now().UTC(), id,
		).Scan(&role.ID, &role.Name, &role.Lifecycle, &role.CreatedAt, &role.UpdatedAt)
	} else {
		err = tx.QueryRow(ctx,
			`SELECT id, name, lifecycle, created_at, updated_at FROM roles WHERE id = $1 AND lifecycle = 'active'`,
			id,
		).Scan(&role.ID, &role.Name, &role.Lifecycle, &role.CreatedAt, &role.UpdatedAt)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFoundError("role", strconv.FormatInt(id, 10))
		}
		if isUniqueViolation(err) {
			return Role{}, shared.ConflictError("role", "role name "+*input.Name+" has already been taken")
		}
		return Role{}, err
	}

	if input.ReplacePermissions {
		if err := r.replacePermissions(ctx, tx, id, input.PermissionIDs); err != nil {
			return Role{}, err
		}
		// The association change must be visible on the entity even when
		// the name branch above did not touch the row.
		if input.Name == nil {
			err = tx.QueryRow(ctx,
				`UPDATE roles SET updated_at = $1 WHERE id = $2 RETURNING updated_at`,
				time.Now().UTC(), id,
			).Scan(&role.UpdatedAt)
			if err != nil {
				return Role{}, err
			}
		}
	}

	perms, err := r.loadPermissions(ctx, tx, id)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = perms

	if err := tx.Commit(ctx); err != nil {
		return Role{}, err
	}
	return role, nil
}

// SoftDelete marks an active role deleted.
func (r *repository) SoftDelete(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.db.QueryRow(ctx,
		`UPDATE roles SET lifecycle = 'deleted', updated_at = $1 WHERE id = $2 AND lifecycle = 'active' RETURNING id, name, lifecycle, created_at, updated_at`,
		time.Now().UTC(), id,
	).Scan(&role.ID, &role.Name, &role.Lifecycle, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.NotFoundError("role", strconv.FormatInt(id, 10))
		}
		return Role{}, err
	}
	return role, nil
}

// PurgeDeleted physically removes soft-deleted roles past retention,
// detaching join rows first.
func (r *repository) PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	if _, err := r.db.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id IN (SELECT id FROM roles WHERE lifecycle = 'deleted' AND updated_at < $1)`,
		cutoff,
	); err != nil {
		return 0, err
	}
	if _, err := r.db.Exec(ctx,
		`DELETE FROM user_roles WHERE role_id IN (SELECT id FROM roles WHERE lifecycle = 'deleted' AND updated_at < $1)`,
		cutoff,
	); err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE lifecycle = 'deleted' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *repository) loadPermissions(ctx context.Context, q queryer, roleID int64) ([]permissions.Permission, error) {
	rows, err := q.Query(ctx,
		`SELECT p.id, p.name, p.lifecycle, p.created_at, p.updated_at
		   FROM role_permissions rp
		   JOIN permissions p ON p.id = rp.permission_id AND p.lifecycle = 'active'
		  WHERE rp.role_id = $1
		  ORDER BY p.id ASC`,
		roleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []permissions.Permission
	for rows.Next() {
		var p permissions.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// replacePermissions diffs the stored set against the requested one,
// attaching missing pairs and detaching stale ones.
func (r *repository) replacePermissions(ctx context.Context, q queryer, roleID int64, permissionIDs []int64) error {
	rows, err := q.Query(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1`, roleID)
	if err != nil {
		return err
	}
	existing := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		existing[id] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	keep := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range dedupeIDs(permissionIDs) {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if _, err := q.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				roleID, id,
			); err != nil {
				return err
			}
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if _, err := q.Exec(ctx,
				`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
				roleID, id,
			); err != nil {
				return err
			}
		}
	}
	return nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
