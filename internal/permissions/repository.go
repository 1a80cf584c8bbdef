package permissions

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Repository defines data access methods for permissions.
type Repository interface {
	List(ctx context.Context, params shared.ListParams) ([]Permission, int, error)
	Search(ctx context.Context, filters SearchFilters, params shared.ListParams) ([]Permission, int, error)
	Get(ctx context.Context, id int64) (Permission, error)
	FindIDByName(ctx context.Context, name string) (int64, error)
	Exists(ctx context.Context, id int64) (bool, error)
	Create(ctx context.Context, name string) (Permission, error)
	Update(ctx context.Context, id int64, name string) (Permission, error)
	SoftDelete(ctx context.Context, id int64) (Permission, error)
	BulkSoftDelete(ctx context.Context, ids []int64) (int64, error)
	PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

const permissionColumns = `id, name, lifecycle, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository provides PostgreSQL backed persistence.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// List returns active permissions in insertion order.
func (r *repository) List(ctx context.Context, params shared.ListParams) ([]Permission, int, error) {
	return r.Search(ctx, SearchFilters{}, params)
}

// Search filters permissions by name substring and lifecycle.
func (r *repository) Search(ctx context.Context, filters SearchFilters, params shared.ListParams) ([]Permission, int, error) {
	params = params.Normalize()

	where := ` WHERE lifecycle = 'active'`
	args := []interface{}{}
	argCount := 0

	if filters.Deleted != nil {
		lifecycle := string(LifecycleActive)
		if *filters.Deleted {
			lifecycle = string(LifecycleDeleted)
		}
		argCount++
		where = ` WHERE lifecycle = $` + strconv.Itoa(argCount)
		args = append(args, lifecycle)
	}
	if filters.Name != "" {
		argCount++
		where += ` AND name ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filters.Name+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM permissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + permissionColumns + ` FROM permissions` + where + ` ORDER BY id ASC`
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

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		perms = append(perms, p)
	}
	return perms, total, rows.Err()
}

// Get fetches a permission by ID regardless of lifecycle, keeping
// soft-deleted records addressable for audit.
func (r *repository) Get(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.NotFoundError("permission", strconv.FormatInt(id, 10))
		}
		return Permission{}, err
	}
	return p, nil
}

// FindIDByName returns the ID of the active permission holding the name.
func (r *repository) FindIDByName(ctx context.Context, name string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM permissions WHERE name = $1 AND lifecycle = 'active'`, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

// Exists reports whether an active permission with the ID exists.
func (r *repository) Exists(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE id = $1 AND lifecycle = 'active')`, id).Scan(&found)
	return found, err
}

// Create inserts an active permission. The partial unique index on active
// names is authoritative; a late conflict surfaces here as 23505.
func (r *repository) Create(ctx context.Context, name string) (Permission, error) {
	now := time.Now().UTC()
	var p Permission
	err := r.db.QueryRow(ctx,
		`INSERT INTO permissions (name, lifecycle, created_at, updated_at) VALUES ($1, 'active', $2, $2) RETURNING `+permissionColumns,
		name, now,
	).Scan(&p.ID, &p.Name, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Permission{}, shared.ConflictError("permission", "permission name "+name+" has already been taken")
		}
		return Permission{}, err
	}
	return p, nil
}

// Update renames an active permission.
func (r *repository) Update(ctx context.Context, id int64, name string) (Permission, error) {
	var p Permission
	err := r.db.QueryRow(ctx,
		`UPDATE permissions SET name = $1, updated_at = $2 WHERE id = $3 AND lifecycle = 'active' RETURNING `+permissionColumns,
		name, time.Now().UTC(), id,
	).Scan(&p.ID, &p.Name, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.NotFoundError("permission", strconv.FormatInt(id, 10))
		}
		if isUniqueViolation(err) {
			return Permission{}, shared.ConflictError("permission", "permission name "+name+" has already been taken")
		}
		return Permission{}, err
	}
	return p, nil
}

// SoftDelete marks an active permission deleted. Deleting an already
// deleted record reports NotFound because the guard matches active rows only.
func (r *repository) SoftDelete(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := r.db.QueryRow(ctx,
		`UPDATE permissions SET lifecycle = 'deleted', updated_at = $1 WHERE id = $2 AND lifecycle = 'active' RETURNING `+permissionColumns,
		time.Now().UTC(), id,
	).Scan(&p.ID, &p.Name, &p.Lifecycle, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.NotFoundError("permission", strconv.FormatInt(id, 10))
		}
		return Permission{}, err
	}
	return p, nil
}

// BulkSoftDelete soft-deletes every active permission in the set in one
// statement and returns the number of rows affected. Unknown or already
// deleted IDs are skipped.
func (r *repository) BulkSoftDelete(ctx context.Context, ids []int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE permissions SET lifecycle = 'deleted', updated_at = $1 WHERE id = ANY($2) AND lifecycle = 'active'`,
		time.Now().UTC(), ids,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeDeleted physically removes soft-deleted rows past the retention
// window. Join rows referencing them go first.
func (r *repository) PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	if _, err := r.db.Exec(ctx,
		`DELETE FROM role_permissions WHERE permission_id IN (SELECT id FROM permissions WHERE lifecycle = 'deleted' AND updated_at < $1)`,
		cutoff,
	); err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM permissions WHERE lifecycle = 'deleted' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
