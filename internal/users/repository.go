package users

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-iam/gatehouse/internal/roles"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Repository defines data access methods for users.
type Repository interface {
	List(ctx context.Context, params shared.ListParams) ([]User, int, error)
	Get(ctx context.Context, id string) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindIDByEmail(ctx context.Context, email string) (string, error)
	Create(ctx context.Context, user User, roleIDs []int64) (User, error)
	Update(ctx context.Context, id string, input UpdateInput) (User, error)
}

const userColumns = `id, name, email, password_hash, COALESCE(phone, ''), lifecycle, created_at, updated_at`

type repository struct {
	db *pgxpool.Pool
}

// NewRepository provides PostgreSQL backed persistence.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// List returns active users in insertion order with their roles attached.
func (r *repository) List(ctx context.Context, params shared.ListParams) ([]User, int, error) {
	params = params.Normalize()

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE lifecycle = 'active'`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE lifecycle = 'active' ORDER BY created_at ASC, id ASC LIMIT $1 OFFSET $2`,
		params.Limit, params.Offset(),
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range out {
		assigned, err := r.loadRoles(ctx, r.db, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].Roles = assigned
	}
	return out, total, nil
}

// Get fetches a user by ID with roles attached.
func (r *repository) Get(ctx context.Context, id string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.NotFoundError("user", id)
		}
		return User{}, err
	}
	assigned, err := r.loadRoles(ctx, r.db, u.ID)
	if err != nil {
		return User{}, err
	}
	u.Roles = assigned
	return u, nil
}

// FindByEmail fetches an active user by exact email match. The comparison
// is deliberately case-sensitive, matching observed behaviour.
func (r *repository) FindByEmail(ctx context.Context, email string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 AND lifecycle = 'active'`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, &notFoundByEmail{email: email}
		}
		return User{}, err
	}
	assigned, err := r.loadRoles(ctx, r.db, u.ID)
	if err != nil {
		return User{}, err
	}
	u.Roles = assigned
	return u, nil
}

// FindIDByEmail returns the ID of the active user holding the email.
func (r *repository) FindIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE email = $1 AND lifecycle = 'active'`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrNotFound
		}
		return "", err
	}
	return id, nil
}

// Create inserts the user and their role associations in one transaction.
func (r *repository) Create(ctx context.Context, user User, roleIDs []int64) (User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	row := tx.QueryRow(ctx,
		`INSERT INTO users (id, name, email, password_hash, phone, lifecycle, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), 'active', $6, $6)
		 RETURNING `+userColumns,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Phone, now,
	)
	created, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, shared.ConflictError("user", "email "+user.Email+" has already been taken")
		}
		return User{}, err
	}

	for _, roleID := range dedupeIDs(roleIDs) {
		if _, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			created.ID, roleID,
		); err != nil {
			return User{}, err
		}
	}

	assigned, err := r.loadRoles(ctx, tx, created.ID)
	if err != nil {
		return User{}, err
	}
	created.Roles = assigned

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return created, nil
}

// Update applies a partial update; only supplied fields are written.
func (r *repository) Update(ctx context.Context, id string, input UpdateInput) (User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	set := `updated_at = $1`
	args := []interface{}{time.Now().UTC()}
	argCount := 1
	if input.Name != nil {
		argCount++
		set += `, name = $` + strconv.Itoa(argCount)
		args = append(args, *input.Name)
	}
	if input.Email != nil {
		argCount++
		set += `, email = $` + strconv.Itoa(argCount)
		args = append(args, *input.Email)
	}
	if input.Phone != nil {
		argCount++
		set += `, phone = NULLIF($` + strconv.Itoa(argCount) + `, '')`
		args = append(args, *input.Phone)
	}
	argCount++
	args = append(args, id)

	row := tx.QueryRow(ctx,
		`UPDATE users SET `+set+` WHERE id = $`+strconv.Itoa(argCount)+` AND lifecycle = 'active' RETURNING `+userColumns,
		args...,
	)
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.NotFoundError("user", id)
		}
		if isUniqueViolation(err) {
			return User{}, shared.ConflictError("user", "email has already been taken")
		}
		return User{}, err
	}

	if input.ReplaceRoles {
		if err := r.replaceRoles(ctx, tx, id, input.RoleIDs); err != nil {
			return User{}, err
		}
	}

	assigned, err := r.loadRoles(ctx, tx, id)
	if err != nil {
		return User{}, err
	}
	updated.Roles = assigned

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return updated, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *repository) loadRoles(ctx context.Context, q queryer, userID string) ([]roles.Role, error) {
	rows, err := q.Query(ctx,
		`SELECT ro.id, ro.name, ro.lifecycle, ro.created_at, ro.updated_at
		   FROM user_roles ur
		   JOIN roles ro ON ro.id = ur.role_id AND ro.lifecycle = 'active'
		  WHERE ur.user_id = $1
		  ORDER BY ro.id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assigned []roles.Role
	for rows.Next() {
		var role roles.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Lifecycle, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		assigned = append(assigned, role)
	}
	return assigned, rows.Err()
}

func (r *repository) replaceRoles(ctx context.Context, q queryer, userID string, roleIDs []int64) error {
	rows, err := q.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, userID)
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

	keep := make(map[int64]struct{}, len(roleIDs))
	for _, id := range dedupeIDs(roleIDs) {
		keep[id] = struct{}{}
		if _, ok := existing[id]; !ok {
			if _, err := q.Exec(ctx,
				`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				userID, id,
			); err != nil {
				return err
			}
		}
	}
	for id := range existing {
		if _, ok := keep[id]; !ok {
			if _, err := q.Exec(ctx,
				`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`,
				userID, id,
			); err != nil {
				return err
			}
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone, &u.Lifecycle, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// notFoundByEmail keeps the email in the message while still matching
// shared.ErrNotFound.
type notFoundByEmail struct {
	email string
}

func (e *notFoundByEmail) Error() string {
	return "user with email " + e.email + " not found"
}

func (e *notFoundByEmail) Unwrap() error { return shared.ErrNotFound }

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
