package authz

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Repository loads the user-roles-permissions graph.
type Repository interface {
	LoadUserGraph(ctx context.Context, userID string) (UserContext, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository provides PostgreSQL backed persistence.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// LoadUserGraph reads the user, their live roles, and the permissions those
// roles grant inside one repeatable-read transaction, so the result reflects
// a single logical snapshot rather than interleaving with concurrent writes.
func (r *repository) LoadUserGraph(ctx context.Context, userID string) (UserContext, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return UserContext{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var uc UserContext
	err = tx.QueryRow(ctx,
		`SELECT id, name, email, COALESCE(phone, ''), created_at, updated_at FROM users WHERE id = $1 AND lifecycle = 'active'`,
		userID,
	).Scan(&uc.User.ID, &uc.User.Name, &uc.User.Email, &uc.User.Phone, &uc.User.CreatedAt, &uc.User.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserContext{}, shared.NotFoundError("user", userID)
		}
		return UserContext{}, err
	}

	rows, err := tx.Query(ctx,
		`SELECT r.id, r.name, p.id, p.name
		   FROM user_roles ur
		   JOIN roles r ON r.id = ur.role_id AND r.lifecycle = 'active'
		   LEFT JOIN role_permissions rp ON rp.role_id = r.id
		   LEFT JOIN permissions p ON p.id = rp.permission_id AND p.lifecycle = 'active'
		  WHERE ur.user_id = $1
		  ORDER BY r.id, p.id`,
		userID,
	)
	if err != nil {
		return UserContext{}, err
	}
	defer rows.Close()

	seenRoles := make(map[int64]struct{})
	seenPerms := make(map[int64]struct{})
	for rows.Next() {
		var (
			role   Role
			permID *int64
			name   *string
		)
		if err := rows.Scan(&role.ID, &role.Name, &permID, &name); err != nil {
			return UserContext{}, err
		}
		if _, ok := seenRoles[role.ID]; !ok {
			seenRoles[role.ID] = struct{}{}
			uc.Roles = append(uc.Roles, role)
		}
		if permID == nil || name == nil {
			continue
		}
		if _, ok := seenPerms[*permID]; ok {
			continue
		}
		seenPerms[*permID] = struct{}{}
		uc.Permissions = append(uc.Permissions, Permission{ID: *permID, Name: *name})
	}
	if err := rows.Err(); err != nil {
		return UserContext{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return UserContext{}, err
	}
	return uc, nil
}
