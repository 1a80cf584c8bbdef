package users

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/gatehouse-iam/gatehouse/internal/guard"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// RoleChecker reports whether an active role exists.
// Satisfied by the role repository.
type RoleChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Hasher is the one-way hashing collaborator used only at the registration
// boundary; validation logic never touches it.
type Hasher interface {
	Hash(plaintext string) (string, error)
}

// Invalidator bumps the authorization cache after a mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service handles user business logic.
type Service struct {
	repo       Repository
	roles      RoleChecker
	hasher     Hasher
	audit      *shared.AuditLogger
	invalidate Invalidator
	logger     *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, roleChecker RoleChecker, hasher Hasher, audit *shared.AuditLogger, invalidate Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roleChecker, hasher: hasher, audit: audit, invalidate: invalidate, logger: logger}
}

// List returns active users.
func (s *Service) List(ctx context.Context, params shared.ListParams) ([]User, int, error) {
	return s.repo.List(ctx, params)
}

// Get fetches a user by ID.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

// FindByEmail fetches a user by exact email match.
func (s *Service) FindByEmail(ctx context.Context, email string) (User, error) {
	return s.repo.FindByEmail(ctx, email)
}

// Register creates a new user. The email uniqueness pre-check and role
// reference check run first; the password is hashed before the store sees
// it; the partial unique index still decides races at commit time.
func (s *Service) Register(ctx context.Context, input RegisterInput) (User, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	if input.Email == "" {
		return User{}, shared.ValidationError("email required")
	}
	if input.Password == "" {
		return User{}, shared.ValidationError("password required")
	}

	if err := guard.CheckUnique(ctx, "user", "email", input.Email, "", s.repo.FindIDByEmail); err != nil {
		return User{}, err
	}
	if err := guard.CheckReferences(ctx, "role", input.RoleIDs, s.roles.Exists); err != nil {
		return User{}, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return User{}, err
	}

	created, err := s.repo.Create(ctx, User{
		ID:           uuid.NewString(),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Phone:        strings.TrimSpace(input.Phone),
	}, input.RoleIDs)
	if err != nil {
		return User{}, err
	}
	s.recordMutation(ctx, "user.register", created.ID, map[string]any{
		"email":   created.Email,
		"roleIds": created.RoleIDs(),
	})
	return created, nil
}

// Update applies a partial update; unspecified fields retain prior values.
// Email changes re-run the uniqueness check excluding the user itself.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (User, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return User{}, err
	}
	if input.Email != nil {
		trimmed := strings.TrimSpace(*input.Email)
		if trimmed == "" {
			return User{}, shared.ValidationError("email required")
		}
		input.Email = &trimmed
		if err := guard.CheckUnique(ctx, "user", "email", trimmed, id, s.repo.FindIDByEmail); err != nil {
			return User{}, err
		}
	}
	if input.ReplaceRoles {
		if err := guard.CheckReferences(ctx, "role", input.RoleIDs, s.roles.Exists); err != nil {
			return User{}, err
		}
	}
	updated, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return User{}, err
	}
	s.recordMutation(ctx, "user.update", updated.ID, map[string]any{
		"email":   updated.Email,
		"roleIds": updated.RoleIDs(),
	})
	return updated, nil
}

func (s *Service) recordMutation(ctx context.Context, action, id string, meta map[string]any) {
	actor := "system"
	if p := shared.PrincipalFromContext(ctx); p != nil {
		actor = p.UserID
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor,
			Action:   action,
			Entity:   "user",
			EntityID: id,
			Meta:     meta,
		}); err != nil && s.logger != nil {
			s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
		}
	}
	if s.invalidate != nil {
		if err := s.invalidate.Bump(ctx); err != nil && s.logger != nil {
			s.logger.Warn("authz cache bump failed", slog.String("action", action), slog.Any("error", err))
		}
	}
}
