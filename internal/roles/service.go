package roles

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gatehouse-iam/gatehouse/internal/guard"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// PermissionChecker reports whether an active permission exists.
// Satisfied by the permission repository.
type PermissionChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// Invalidator bumps the authorization cache after a mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service handles role business logic.
type Service struct {
	repo       Repository
	perms      PermissionChecker
	audit      *shared.AuditLogger
	invalidate Invalidator
	logger     *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, perms PermissionChecker, audit *shared.AuditLogger, invalidate Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, perms: perms, audit: audit, invalidate: invalidate, logger: logger}
}

// List returns active roles, optionally filtered by a name substring.
func (s *Service) List(ctx context.Context, nameFilter string, params shared.ListParams) ([]Role, int, error) {
	return s.repo.List(ctx, nameFilter, params)
}

// Get fetches a role by ID, including soft-deleted records.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a role after validating that every supplied permission ID
// resolves to an active permission. All offending IDs are reported at once.
func (s *Service) Create(ctx context.Context, name string, permissionIDs []int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, shared.ValidationError("role name required")
	}
	if err := guard.CheckUnique(ctx, "role", "name", name, "", s.lookupOwner); err != nil {
		return Role{}, err
	}
	if err := guard.CheckReferences(ctx, "permission", permissionIDs, s.perms.Exists); err != nil {
		return Role{}, err
	}
	created, err := s.repo.Create(ctx, name, permissionIDs)
	if err != nil {
		return Role{}, err
	}
	s.recordMutation(ctx, "role.create", created.ID, map[string]any{
		"name":          created.Name,
		"permissionIds": created.PermissionIDs(),
	})
	return created, nil
}

// Update applies a partial update; nil fields keep their prior values.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Role, error) {
	if err := guard.CheckExists(ctx, "role", id, s.repo.Exists); err != nil {
		return Role{}, err
	}
	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed == "" {
			return Role{}, shared.ValidationError("role name required")
		}
		input.Name = &trimmed
		self := strconv.FormatInt(id, 10)
		if err := guard.CheckUnique(ctx, "role", "name", trimmed, self, s.lookupOwner); err != nil {
			return Role{}, err
		}
	}
	if input.ReplacePermissions {
		if err := guard.CheckReferences(ctx, "permission", input.PermissionIDs, s.perms.Exists); err != nil {
			return Role{}, err
		}
	}
	updated, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return Role{}, err
	}
	s.recordMutation(ctx, "role.update", updated.ID, map[string]any{
		"name":          updated.Name,
		"permissionIds": updated.PermissionIDs(),
	})
	return updated, nil
}

// Delete soft-deletes a role. Deletion is blocked with Conflict while any
// live user still references the role.
func (s *Service) Delete(ctx context.Context, id int64) (Role, error) {
	count, err := s.repo.CountUserReferences(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if count > 0 {
		return Role{}, shared.ConflictError("role",
			"role is still assigned to "+strconv.FormatInt(count, 10)+" user(s)")
	}
	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return Role{}, err
	}
	s.recordMutation(ctx, "role.delete", deleted.ID, nil)
	return deleted, nil
}

func (s *Service) lookupOwner(ctx context.Context, name string) (string, error) {
	id, err := s.repo.FindIDByName(ctx, name)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *Service) recordMutation(ctx context.Context, action string, id int64, meta map[string]any) {
	actor := "system"
	if p := shared.PrincipalFromContext(ctx); p != nil {
		actor = p.UserID
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor,
			Action:   action,
			Entity:   "role",
			EntityID: strconv.FormatInt(id, 10),
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
