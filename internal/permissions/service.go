package permissions

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gatehouse-iam/gatehouse/internal/guard"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// Invalidator bumps the authorization cache after a mutation.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service handles permission business logic.
type Service struct {
	repo       Repository
	audit      *shared.AuditLogger
	invalidate Invalidator
	logger     *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, audit *shared.AuditLogger, invalidate Invalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, invalidate: invalidate, logger: logger}
}

// List returns active permissions ordered by ID.
func (s *Service) List(ctx context.Context, params shared.ListParams) ([]Permission, int, error) {
	return s.repo.List(ctx, params)
}

// Search filters permissions by name substring and deleted status.
func (s *Service) Search(ctx context.Context, filters SearchFilters, params shared.ListParams) ([]Permission, int, error) {
	return s.repo.Search(ctx, filters, params)
}

// Get fetches a permission by ID, including soft-deleted records.
func (s *Service) Get(ctx context.Context, id int64) (Permission, error) {
	return s.repo.Get(ctx, id)
}

// Create inserts a new permission after a uniqueness pre-check. The database
// constraint still catches races the pre-check misses.
func (s *Service) Create(ctx context.Context, name string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, shared.ValidationError("permission name required")
	}
	if err := guard.CheckUnique(ctx, "permission", "name", name, "", s.lookupOwner); err != nil {
		return Permission{}, err
	}
	created, err := s.repo.Create(ctx, name)
	if err != nil {
		return Permission{}, err
	}
	s.recordMutation(ctx, "permission.create", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// Update renames a permission. Only active records can be updated.
func (s *Service) Update(ctx context.Context, id int64, name string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, shared.ValidationError("permission name required")
	}
	if err := guard.CheckExists(ctx, "permission", id, s.repo.Exists); err != nil {
		return Permission{}, err
	}
	self := strconv.FormatInt(id, 10)
	if err := guard.CheckUnique(ctx, "permission", "name", name, self, s.lookupOwner); err != nil {
		return Permission{}, err
	}
	updated, err := s.repo.Update(ctx, id, name)
	if err != nil {
		return Permission{}, err
	}
	s.recordMutation(ctx, "permission.update", updated.ID, map[string]any{"name": updated.Name})
	return updated, nil
}

// Delete soft-deletes a permission.
func (s *Service) Delete(ctx context.Context, id int64) (Permission, error) {
	deleted, err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		return Permission{}, err
	}
	s.recordMutation(ctx, "permission.delete", deleted.ID, nil)
	return deleted, nil
}

// BulkDelete soft-deletes every valid ID in one atomic statement and
// returns the count actually affected. Unknown IDs are silently skipped.
func (s *Service) BulkDelete(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, shared.ValidationError("at least one permission ID required")
	}
	count, err := s.repo.BulkSoftDelete(ctx, ids)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.recordMutation(ctx, "permission.bulk_delete", 0, map[string]any{"requested": len(ids), "deleted": count})
	}
	return count, nil
}

func (s *Service) lookupOwner(ctx context.Context, name string) (string, error) {
	id, err := s.repo.FindIDByName(ctx, name)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

// recordMutation audits the write and invalidates resolved contexts.
// Both are best effort; the committed write wins.
func (s *Service) recordMutation(ctx context.Context, action string, id int64, meta map[string]any) {
	actor := "system"
	if p := shared.PrincipalFromContext(ctx); p != nil {
		actor = p.UserID
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor,
			Action:   action,
			Entity:   "permission",
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
