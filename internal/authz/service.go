package authz

import (
	"context"
	"log/slog"
	"sort"
)

// Service resolves effective permissions for access-control decisions.
// This is the single read path consumed by token issuance, route guards,
// and UI permission rendering.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// ResolveUserContext loads the user, their roles, and the union of
// permissions across those roles. The permission set is deduplicated by ID
// and sorted by ID so equal inputs always produce equal output.
func (s *Service) ResolveUserContext(ctx context.Context, userID string) (UserContext, error) {
	key, err := s.cache.BuildKey(ctx, keyUserContext(userID)...)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("authz cache key", slog.Any("error", err))
		}
		uc, err := s.repo.LoadUserGraph(ctx, userID)
		if err != nil {
			return UserContext{}, err
		}
		return normalize(uc), nil
	}

	var uc UserContext
	if err := s.cache.FetchJSON(ctx, key, &uc, func(ctx context.Context) (interface{}, error) {
		loaded, err := s.repo.LoadUserGraph(ctx, userID)
		if err != nil {
			return nil, err
		}
		return normalize(loaded), nil
	}); err != nil {
		return UserContext{}, err
	}
	return uc, nil
}

func normalize(uc UserContext) UserContext {
	sort.Slice(uc.Roles, func(i, j int) bool { return uc.Roles[i].ID < uc.Roles[j].ID })

	seen := make(map[int64]struct{}, len(uc.Permissions))
	deduped := make([]Permission, 0, len(uc.Permissions))
	for _, p := range uc.Permissions {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		deduped = append(deduped, p)
	}
	sort.Slice(deduped, func(i, j int) bool { return deduped[i].ID < deduped[j].ID })
	uc.Permissions = deduped
	return uc
}
