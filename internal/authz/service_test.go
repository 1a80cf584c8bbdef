package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

type mockGraphRepo struct {
	contexts map[string]UserContext
	calls    int
	err      error
}

func (m *mockGraphRepo) LoadUserGraph(ctx context.Context, userID string) (UserContext, error) {
	m.calls++
	if m.err != nil {
		return UserContext{}, m.err
	}
	uc, ok := m.contexts[userID]
	if !ok {
		return UserContext{}, shared.NotFoundError("user", userID)
	}
	return uc, nil
}

func newTestService(t *testing.T, repo Repository) (*Service, *Cache, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, cache, nil)
	return svc, cache, func() {
		_ = client.Close()
		mr.Close()
	}
}

func graphFixture() UserContext {
	return UserContext{
		User: User{ID: "u1", Name: "Ada", Email: "ada@example.com"},
		Roles: []Role{
			{ID: 2, Name: "auditor"},
			{ID: 1, Name: "admin"},
		},
		Permissions: []Permission{
			{ID: 3, Name: "roles:read"},
			{ID: 1, Name: "users:read"},
			{ID: 3, Name: "roles:read"},
			{ID: 2, Name: "users:write"},
		},
	}
}

func TestResolveUserContextNormalizes(t *testing.T) {
	repo := &mockGraphRepo{contexts: map[string]UserContext{"u1": graphFixture()}}
	svc, _, cleanup := newTestService(t, repo)
	defer cleanup()

	uc, err := svc.ResolveUserContext(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, "u1", uc.User.ID)
	require.Len(t, uc.Roles, 2)
	assert.Equal(t, int64(1), uc.Roles[0].ID)
	assert.Equal(t, int64(2), uc.Roles[1].ID)

	// Union is deduplicated and ordered by permission ID.
	require.Len(t, uc.Permissions, 3)
	assert.Equal(t, []string{"users:read", "users:write", "roles:read"}, uc.PermissionNames())
}

func TestResolveUserContextCaches(t *testing.T) {
	repo := &mockGraphRepo{contexts: map[string]UserContext{"u1": graphFixture()}}
	svc, _, cleanup := newTestService(t, repo)
	defer cleanup()

	_, err := svc.ResolveUserContext(context.Background(), "u1")
	require.NoError(t, err)
	_, err = svc.ResolveUserContext(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.calls)
}

func TestResolveUserContextBumpInvalidates(t *testing.T) {
	repo := &mockGraphRepo{contexts: map[string]UserContext{"u1": graphFixture()}}
	svc, cache, cleanup := newTestService(t, repo)
	defer cleanup()

	_, err := svc.ResolveUserContext(context.Background(), "u1")
	require.NoError(t, err)

	require.NoError(t, cache.Bump(context.Background()))

	_, err = svc.ResolveUserContext(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestResolveUserContextUnknownUser(t *testing.T) {
	repo := &mockGraphRepo{contexts: map[string]UserContext{}}
	svc, _, cleanup := newTestService(t, repo)
	defer cleanup()

	_, err := svc.ResolveUserContext(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestHasPermission(t *testing.T) {
	uc := UserContext{Permissions: []Permission{{ID: 1, Name: "users:read"}}}
	assert.True(t, uc.HasPermission("users:read"))
	assert.False(t, uc.HasPermission("users:write"))
}
