package permissions

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

type mockRepository struct {
	permissions map[int64]*Permission
	nextID      int64

	createError error
	updateError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		permissions: make(map[int64]*Permission),
		nextID:      1,
	}
}

func (m *mockRepository) seed(name string) Permission {
	p := Permission{ID: m.nextID, Name: name, Lifecycle: LifecycleActive, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.permissions[p.ID] = &p
	m.nextID++
	return p
}

func (m *mockRepository) List(ctx context.Context, params shared.ListParams) ([]Permission, int, error) {
	return m.Search(ctx, SearchFilters{}, params)
}

func (m *mockRepository) Search(ctx context.Context, filters SearchFilters, params shared.ListParams) ([]Permission, int, error) {
	result := []Permission{}
	for _, p := range m.permissions {
		if filters.Deleted == nil && p.Lifecycle != LifecycleActive {
			continue
		}
		if filters.Deleted != nil && *filters.Deleted != p.Deleted() {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, len(result), nil
}

func (m *mockRepository) Get(ctx context.Context, id int64) (Permission, error) {
	p, ok := m.permissions[id]
	if !ok {
		return Permission{}, shared.NotFoundError("permission", strconv.FormatInt(id, 10))
	}
	return *p, nil
}

func (m *mockRepository) FindIDByName(ctx context.Context, name string) (int64, error) {
	for _, p := range m.permissions {
		if p.Lifecycle == LifecycleActive && p.Name == name {
			return p.ID, nil
		}
	}
	return 0, shared.ErrNotFound
}

func (m *mockRepository) Exists(ctx context.Context, id int64) (bool, error) {
	p, ok := m.permissions[id]
	return ok && p.Lifecycle == LifecycleActive, nil
}

func (m *mockRepository) Create(ctx context.Context, name string) (Permission, error) {
	if m.createError != nil {
		return Permission{}, m.createError
	}
	return m.seed(name), nil
}

func (m *mockRepository) Update(ctx context.Context, id int64, name string) (Permission, error) {
	if m.updateError != nil {
		return Permission{}, m.updateError
	}
	p, ok := m.permissions[id]
	if !ok || p.Lifecycle != LifecycleActive {
		return Permission{}, shared.NotFoundError("permission", strconv.FormatInt(id, 10))
	}
	p.Name = name
	p.UpdatedAt = time.Now()
	return *p, nil
}

func (m *mockRepository) SoftDelete(ctx context.Context, id int64) (Permission, error) {
	p, ok := m.permissions[id]
	if !ok || p.Lifecycle != LifecycleActive {
		return Permission{}, shared.NotFoundError("permission", strconv.FormatInt(id, 10))
	}
	p.Lifecycle = LifecycleDeleted
	p.UpdatedAt = time.Now()
	return *p, nil
}

func (m *mockRepository) BulkSoftDelete(ctx context.Context, ids []int64) (int64, error) {
	var count int64
	for _, id := range ids {
		if p, ok := m.permissions[id]; ok && p.Lifecycle == LifecycleActive {
			p.Lifecycle = LifecycleDeleted
			count++
		}
	}
	return count, nil
}

func (m *mockRepository) PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	var count int64
	for id, p := range m.permissions {
		if p.Lifecycle == LifecycleDeleted {
			delete(m.permissions, id)
			count++
		}
	}
	return count, nil
}

type countingInvalidator struct {
	bumps int
	err   error
}

func (c *countingInvalidator) Bump(ctx context.Context) error {
	if c.err != nil {
		return c.err
	}
	c.bumps++
	return nil
}

func newTestService(repo Repository, invalidate Invalidator) *Service {
	return NewService(repo, nil, invalidate, nil)
}

func TestCreatePermission(t *testing.T) {
	repo := newMockRepository()
	bumper := &countingInvalidator{}
	svc := newTestService(repo, bumper)

	created, err := svc.Create(context.Background(), "users:read")
	require.NoError(t, err)
	assert.Equal(t, "users:read", created.Name)
	assert.False(t, created.Deleted())
	assert.Equal(t, 1, bumper.bumps)
}

func TestCreatePermissionDuplicateName(t *testing.T) {
	repo := newMockRepository()
	repo.seed("users:read")
	svc := newTestService(repo, nil)

	_, err := svc.Create(context.Background(), "users:read")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestCreatePermissionBlankName(t *testing.T) {
	svc := newTestService(newMockRepository(), nil)

	_, err := svc.Create(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestCreatePermissionReusesDeletedName(t *testing.T) {
	repo := newMockRepository()
	seeded := repo.seed("roles:write")
	_, err := repo.SoftDelete(context.Background(), seeded.ID)
	require.NoError(t, err)
	svc := newTestService(repo, nil)

	created, err := svc.Create(context.Background(), "roles:write")
	require.NoError(t, err)
	assert.NotEqual(t, seeded.ID, created.ID)
}

func TestCreatePermissionCommitConflict(t *testing.T) {
	// The name is free when the guard looks, but a concurrent writer takes
	// it before the insert commits and the unique index rejects the row.
	repo := newMockRepository()
	repo.createError = shared.ConflictError("permission", "permission name users:read has already been taken")
	bumper := &countingInvalidator{}
	svc := newTestService(repo, bumper)

	_, err := svc.Create(context.Background(), "users:read")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	assert.Equal(t, 0, bumper.bumps)
}

func TestUpdatePermission(t *testing.T) {
	repo := newMockRepository()
	seeded := repo.seed("users:read")
	bumper := &countingInvalidator{}
	svc := newTestService(repo, bumper)

	updated, err := svc.Update(context.Background(), seeded.ID, "users:view")
	require.NoError(t, err)
	assert.Equal(t, "users:view", updated.Name)
	assert.Equal(t, 1, bumper.bumps)
}

func TestUpdatePermissionKeepOwnName(t *testing.T) {
	repo := newMockRepository()
	seeded := repo.seed("users:read")
	svc := newTestService(repo, nil)

	updated, err := svc.Update(context.Background(), seeded.ID, "users:read")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, updated.ID)
}

func TestUpdatePermissionNameTakenByOther(t *testing.T) {
	repo := newMockRepository()
	repo.seed("users:read")
	other := repo.seed("users:write")
	svc := newTestService(repo, nil)

	_, err := svc.Update(context.Background(), other.ID, "users:read")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestUpdatePermissionCommitConflict(t *testing.T) {
	repo := newMockRepository()
	seeded := repo.seed("users:read")
	repo.updateError = shared.ConflictError("permission", "permission name users:view has already been taken")
	bumper := &countingInvalidator{}
	svc := newTestService(repo, bumper)

	_, err := svc.Update(context.Background(), seeded.ID, "users:view")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	assert.Equal(t, 0, bumper.bumps)
}

func TestUpdatePermissionMissing(t *testing.T) {
	svc := newTestService(newMockRepository(), nil)

	_, err := svc.Update(context.Background(), 999, "anything")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestDeletePermission(t *testing.T) {
	repo := newMockRepository()
	seeded := repo.seed("users:read")
	bumper := &countingInvalidator{}
	svc := newTestService(repo, bumper)

	deleted, err := svc.Delete(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted())
	assert.Equal(t, 1, bumper.bumps)

	// Still addressable by ID after the soft delete.
	got, err := svc.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())
}

func TestDeletePermissionTwice(t *testing.T) {
	repo := newMockRepository()
	seeded := repo.seed("users:read")
	svc := newTestService(repo, nil)

	_, err := svc.Delete(context.Background(), seeded.ID)
	require.NoError(t, err)

	_, err = svc.Delete(context.Background(), seeded.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestBulkDeleteSkipsUnknownIDs(t *testing.T) {
	repo := newMockRepository()
	a := repo.seed("users:read")
	b := repo.seed("users:write")
	bumper := &countingInvalidator{}
	svc := newTestService(repo, bumper)

	count, err := svc.BulkDelete(context.Background(), []int64{a.ID, b.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, 1, bumper.bumps)
}

func TestBulkDeleteDuplicateIDsCountOnce(t *testing.T) {
	repo := newMockRepository()
	a := repo.seed("users:read")
	svc := newTestService(repo, nil)

	count, err := svc.BulkDelete(context.Background(), []int64{a.ID, a.ID, a.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestBulkDeleteEmptyList(t *testing.T) {
	svc := newTestService(newMockRepository(), nil)

	_, err := svc.BulkDelete(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestBulkDeleteAllUnknownDoesNotBump(t *testing.T) {
	repo := newMockRepository()
	bumper := &countingInvalidator{}
	svc := newTestService(repo, bumper)

	count, err := svc.BulkDelete(context.Background(), []int64{41, 42})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, 0, bumper.bumps)
}

func TestListExcludesDeleted(t *testing.T) {
	repo := newMockRepository()
	repo.seed("users:read")
	gone := repo.seed("users:write")
	_, err := repo.SoftDelete(context.Background(), gone.ID)
	require.NoError(t, err)
	svc := newTestService(repo, nil)

	out, total, err := svc.List(context.Background(), shared.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, "users:read", out[0].Name)
}

func TestSearchDeletedFilter(t *testing.T) {
	repo := newMockRepository()
	repo.seed("users:read")
	gone := repo.seed("users:write")
	_, err := repo.SoftDelete(context.Background(), gone.ID)
	require.NoError(t, err)
	svc := newTestService(repo, nil)

	deleted := true
	out, total, err := svc.Search(context.Background(), SearchFilters{Deleted: &deleted}, shared.ListParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, out, 1)
	assert.Equal(t, "users:write", out[0].Name)
}
