package users

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-iam/gatehouse/internal/roles"
	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

type mockRepository struct {
	users map[string]*User

	createErr error
	updateErr error
}

func newMockRepository() *mockRepository {
	return &mockRepository{users: make(map[string]*User)}
}

func (m *mockRepository) seed(id, email string, assigned ...roles.Role) User {
	u := User{
		ID:           id,
		Name:         "Seeded",
		Email:        email,
		PasswordHash: "$2a$10$hash",
		Lifecycle:    LifecycleActive,
		Roles:        assigned,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	m.users[id] = &u
	return u
}

func (m *mockRepository) List(ctx context.Context, params shared.ListParams) ([]User, int, error) {
	result := []User{}
	for _, u := range m.users {
		if u.Lifecycle == LifecycleActive {
			result = append(result, *u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, len(result), nil
}

func (m *mockRepository) Get(ctx context.Context, id string) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.NotFoundError("user", id)
	}
	return *u, nil
}

func (m *mockRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	for _, u := range m.users {
		if u.Lifecycle == LifecycleActive && u.Email == email {
			return *u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (m *mockRepository) FindIDByEmail(ctx context.Context, email string) (string, error) {
	u, err := m.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

func (m *mockRepository) Create(ctx context.Context, user User, roleIDs []int64) (User, error) {
	if m.createErr != nil {
		return User{}, m.createErr
	}
	assigned := make([]roles.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		assigned = append(assigned, roles.Role{ID: id})
	}
	user.Lifecycle = LifecycleActive
	user.Roles = assigned
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	m.users[user.ID] = &user
	return user, nil
}

func (m *mockRepository) Update(ctx context.Context, id string, input UpdateInput) (User, error) {
	if m.updateErr != nil {
		return User{}, m.updateErr
	}
	u, ok := m.users[id]
	if !ok || u.Lifecycle != LifecycleActive {
		return User{}, shared.NotFoundError("user", id)
	}
	if input.Name != nil {
		u.Name = *input.Name
	}
	if input.Email != nil {
		u.Email = *input.Email
	}
	if input.Phone != nil {
		u.Phone = *input.Phone
	}
	if input.ReplaceRoles {
		assigned := make([]roles.Role, 0, len(input.RoleIDs))
		for _, rid := range input.RoleIDs {
			assigned = append(assigned, roles.Role{ID: rid})
		}
		u.Roles = assigned
	}
	u.UpdatedAt = time.Now()
	return *u, nil
}

type mockRoleChecker struct {
	active map[int64]bool
}

func (m *mockRoleChecker) Exists(ctx context.Context, id int64) (bool, error) {
	return m.active[id], nil
}

type mockHasher struct {
	err error
}

func (m *mockHasher) Hash(plaintext string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "hashed:" + plaintext, nil
}

type countingInvalidator struct {
	bumps int
}

func (c *countingInvalidator) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func newTestService(repo Repository, checker RoleChecker, hasher Hasher, invalidate Invalidator) *Service {
	return NewService(repo, checker, hasher, nil, invalidate, nil)
}

func TestRegisterUser(t *testing.T) {
	repo := newMockRepository()
	checker := &mockRoleChecker{active: map[int64]bool{1: true}}
	bumper := &countingInvalidator{}
	svc := newTestService(repo, checker, &mockHasher{}, bumper)

	created, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "correct horse",
		RoleIDs:  []int64{1},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "hashed:correct horse", created.PasswordHash)
	assert.Equal(t, []int64{1}, created.RoleIDs())
	assert.Equal(t, 1, bumper.bumps)
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	repo := newMockRepository()
	repo.seed("u1", "ada@example.com")
	svc := newTestService(repo, &mockRoleChecker{}, &mockHasher{}, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "pw12345678",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestRegisterUserCommitConflict(t *testing.T) {
	// Email is free at guard time, then a concurrent registration wins the
	// race and the partial unique index rejects the insert.
	repo := newMockRepository()
	repo.createErr = shared.ConflictError("user", "email ada@example.com has already been taken")
	bumper := &countingInvalidator{}
	svc := newTestService(repo, &mockRoleChecker{}, &mockHasher{}, bumper)

	_, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "pw12345678",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	assert.Equal(t, 0, bumper.bumps)
}

func TestRegisterUserEmailIsCaseSensitive(t *testing.T) {
	repo := newMockRepository()
	repo.seed("u1", "Ada@example.com")
	svc := newTestService(repo, &mockRoleChecker{}, &mockHasher{}, nil)

	created, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "pw12345678",
	})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", created.Email)
}

func TestRegisterUserInvalidRoles(t *testing.T) {
	repo := newMockRepository()
	checker := &mockRoleChecker{active: map[int64]bool{1: true}}
	svc := newTestService(repo, checker, &mockHasher{}, nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "pw12345678",
		RoleIDs:  []int64{1, 7, 9},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidReference))
	assert.Equal(t, []string{"7", "9"}, shared.InvalidIDs(err))
}

func TestRegisterUserMissingFields(t *testing.T) {
	svc := newTestService(newMockRepository(), &mockRoleChecker{}, &mockHasher{}, nil)

	_, err := svc.Register(context.Background(), RegisterInput{Name: "Ada", Password: "pw"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = svc.Register(context.Background(), RegisterInput{Name: "Ada", Email: "a@b.c"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestUpdateUserPartial(t *testing.T) {
	repo := newMockRepository()
	repo.seed("u1", "ada@example.com", roles.Role{ID: 1})
	bumper := &countingInvalidator{}
	svc := newTestService(repo, &mockRoleChecker{}, &mockHasher{}, bumper)

	name := "Ada Lovelace"
	updated, err := svc.Update(context.Background(), "u1", UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.Name)
	assert.Equal(t, "ada@example.com", updated.Email)
	assert.Equal(t, []int64{1}, updated.RoleIDs())
	assert.Equal(t, 1, bumper.bumps)
}

func TestUpdateUserEmailTaken(t *testing.T) {
	repo := newMockRepository()
	repo.seed("u1", "ada@example.com")
	repo.seed("u2", "grace@example.com")
	svc := newTestService(repo, &mockRoleChecker{}, &mockHasher{}, nil)

	email := "ada@example.com"
	_, err := svc.Update(context.Background(), "u2", UpdateInput{Email: &email})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
}

func TestUpdateUserCommitConflict(t *testing.T) {
	repo := newMockRepository()
	repo.seed("u1", "ada@example.com")
	repo.updateErr = shared.ConflictError("user", "email has already been taken")
	bumper := &countingInvalidator{}
	svc := newTestService(repo, &mockRoleChecker{}, &mockHasher{}, bumper)

	email := "grace@example.com"
	_, err := svc.Update(context.Background(), "u1", UpdateInput{Email: &email})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	assert.Equal(t, 0, bumper.bumps)
}

func TestUpdateUserKeepOwnEmail(t *testing.T) {
	repo := newMockRepository()
	repo.seed("u1", "ada@example.com")
	svc := newTestService(repo, &mockRoleChecker{}, &mockHasher{}, nil)

	email := "ada@example.com"
	updated, err := svc.Update(context.Background(), "u1", UpdateInput{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", updated.Email)
}

func TestUpdateUserReplacesRoles(t *testing.T) {
	repo := newMockRepository()
	repo.seed("u1", "ada@example.com", roles.Role{ID: 1})
	checker := &mockRoleChecker{active: map[int64]bool{2: true}}
	svc := newTestService(repo, checker, &mockHasher{}, nil)

	updated, err := svc.Update(context.Background(), "u1", UpdateInput{
		RoleIDs:      []int64{2},
		ReplaceRoles: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, updated.RoleIDs())
}

func TestUpdateUserInvalidRoleReference(t *testing.T) {
	repo := newMockRepository()
	repo.seed("u1", "ada@example.com")
	checker := &mockRoleChecker{active: map[int64]bool{}}
	svc := newTestService(repo, checker, &mockHasher{}, nil)

	_, err := svc.Update(context.Background(), "u1", UpdateInput{
		RoleIDs:      []int64{5},
		ReplaceRoles: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrInvalidReference))
}

func TestUpdateUserMissing(t *testing.T) {
	svc := newTestService(newMockRepository(), &mockRoleChecker{}, &mockHasher{}, nil)

	name := "Ada"
	_, err := svc.Update(context.Background(), "nope", UpdateInput{Name: &name})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
