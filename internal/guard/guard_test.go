package guard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

func TestCheckExists(t *testing.T) {
	ctx := context.Background()

	t.Run("live entity passes", func(t *testing.T) {
		err := CheckExists(ctx, "role", 7, func(ctx context.Context, id int64) (bool, error) {
			return id == 7, nil
		})
		require.NoError(t, err)
	})

	t.Run("missing entity fails with not found", func(t *testing.T) {
		err := CheckExists(ctx, "role", 42, func(ctx context.Context, id int64) (bool, error) {
			return false, nil
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
		assert.Contains(t, err.Error(), "42")
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		boom := errors.New("pool exhausted")
		err := CheckExists(ctx, "role", 1, func(ctx context.Context, id int64) (bool, error) {
			return false, boom
		})
		assert.ErrorIs(t, err, boom)
	})
}

func TestCheckUnique(t *testing.T) {
	ctx := context.Background()
	lookup := func(owner string, lookupErr error) LookupOwnerFunc {
		return func(ctx context.Context, value string) (string, error) {
			if lookupErr != nil {
				return "", lookupErr
			}
			return owner, nil
		}
	}

	t.Run("free value passes", func(t *testing.T) {
		err := CheckUnique(ctx, "user", "email", "a@x.com", "", lookup("", shared.ErrNotFound))
		require.NoError(t, err)
	})

	t.Run("taken value conflicts", func(t *testing.T) {
		err := CheckUnique(ctx, "user", "email", "a@x.com", "", lookup("user-1", nil))
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrConflict))
		assert.Contains(t, err.Error(), "a@x.com")
	})

	t.Run("self collision is excluded on update", func(t *testing.T) {
		err := CheckUnique(ctx, "user", "email", "a@x.com", "user-1", lookup("user-1", nil))
		require.NoError(t, err)
	})

	t.Run("other owner still conflicts on update", func(t *testing.T) {
		err := CheckUnique(ctx, "user", "email", "a@x.com", "user-2", lookup("user-1", nil))
		assert.True(t, errors.Is(err, shared.ErrConflict))
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		boom := errors.New("timeout")
		err := CheckUnique(ctx, "user", "email", "a@x.com", "", lookup("", boom))
		assert.ErrorIs(t, err, boom)
	})
}

func TestCheckReferences(t *testing.T) {
	ctx := context.Background()
	existing := map[int64]bool{1: true, 2: true, 3: true}
	exists := func(ctx context.Context, id int64) (bool, error) {
		return existing[id], nil
	}

	t.Run("all resolve", func(t *testing.T) {
		require.NoError(t, CheckReferences(ctx, "permission", []int64{1, 2, 3}, exists))
	})

	t.Run("empty set passes", func(t *testing.T) {
		require.NoError(t, CheckReferences(ctx, "permission", nil, exists))
	})

	t.Run("every missing ID is reported", func(t *testing.T) {
		err := CheckReferences(ctx, "permission", []int64{1, 999, 2, 1000}, exists)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrInvalidReference))
		assert.Equal(t, []string{"999", "1000"}, shared.InvalidIDs(err))
		assert.Contains(t, err.Error(), "999")
		assert.Contains(t, err.Error(), "1000")
	})

	t.Run("duplicates validate once and report once", func(t *testing.T) {
		var mu sync.Mutex
		calls := map[int64]int{}
		counting := func(ctx context.Context, id int64) (bool, error) {
			mu.Lock()
			calls[id]++
			mu.Unlock()
			return existing[id], nil
		}
		err := CheckReferences(ctx, "role", []int64{9, 9, 9, 1}, counting)
		require.Error(t, err)
		assert.Equal(t, []string{"9"}, shared.InvalidIDs(err))
		assert.Equal(t, 1, calls[9])
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		boom := errors.New("store unavailable")
		err := CheckReferences(ctx, "role", []int64{1, 2}, func(ctx context.Context, id int64) (bool, error) {
			if id == 2 {
				return false, boom
			}
			return true, nil
		})
		assert.ErrorIs(t, err, boom)
	})
}
