// Package guard holds the cross-cutting integrity checks invoked by every
// mutation path before a write is committed. The checks are fast-fail
// conveniences; the partial unique indexes in postgres remain the final
// arbiter of correctness under concurrent writes.
package guard

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-iam/gatehouse/internal/shared"
)

// referenceCheckConcurrency bounds the lookup fan-out for batched reference
// validation so large batches cannot exhaust the connection pool.
const referenceCheckConcurrency = 8

// ExistsFunc reports whether a live entity with the given ID exists.
type ExistsFunc func(ctx context.Context, id int64) (bool, error)

// LookupOwnerFunc returns the ID of the live record holding a unique value.
// It must return shared.ErrNotFound (possibly wrapped) when no record does.
type LookupOwnerFunc func(ctx context.Context, value string) (string, error)

// CheckExists fails with NotFound when the entity is absent or soft-deleted.
func CheckExists(ctx context.Context, entity string, id int64, exists ExistsFunc) error {
	ok, err := exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.NotFoundError(entity, strconv.FormatInt(id, 10))
	}
	return nil
}

// CheckUnique fails with Conflict when another live record already holds the
// candidate value. selfID excludes the record being updated from the check.
func CheckUnique(ctx context.Context, entity, field, value, selfID string, lookup LookupOwnerFunc) error {
	ownerID, err := lookup(ctx, value)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return err
	}
	if selfID != "" && ownerID == selfID {
		return nil
	}
	return shared.ConflictError(entity, entity+" "+field+" "+value+" has already been taken")
}

// CheckReferences validates a collection of foreign IDs in one pass,
// resolving each unique member concurrently and reporting every ID that did
// not resolve, so callers can correct a whole batch in one round trip.
func CheckReferences(ctx context.Context, entity string, ids []int64, exists ExistsFunc) error {
	unique := dedupe(ids)
	if len(unique) == 0 {
		return nil
	}

	missing := make([]bool, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(referenceCheckConcurrency)
	for i, id := range unique {
		g.Go(func() error {
			ok, err := exists(gctx, id)
			if err != nil {
				return err
			}
			missing[i] = !ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var invalid []int64
	for i, id := range unique {
		if missing[i] {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		sort.Slice(invalid, func(i, j int) bool { return invalid[i] < invalid[j] })
		formatted := make([]string, len(invalid))
		for i, id := range invalid {
			formatted[i] = strconv.FormatInt(id, 10)
		}
		return shared.InvalidReferenceError(entity, formatted)
	}
	return nil
}

func dedupe(ids []int64) []int64 {
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
