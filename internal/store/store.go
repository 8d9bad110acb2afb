package store

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
)

// Store is the entity store contract consumed by the transaction manager
// and the calculators.
type Store interface {
	// NidForUUID returns the nid for id, assigning one on first sight.
	NidForUUID(id uuid.UUID) (int32, error)

	// LookupNid returns the nid bound to id without assigning one. ok is
	// false when id has never been seen.
	LookupNid(id uuid.UUID) (nid int32, ok bool, err error)

	// NidForPublicID returns the nid of the first known UUID in ids, or
	// assigns a fresh nid to all of them.
	NidForPublicID(ids ...uuid.UUID) (int32, error)

	// PublicID returns the UUIDs bound to nid.
	PublicID(nid int32) ([]uuid.UUID, error)

	// Chronology returns the chronology of nid. ok is false when the nid has
	// no chronology yet.
	Chronology(nid int32) (c entity.Chronology, ok bool, err error)

	// PutEntity merges c into the store.
	PutEntity(c entity.Chronology) error

	// Stamp returns the stamp chronology of nid.
	Stamp(nid int32) (s entity.Stamp, ok bool, err error)

	// PutStamp merges the analogues of s into the store.
	PutStamp(s entity.Stamp) error

	// SemanticNidsForComponent returns the semantics referencing nid.
	SemanticNidsForComponent(nid int32) ([]int32, error)

	// SemanticNidsForComponentOfPattern returns the semantics of patternNid
	// referencing nid.
	SemanticNidsForComponentOfPattern(nid, patternNid int32) ([]int32, error)

	// ForEachParallel calls fn for every entity chronology from a bounded
	// pool of goroutines. The first error cancels the remaining work.
	ForEachParallel(ctx context.Context, fn func(ctx context.Context, c entity.Chronology) error) error

	// Generation increases on every successful write.
	Generation() uint64

	Close() error
}

// stampLookup resolves the stamp chronology of a nid during merges.
type stampLookup func(nid int32) (entity.Stamp, bool, error)

// mergeChronology appends the versions of incoming that existing does not
// already carry. A version under a stamp whose last analogue is still
// uncommitted is replaced by the incoming version for the same stamp.
func mergeChronology(existing, incoming entity.Chronology, stamps stampLookup) (entity.Chronology, bool, error) {
	if existing.Kind != incoming.Kind {
		return existing, false, errors.Validationf("nid %d: cannot merge %s into %s", incoming.Nid, incoming.Kind, existing.Kind)
	}
	if existing.Kind == entity.KindSemantic &&
		(existing.PatternNid != incoming.PatternNid || existing.ReferencedComponentNid != incoming.ReferencedComponentNid) {
		return existing, false, errors.Validationf("nid %d: semantic pattern or referenced component changed", incoming.Nid)
	}

	merged := existing
	merged.UUIDs = mergeUUIDs(existing.UUIDs, incoming.UUIDs)
	merged.Versions = append([]entity.Version(nil), existing.Versions...)
	changed := len(merged.UUIDs) != len(existing.UUIDs)

	for _, v := range incoming.Versions {
		idx := -1
		for i, ev := range merged.Versions {
			if ev.StampNid == v.StampNid {
				idx = i
				break
			}
		}
		if idx < 0 {
			merged.Versions = append(merged.Versions, v)
			changed = true
			continue
		}
		s, ok, err := stamps(v.StampNid)
		if err != nil {
			return existing, false, err
		}
		if ok && s.Last().IsUncommitted() {
			merged.Versions[idx] = v
			changed = true
		}
	}
	return merged, changed, nil
}

// mergeStamp appends the analogues of incoming beyond those existing has.
func mergeStamp(existing, incoming entity.Stamp) (entity.Stamp, bool) {
	if len(incoming.Versions) <= len(existing.Versions) {
		return existing, false
	}
	merged := existing.Clone()
	merged.Versions = append(merged.Versions, incoming.Versions[len(existing.Versions):]...)
	return merged, true
}

func mergeUUIDs(a, b []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), a...)
	for _, id := range b {
		found := false
		for _, x := range out {
			if x == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}

func validateForPut(c entity.Chronology) error {
	if err := c.Validate(); err != nil {
		return errors.Wrapf(err, "put entity %d", c.Nid)
	}
	if len(c.UUIDs) == 0 {
		return errors.Validationf("put entity %d: no public id", c.Nid)
	}
	return nil
}

func validateStampForPut(s entity.Stamp) error {
	if err := entity.ValidateNid(s.Nid); err != nil {
		return errors.Wrap(err, "put stamp")
	}
	if s.UUID == uuid.Nil {
		return errors.Validationf("put stamp %d: nil uuid", s.Nid)
	}
	if len(s.Versions) == 0 {
		return errors.Validationf("put stamp %d: no analogues", s.Nid)
	}
	return nil
}

// forEachParallel loads and visits nids from a pool bounded by GOMAXPROCS.
func forEachParallel(
	ctx context.Context,
	nids []int32,
	load func(int32) (entity.Chronology, bool, error),
	fn func(ctx context.Context, c entity.Chronology) error,
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, nid := range nids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, ok, err := load(nid)
			if err != nil || !ok {
				return err
			}
			return fn(gctx, c)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
