package engine

import (
	"context"
	"sync"

	"github.com/roach88/stampview/internal/calc"
	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
	"github.com/roach88/stampview/internal/txn"
)

// maxReferenceDepth bounds the walk from a semantic to the concept it
// ultimately describes.
const maxReferenceDepth = 64

// AffectedConcepts returns the concepts whose content tx touched: every
// concept with a version under one of tx's stamps, and the concept each
// such semantic ultimately references. Components recorded on tx are
// included the same way.
func (e *Engine) AffectedConcepts(ctx context.Context, tx *txn.Transaction) (intid.Set, error) {
	stampNids := map[int32]struct{}{}
	for _, id := range tx.StampUUIDs() {
		s, err := e.factory.ByUUID(id)
		if err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				continue
			}
			return nil, err
		}
		stampNids[s.Nid] = struct{}{}
	}

	var (
		mu       sync.Mutex
		affected []int32
	)
	collect := func(nid int32) error {
		concept, ok, err := e.conceptOf(nid)
		if err != nil || !ok {
			return err
		}
		mu.Lock()
		affected = append(affected, concept)
		mu.Unlock()
		return nil
	}

	for _, nid := range tx.Components().ToArray() {
		if err := collect(nid); err != nil {
			return nil, err
		}
	}
	if len(stampNids) > 0 {
		err := e.store.ForEachParallel(ctx, func(ctx context.Context, c entity.Chronology) error {
			for _, v := range c.Versions {
				if _, ok := stampNids[v.StampNid]; ok {
					return collect(c.Nid)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return intid.SetOf(affected...), nil
}

// conceptOf follows semantic references from nid to a concept. Patterns
// and dangling references have no concept.
func (e *Engine) conceptOf(nid int32) (int32, bool, error) {
	for range maxReferenceDepth {
		c, ok, err := e.store.Chronology(nid)
		if err != nil || !ok {
			return 0, false, err
		}
		switch c.Kind {
		case entity.KindConcept:
			return c.Nid, true, nil
		case entity.KindSemantic:
			nid = c.ReferencedComponentNid
		default:
			return 0, false, nil
		}
	}
	return 0, false, errors.NewIntegrityError(errors.CodeCycle, nid, 0,
		"semantic references deeper than %d", maxReferenceDepth)
}

// ForEachLatest calls fn with the latest visible version of every entity
// under coord, in parallel. Entities with nothing visible are skipped.
func (e *Engine) ForEachLatest(ctx context.Context, coord coordinate.StampCoordinate, fn func(ctx context.Context, c entity.Chronology, latest calc.Latest[entity.Version]) error) error {
	sc, err := e.StampCalculator(coord)
	if err != nil {
		return err
	}
	return e.store.ForEachParallel(ctx, func(ctx context.Context, c entity.Chronology) error {
		latest, err := sc.LatestVersions(c)
		if err != nil {
			return err
		}
		if latest.IsAbsent() {
			return nil
		}
		return fn(ctx, c, latest)
	})
}
