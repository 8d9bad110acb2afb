package store

import (
	"context"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
)

const lockStripes = 64

// MemoryStore keeps everything in concurrent maps. Reads never lock; writes
// to one nid serialize on a striped mutex.
type MemoryStore struct {
	uuids     sync.Map // uuid.UUID -> int32
	publicIDs sync.Map // int32 -> []uuid.UUID
	entities  sync.Map // int32 -> entity.Chronology
	stamps    sync.Map // int32 -> entity.Stamp
	index     sync.Map // int32 -> *componentIndex

	assignMu sync.Mutex
	stripes  [lockStripes]sync.Mutex
	next     atomic.Int32
	gen      atomic.Uint64
}

type componentIndex struct {
	mu        sync.RWMutex
	byPattern map[int32][]int32
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) stripe(nid int32) *sync.Mutex {
	return &s.stripes[uint32(nid)%lockStripes]
}

func (s *MemoryStore) NidForUUID(id uuid.UUID) (int32, error) {
	return s.NidForPublicID(id)
}

func (s *MemoryStore) LookupNid(id uuid.UUID) (int32, bool, error) {
	if v, ok := s.uuids.Load(id); ok {
		return v.(int32), true, nil
	}
	return entity.NidUnset, false, nil
}

func (s *MemoryStore) NidForPublicID(ids ...uuid.UUID) (int32, error) {
	if len(ids) == 0 {
		return entity.NidInvalid, errors.Validationf("nid for public id: no uuids")
	}
	for _, id := range ids {
		if v, ok := s.uuids.Load(id); ok {
			return v.(int32), nil
		}
	}

	s.assignMu.Lock()
	defer s.assignMu.Unlock()
	for _, id := range ids {
		if v, ok := s.uuids.Load(id); ok {
			return v.(int32), nil
		}
	}
	nid := s.next.Add(1)
	if nid == math.MaxInt32 {
		return entity.NidInvalid, errors.New("nid space exhausted")
	}
	for _, id := range ids {
		s.uuids.Store(id, nid)
	}
	s.publicIDs.Store(nid, slices.Clone(ids))
	s.gen.Add(1)
	return nid, nil
}

func (s *MemoryStore) PublicID(nid int32) ([]uuid.UUID, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return nil, err
	}
	v, ok := s.publicIDs.Load(nid)
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "public id for nid %d", nid)
	}
	return slices.Clone(v.([]uuid.UUID)), nil
}

func (s *MemoryStore) Chronology(nid int32) (entity.Chronology, bool, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return entity.Chronology{}, false, err
	}
	v, ok := s.entities.Load(nid)
	if !ok {
		return entity.Chronology{}, false, nil
	}
	return v.(entity.Chronology), true, nil
}

func (s *MemoryStore) PutEntity(c entity.Chronology) error {
	if err := validateForPut(c); err != nil {
		return err
	}
	mu := s.stripe(c.Nid)
	mu.Lock()
	defer mu.Unlock()

	merged := c
	if v, ok := s.entities.Load(c.Nid); ok {
		var changed bool
		var err error
		merged, changed, err = mergeChronology(v.(entity.Chronology), c, s.Stamp)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	} else {
		merged.Versions = slices.Clone(c.Versions)
		merged.UUIDs = slices.Clone(c.UUIDs)
		if merged.Kind == entity.KindSemantic {
			s.indexSemantic(merged)
		}
	}
	s.bindUUIDs(merged.Nid, merged.UUIDs)
	s.entities.Store(merged.Nid, merged)
	s.gen.Add(1)
	return nil
}

func (s *MemoryStore) bindUUIDs(nid int32, ids []uuid.UUID) {
	s.assignMu.Lock()
	defer s.assignMu.Unlock()
	var known []uuid.UUID
	if v, ok := s.publicIDs.Load(nid); ok {
		known = v.([]uuid.UUID)
	}
	for _, id := range ids {
		s.uuids.LoadOrStore(id, nid)
	}
	s.publicIDs.Store(nid, mergeUUIDs(known, ids))
	if nid > s.next.Load() {
		s.next.Store(nid)
	}
}

func (s *MemoryStore) indexSemantic(c entity.Chronology) {
	v, _ := s.index.LoadOrStore(c.ReferencedComponentNid, &componentIndex{byPattern: map[int32][]int32{}})
	idx := v.(*componentIndex)
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byPattern[c.PatternNid] = append(idx.byPattern[c.PatternNid], c.Nid)
}

func (s *MemoryStore) Stamp(nid int32) (entity.Stamp, bool, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return entity.Stamp{}, false, err
	}
	v, ok := s.stamps.Load(nid)
	if !ok {
		return entity.Stamp{}, false, nil
	}
	return v.(entity.Stamp), true, nil
}

func (s *MemoryStore) PutStamp(st entity.Stamp) error {
	if err := validateStampForPut(st); err != nil {
		return err
	}
	mu := s.stripe(st.Nid)
	mu.Lock()
	defer mu.Unlock()

	merged := st.Clone()
	if v, ok := s.stamps.Load(st.Nid); ok {
		var changed bool
		merged, changed = mergeStamp(v.(entity.Stamp), st)
		if !changed {
			return nil
		}
	}
	s.bindUUIDs(st.Nid, []uuid.UUID{st.UUID})
	s.stamps.Store(st.Nid, merged)
	s.gen.Add(1)
	return nil
}

func (s *MemoryStore) SemanticNidsForComponent(nid int32) ([]int32, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return nil, err
	}
	v, ok := s.index.Load(nid)
	if !ok {
		return nil, nil
	}
	idx := v.(*componentIndex)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []int32
	for _, nids := range idx.byPattern {
		out = append(out, nids...)
	}
	slices.Sort(out)
	return out, nil
}

func (s *MemoryStore) SemanticNidsForComponentOfPattern(nid, patternNid int32) ([]int32, error) {
	if err := entity.ValidateNids(nid, patternNid); err != nil {
		return nil, err
	}
	v, ok := s.index.Load(nid)
	if !ok {
		return nil, nil
	}
	idx := v.(*componentIndex)
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.Clone(idx.byPattern[patternNid]), nil
}

func (s *MemoryStore) ForEachParallel(ctx context.Context, fn func(ctx context.Context, c entity.Chronology) error) error {
	var nids []int32
	s.entities.Range(func(k, _ any) bool {
		nids = append(nids, k.(int32))
		return true
	})
	slices.Sort(nids)
	return forEachParallel(ctx, nids, s.Chronology, fn)
}

func (s *MemoryStore) Generation() uint64 {
	return s.gen.Load()
}

func (s *MemoryStore) Close() error { return nil }
