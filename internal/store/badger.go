package store

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
)

// Key prefixes. Nids are encoded big-endian with the sign bit flipped so
// prefix scans return them in ascending order.
const (
	prefixUUID       byte = 'u' // u + uuid -> nid
	prefixPublicID   byte = 'n' // n + nid -> []uuid json
	prefixChronology byte = 'c' // c + nid -> chronology json
	prefixStamp      byte = 's' // s + nid -> stamp json
	prefixIndex      byte = 'i' // i + component + pattern + semantic -> empty
)

var nidSequenceKey = []byte("#nid")

const maxConflictRetries = 8

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Dir is the database directory. Ignored when InMemory is true.
	Dir string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	Logger *zap.Logger
}

// BadgerStore is a durable Store on an embedded LSM key-value store.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
	gen atomic.Uint64
}

var _ Store = (*BadgerStore)(nil)

// badgerLogger adapts zap to badger's Logger interface.
type badgerLogger struct {
	l *zap.SugaredLogger
}

func (b badgerLogger) Errorf(format string, args ...any)   { b.l.Errorf(format, args...) }
func (b badgerLogger) Warningf(format string, args ...any) { b.l.Warnf(format, args...) }
func (b badgerLogger) Infof(format string, args ...any)    { b.l.Debugf(format, args...) }
func (b badgerLogger) Debugf(format string, args ...any)   { b.l.Debugf(format, args...) }

// OpenBadger opens or creates a BadgerStore.
func OpenBadger(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.Validationf("badger store: dir is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, errors.Wrapf(err, "create database directory %s", cfg.Dir)
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{l: cfg.Logger.Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger database")
	}
	seq, err := db.GetSequence(nidSequenceKey, 128)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "open nid sequence")
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

// Close releases the nid sequence and closes the database.
func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	var errs error
	if err := s.seq.Release(); err != nil {
		errs = errors.Wrap(err, "release nid sequence")
	}
	if err := s.db.Close(); err != nil && errs == nil {
		errs = errors.Wrap(err, "close badger database")
	}
	return errs
}

func nidKey(prefix byte, nids ...int32) []byte {
	key := make([]byte, 1, 1+4*len(nids))
	key[0] = prefix
	for _, nid := range nids {
		key = append(key, encodeNid(nid)...)
	}
	return key
}

func encodeNid(nid int32) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(nid)^0x80000000)
}

func decodeNid(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b) ^ 0x80000000)
}

func uuidKey(id uuid.UUID) []byte {
	return append([]byte{prefixUUID}, id[:]...)
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getValue(txn *badger.Txn, key []byte) ([]byte, bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *BadgerStore) NidForUUID(id uuid.UUID) (int32, error) {
	return s.NidForPublicID(id)
}

func (s *BadgerStore) LookupNid(id uuid.UUID) (int32, bool, error) {
	var nid int32
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		v, ok, err := getValue(txn, uuidKey(id))
		if err != nil || !ok {
			return err
		}
		nid, found = decodeNid(v), true
		return nil
	})
	if err != nil {
		return entity.NidUnset, false, errors.Wrapf(err, "lookup nid for %s", id)
	}
	return nid, found, nil
}

func (s *BadgerStore) NidForPublicID(ids ...uuid.UUID) (int32, error) {
	if len(ids) == 0 {
		return entity.NidInvalid, errors.Validationf("nid for public id: no uuids")
	}
	var nid int32
	assigned := false
	err := s.update(func(txn *badger.Txn) error {
		assigned = false
		for _, id := range ids {
			v, ok, err := getValue(txn, uuidKey(id))
			if err != nil {
				return err
			}
			if ok {
				nid = decodeNid(v)
				return nil
			}
		}
		next, err := s.seq.Next()
		if err != nil {
			return errors.Wrap(err, "allocate nid")
		}
		if next+1 >= math.MaxInt32 {
			return errors.New("nid space exhausted")
		}
		nid = int32(next + 1)
		assigned = true
		return s.bindUUIDs(txn, nid, ids)
	})
	if err != nil {
		return entity.NidInvalid, errors.Wrap(err, "nid for public id")
	}
	if assigned {
		s.gen.Add(1)
	}
	return nid, nil
}

func (s *BadgerStore) bindUUIDs(txn *badger.Txn, nid int32, ids []uuid.UUID) error {
	pk := nidKey(prefixPublicID, nid)
	var known []uuid.UUID
	if v, ok, err := getValue(txn, pk); err != nil {
		return err
	} else if ok {
		if known, err = unmarshalUUIDs(v); err != nil {
			return err
		}
	}
	for _, id := range ids {
		if _, ok, err := getValue(txn, uuidKey(id)); err != nil {
			return err
		} else if !ok {
			if err := txn.Set(uuidKey(id), encodeNid(nid)); err != nil {
				return err
			}
		}
	}
	merged := mergeUUIDs(known, ids)
	if len(merged) == len(known) {
		return nil
	}
	data, err := marshalUUIDs(merged)
	if err != nil {
		return err
	}
	return txn.Set(pk, data)
}

func (s *BadgerStore) PublicID(nid int32) ([]uuid.UUID, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		v, ok, err := getValue(txn, nidKey(prefixPublicID, nid))
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrapf(errors.ErrNotFound, "public id for nid %d", nid)
		}
		ids, err = unmarshalUUIDs(v)
		return err
	})
	return ids, err
}

func (s *BadgerStore) Chronology(nid int32) (entity.Chronology, bool, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return entity.Chronology{}, false, err
	}
	var (
		c     entity.Chronology
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		c, found, err = readBadgerChronology(txn, nid)
		return err
	})
	return c, found, err
}

func readBadgerChronology(txn *badger.Txn, nid int32) (entity.Chronology, bool, error) {
	v, ok, err := getValue(txn, nidKey(prefixChronology, nid))
	if err != nil || !ok {
		return entity.Chronology{}, false, err
	}
	c, err := unmarshalChronology(v)
	return c, err == nil, err
}

func readBadgerStamp(txn *badger.Txn, nid int32) (entity.Stamp, bool, error) {
	v, ok, err := getValue(txn, nidKey(prefixStamp, nid))
	if err != nil || !ok {
		return entity.Stamp{}, false, err
	}
	st, err := unmarshalStamp(v)
	return st, err == nil, err
}

func (s *BadgerStore) PutEntity(c entity.Chronology) error {
	if err := validateForPut(c); err != nil {
		return err
	}
	wrote := false
	err := s.update(func(txn *badger.Txn) error {
		wrote = false
		merged := c
		existing, ok, err := readBadgerChronology(txn, c.Nid)
		if err != nil {
			return err
		}
		if ok {
			var changed bool
			merged, changed, err = mergeChronology(existing, c, func(nid int32) (entity.Stamp, bool, error) {
				return readBadgerStamp(txn, nid)
			})
			if err != nil || !changed {
				return err
			}
		} else if c.Kind == entity.KindSemantic {
			key := nidKey(prefixIndex, c.ReferencedComponentNid, c.PatternNid, c.Nid)
			if err := txn.Set(key, nil); err != nil {
				return err
			}
		}
		data, err := marshalChronology(merged)
		if err != nil {
			return err
		}
		if err := txn.Set(nidKey(prefixChronology, merged.Nid), data); err != nil {
			return err
		}
		wrote = true
		return s.bindUUIDs(txn, merged.Nid, merged.UUIDs)
	})
	if err != nil {
		return errors.Wrapf(err, "put entity %d", c.Nid)
	}
	if wrote {
		s.gen.Add(1)
	}
	return nil
}

func (s *BadgerStore) Stamp(nid int32) (entity.Stamp, bool, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return entity.Stamp{}, false, err
	}
	var (
		st    entity.Stamp
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		st, found, err = readBadgerStamp(txn, nid)
		return err
	})
	return st, found, err
}

func (s *BadgerStore) PutStamp(st entity.Stamp) error {
	if err := validateStampForPut(st); err != nil {
		return err
	}
	wrote := false
	err := s.update(func(txn *badger.Txn) error {
		wrote = false
		merged := st
		existing, ok, err := readBadgerStamp(txn, st.Nid)
		if err != nil {
			return err
		}
		if ok {
			var changed bool
			if merged, changed = mergeStamp(existing, st); !changed {
				return nil
			}
		}
		data, err := marshalStamp(merged)
		if err != nil {
			return err
		}
		if err := txn.Set(nidKey(prefixStamp, merged.Nid), data); err != nil {
			return err
		}
		wrote = true
		return s.bindUUIDs(txn, merged.Nid, []uuid.UUID{merged.UUID})
	})
	if err != nil {
		return errors.Wrapf(err, "put stamp %d", st.Nid)
	}
	if wrote {
		s.gen.Add(1)
	}
	return nil
}

func (s *BadgerStore) SemanticNidsForComponent(nid int32) ([]int32, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return nil, err
	}
	return s.scanIndex(nidKey(prefixIndex, nid))
}

func (s *BadgerStore) SemanticNidsForComponentOfPattern(nid, patternNid int32) ([]int32, error) {
	if err := entity.ValidateNids(nid, patternNid); err != nil {
		return nil, err
	}
	return s.scanIndex(nidKey(prefixIndex, nid, patternNid))
}

// scanIndex returns the semantic nid suffix of every index key under prefix.
func (s *BadgerStore) scanIndex(prefix []byte) ([]int32, error) {
	var nids []int32
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			nids = append(nids, decodeNid(key[len(key)-4:]))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan semantic index")
	}
	return nids, nil
}

func (s *BadgerStore) ForEachParallel(ctx context.Context, fn func(ctx context.Context, c entity.Chronology) error) error {
	var nids []int32
	prefix := []byte{prefixChronology}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			nids = append(nids, decodeNid(it.Item().Key()[1:]))
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "scan chronologies")
	}
	return forEachParallel(ctx, nids, s.Chronology, fn)
}

func (s *BadgerStore) Generation() uint64 {
	return s.gen.Load()
}
