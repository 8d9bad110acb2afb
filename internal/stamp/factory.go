// Package stamp creates and amends stamps: the status, time, author, module
// and path tuples every version carries.
//
// Stamp identity is derived from the tuple, so asking twice for the same
// tuple (within the same transaction) yields the same stamp.
package stamp

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/logging"
	"github.com/roach88/stampview/internal/store"
)

// Factory creates stamps in a store.
//
// Thread-safety: Factory is safe for concurrent use. Concurrent requests for
// the same tuple converge on one stored stamp.
type Factory struct {
	store  store.Store
	logger *zap.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the factory logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) {
		f.logger = logging.Component(l, "stamp")
	}
}

// NewFactory returns a factory writing to s.
func NewFactory(s store.Store, opts ...Option) *Factory {
	f := &Factory{store: s, logger: logging.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MakeStamp returns the stamp for the tuple, creating it if it does not
// exist yet.
func (f *Factory) MakeStamp(state entity.State, time int64, author, module, path int32) (entity.Stamp, error) {
	return f.MakeStampSalted(state, time, author, module, path, uuid.Nil)
}

// MakeStampSalted is MakeStamp with the identity scoped by salt, normally
// the UUID of the owning transaction.
func (f *Factory) MakeStampSalted(state entity.State, time int64, author, module, path int32, salt uuid.UUID) (entity.Stamp, error) {
	if err := validateTuple(state, time, author, module, path); err != nil {
		return entity.Stamp{}, err
	}

	authorID, err := f.primaryUUID(author)
	if err != nil {
		return entity.Stamp{}, errors.Wrap(err, "resolve author")
	}
	moduleID, err := f.primaryUUID(module)
	if err != nil {
		return entity.Stamp{}, errors.Wrap(err, "resolve module")
	}
	pathID, err := f.primaryUUID(path)
	if err != nil {
		return entity.Stamp{}, errors.Wrap(err, "resolve path")
	}

	id, err := entity.StampUUID(state, time, authorID, moduleID, pathID, salt)
	if err != nil {
		return entity.Stamp{}, err
	}
	nid, err := f.store.NidForUUID(id)
	if err != nil {
		return entity.Stamp{}, errors.Wrap(err, "assign stamp nid")
	}

	if existing, ok, err := f.store.Stamp(nid); err != nil {
		return entity.Stamp{}, err
	} else if ok {
		return existing, nil
	}

	s := entity.Stamp{
		Nid:  nid,
		UUID: id,
		Versions: []entity.StampVersion{{
			State:     state,
			Time:      time,
			AuthorNid: author,
			ModuleNid: module,
			PathNid:   path,
		}},
	}
	if err := f.store.PutStamp(s); err != nil {
		return entity.Stamp{}, errors.Wrap(err, "store stamp")
	}
	f.logger.Debug("stamp created",
		zap.Int32(logging.FieldNid, nid),
		zap.String(logging.FieldStamp, id.String()),
		zap.String("state", state.String()),
		zap.String("time", entity.FormatTime(time)))

	// A concurrent creator may have stored first; return what the store holds.
	stored, ok, err := f.store.Stamp(nid)
	if err != nil {
		return entity.Stamp{}, err
	}
	if !ok {
		return entity.Stamp{}, errors.AssertionFailedf("stamp %d vanished after put", nid)
	}
	return stored, nil
}

// Analogue appends an analogue with the given state and time to the stamp
// stored under stampNid and returns the amended stamp. Author, module and
// path carry over from the last analogue.
func (f *Factory) Analogue(stampNid int32, state entity.State, time int64) (entity.Stamp, error) {
	if !state.IsValid() {
		return entity.Stamp{}, errors.Validationf("analogue of stamp %d: invalid state %s", stampNid, state)
	}
	s, err := f.Stamp(stampNid)
	if err != nil {
		return entity.Stamp{}, err
	}
	amended := s.Analogue(state, time)
	if err := f.store.PutStamp(amended); err != nil {
		return entity.Stamp{}, errors.Wrapf(err, "store analogue of stamp %d", stampNid)
	}
	return amended, nil
}

// Stamp returns the stamp stored under nid.
func (f *Factory) Stamp(nid int32) (entity.Stamp, error) {
	s, ok, err := f.store.Stamp(nid)
	if err != nil {
		return entity.Stamp{}, err
	}
	if !ok {
		return entity.Stamp{}, errors.Wrapf(errors.ErrNotFound, "stamp %d", nid)
	}
	return s, nil
}

// ByUUID returns the stamp with public identity id.
func (f *Factory) ByUUID(id uuid.UUID) (entity.Stamp, error) {
	nid, err := f.store.NidForUUID(id)
	if err != nil {
		return entity.Stamp{}, err
	}
	return f.Stamp(nid)
}

func (f *Factory) primaryUUID(nid int32) (uuid.UUID, error) {
	ids, err := f.store.PublicID(nid)
	if err != nil {
		return uuid.Nil, err
	}
	return ids[0], nil
}

func validateTuple(state entity.State, time int64, author, module, path int32) error {
	if !state.IsValid() {
		return errors.Validationf("make stamp: state is required")
	}
	if time == entity.TimeCanceled {
		return errors.Validationf("make stamp: time is the minimum sentinel")
	}
	if err := entity.ValidateNids(author, module, path); err != nil {
		return errors.Wrap(err, "make stamp")
	}
	return nil
}
