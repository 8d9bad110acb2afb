package txn

import (
	"bytes"
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
	"github.com/roach88/stampview/internal/logging"
	"github.com/roach88/stampview/internal/metrics"
)

// State is the lifecycle state of a transaction.
type State uint8

const (
	StateOpen State = iota
	StateCommitted
	StateCanceled
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitted:
		return "committed"
	case StateCanceled:
		return "canceled"
	}
	return "unknown"
}

// Transaction groups pending stamps and the components edited under them
// until it is committed or canceled. Both outcomes are terminal.
//
// Thread-safety: one logical owner mutates a transaction while lookups read
// it concurrently. The stamp and component sets tolerate concurrent adds
// during iteration; resolution is serialized by mu.
type Transaction struct {
	id       uuid.UUID
	name     string
	registry *Registry

	stamps     sync.Map // uuid.UUID -> struct{}
	components sync.Map // int32 -> struct{}

	mu         sync.Mutex
	state      State
	commitTime int64
}

func newTransaction(r *Registry, id uuid.UUID, name string) *Transaction {
	return &Transaction{
		id:         id,
		name:       name,
		registry:   r,
		state:      StateOpen,
		commitTime: entity.TimeUncommitted,
	}
}

// ID returns the transaction identity.
func (t *Transaction) ID() uuid.UUID { return t.id }

// Name returns the human-readable name given at Open.
func (t *Transaction) Name() string { return t.name }

// State returns the lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// CommitTime returns the time assigned at commit, or TimeUncommitted.
func (t *Transaction) CommitTime() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitTime
}

// StampUUIDs returns the pending stamp identities in byte order.
func (t *Transaction) StampUUIDs() []uuid.UUID {
	var ids []uuid.UUID
	t.stamps.Range(func(k, _ any) bool {
		ids = append(ids, k.(uuid.UUID))
		return true
	})
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	return ids
}

// Components returns the nids of entities edited in this transaction.
func (t *Transaction) Components() intid.Set {
	var nids []int32
	t.components.Range(func(k, _ any) bool {
		nids = append(nids, k.(int32))
		return true
	})
	return intid.SetOf(nids...)
}

// ContainsStamp reports whether id is pending in this transaction.
func (t *Transaction) ContainsStamp(id uuid.UUID) bool {
	_, ok := t.stamps.Load(id)
	return ok
}

// GetOrCreateStamp returns the stamp for the tuple scoped to this
// transaction and records it as pending. Repeated calls with the same tuple
// return the same stamp.
func (t *Transaction) GetOrCreateStamp(state entity.State, time int64, author, module, path int32) (entity.Stamp, error) {
	if err := t.checkOpen(); err != nil {
		return entity.Stamp{}, err
	}
	s, err := t.registry.factory.MakeStampSalted(state, time, author, module, path, t.id)
	if err != nil {
		return entity.Stamp{}, err
	}
	t.stamps.Store(s.UUID, struct{}{})
	return s, nil
}

// AddStamp records an existing stamp as pending in this transaction. A
// stamp pending in another active transaction is rejected.
func (t *Transaction) AddStamp(id uuid.UUID) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if id == uuid.Nil {
		return errors.Validationf("transaction %s: nil stamp uuid", t.id)
	}
	t.registry.claimMu.Lock()
	defer t.registry.claimMu.Unlock()
	if owner, ok := t.registry.ForStamp(id); ok && owner != t {
		return errors.Validationf("transaction %s: stamp %s is pending in transaction %s", t.id, id, owner.id)
	}
	t.stamps.Store(id, struct{}{})
	return nil
}

// AddComponent records that the latest edit of nid belongs to this
// transaction.
func (t *Transaction) AddComponent(nid int32) error {
	if err := entity.ValidateNid(nid); err != nil {
		return errors.Wrapf(err, "transaction %s: add component", t.id)
	}
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.components.Store(nid, struct{}{})
	return nil
}

func (t *Transaction) checkOpen() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen {
		return errors.Wrapf(errors.ErrTransactionResolved, "transaction %s is %s", t.id, t.state)
	}
	return nil
}

// Commit assigns one wall-clock time to every pending stamp that is still
// uncommitted, removes the transaction from the registry and notifies
// refresh listeners. Stamps already carrying a real time are left as they
// are. It returns the number of stamps finalized.
func (t *Transaction) Commit(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var ev *RefreshEvent
	defer func() { t.registry.notify(ev) }()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen {
		return 0, errors.Wrapf(errors.ErrTransactionResolved, "commit transaction %s: already %s", t.id, t.state)
	}

	commitTime := t.registry.clock.NowMillis()
	finalized, err := t.commitStamps(t.StampUUIDs(), commitTime)
	if err != nil {
		return finalized, err
	}
	t.state = StateCommitted
	t.commitTime = commitTime
	ev = t.registry.resolved(t, metrics.OutcomeCommitted, finalized)
	return finalized, nil
}

func (t *Transaction) commitStamps(ids []uuid.UUID, commitTime int64) (int, error) {
	f := t.registry.factory
	finalized := 0
	for _, id := range ids {
		s, err := f.ByUUID(id)
		if err != nil {
			return finalized, errors.Wrapf(err, "commit transaction %s: stamp %s", t.id, id)
		}
		last := s.Last()
		if !last.IsUncommitted() || last.IsCanceled() {
			continue
		}
		if _, err := f.Analogue(s.Nid, last.State, commitTime); err != nil {
			return finalized, errors.Wrapf(err, "commit transaction %s", t.id)
		}
		finalized++
	}
	return finalized, nil
}

// Cancel appends a cancellation tombstone to every pending stamp not
// already canceled, removes the transaction from the registry and notifies
// refresh listeners. Canceling a canceled transaction tombstones nothing.
func (t *Transaction) Cancel(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var ev *RefreshEvent
	defer func() { t.registry.notify(ev) }()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateCommitted {
		return 0, errors.Wrapf(errors.ErrTransactionResolved, "cancel transaction %s: already committed", t.id)
	}

	canceled, err := t.cancelStamps(t.StampUUIDs())
	if err != nil {
		return canceled, err
	}
	if t.state == StateOpen {
		t.state = StateCanceled
		t.commitTime = entity.TimeCanceled
		ev = t.registry.resolved(t, metrics.OutcomeCanceled, canceled)
	}
	return canceled, nil
}

func (t *Transaction) cancelStamps(ids []uuid.UUID) (int, error) {
	f := t.registry.factory
	canceled := 0
	for _, id := range ids {
		s, err := f.ByUUID(id)
		if err != nil {
			return canceled, errors.Wrapf(err, "cancel transaction %s: stamp %s", t.id, id)
		}
		if s.Last().IsCanceled() {
			continue
		}
		if _, err := f.Analogue(s.Nid, entity.StateCanceled, entity.TimeCanceled); err != nil {
			return canceled, errors.Wrapf(err, "cancel transaction %s", t.id)
		}
		canceled++
	}
	return canceled, nil
}

// resolveStamp finalizes one pending stamp and drops it from the pending
// set. The transaction itself resolves once nothing is left pending.
func (t *Transaction) resolveStamp(ctx context.Context, id uuid.UUID, commit bool) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var ev *RefreshEvent
	defer func() { t.registry.notify(ev) }()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateOpen {
		return 0, errors.Wrapf(errors.ErrTransactionResolved, "transaction %s is %s", t.id, t.state)
	}

	var (
		n   int
		err error
	)
	now := t.registry.clock.NowMillis()
	if commit {
		n, err = t.commitStamps([]uuid.UUID{id}, now)
	} else {
		n, err = t.cancelStamps([]uuid.UUID{id})
	}
	if err != nil {
		return n, err
	}
	t.stamps.Delete(id)

	empty := true
	t.stamps.Range(func(_, _ any) bool {
		empty = false
		return false
	})
	if empty {
		outcome := metrics.OutcomeCommitted
		t.state, t.commitTime = StateCommitted, now
		if !commit {
			outcome = metrics.OutcomeCanceled
			t.state, t.commitTime = StateCanceled, entity.TimeCanceled
		}
		ev = t.registry.resolved(t, outcome, n)
	}
	return n, nil
}

func (t *Transaction) logFields() []zap.Field {
	return []zap.Field{
		zap.String(logging.FieldTransaction, t.id.String()),
		zap.String(logging.FieldName, t.name),
	}
}
