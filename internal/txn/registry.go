// Package txn groups pending stamps into transactions and resolves them by
// commit or cancel.
//
// The Registry replaces process-wide state: every component that needs the
// active transaction set is handed a Registry explicitly.
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
	"github.com/roach88/stampview/internal/stamp"
)

// RefreshEvent is delivered to listeners after a transaction resolves.
type RefreshEvent struct {
	Transaction uuid.UUID
	Name        string
	Outcome     string
	Stamps      int
	Components  intid.Set
}

// Registry is the set of active transactions.
//
// Thread-safety: Registry is safe for concurrent use. The active set is a
// concurrent map; no lock spans the whole registry.
type Registry struct {
	factory *stamp.Factory
	clock   Clock
	ids     IDGenerator
	logger  *zap.Logger
	metrics *metrics.Metrics

	active sync.Map // uuid.UUID -> *Transaction

	// claimMu serializes stamp adoption so a pending stamp has one owner.
	claimMu sync.Mutex

	listenersMu sync.RWMutex
	listeners   map[int]func(RefreshEvent)
	nextID      int
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the commit clock. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithIDGenerator sets the transaction id source. Defaults to UUIDv7.
func WithIDGenerator(g IDGenerator) Option {
	return func(r *Registry) { r.ids = g }
}

// WithLogger sets the registry logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = logging.Component(l, "txn") }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry returns an empty registry creating stamps through factory.
func NewRegistry(factory *stamp.Factory, opts ...Option) *Registry {
	r := &Registry{
		factory:   factory,
		clock:     SystemClock{},
		ids:       UUIDv7Generator{},
		logger:    logging.Nop(),
		listeners: map[int]func(RefreshEvent){},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open registers a new transaction.
func (r *Registry) Open(name string) *Transaction {
	t := newTransaction(r, r.ids.NewID(), name)
	r.active.Store(t.id, t)
	r.metrics.TransactionOpened()
	r.logger.Debug("transaction opened", t.logFields()...)
	return t
}

// Get returns the active transaction with the given id.
func (r *Registry) Get(id uuid.UUID) (*Transaction, bool) {
	v, ok := r.active.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Transaction), true
}

// Lookup returns the active transaction with the given id, or an error
// marked ErrTransactionNotFound.
func (r *Registry) Lookup(id uuid.UUID) (*Transaction, error) {
	t, ok := r.Get(id)
	if !ok {
		return nil, errors.Wrapf(errors.ErrTransactionNotFound, "no active transaction %s", id)
	}
	return t, nil
}

// Active returns the open transactions ordered by id.
func (r *Registry) Active() []*Transaction {
	var out []*Transaction
	r.active.Range(func(_, v any) bool {
		out = append(out, v.(*Transaction))
		return true
	})
	slices.SortFunc(out, func(a, b *Transaction) int { return bytes.Compare(a.id[:], b.id[:]) })
	return out
}

// ForStamp returns the active transaction holding the stamp. The scan is
// linear in the number of active transactions.
func (r *Registry) ForStamp(stampUUID uuid.UUID) (*Transaction, bool) {
	var found *Transaction
	r.active.Range(func(_, v any) bool {
		t := v.(*Transaction)
		if t.ContainsStamp(stampUUID) {
			found = t
			return false
		}
		return true
	})
	return found, found != nil
}

// ForVersion returns the active transaction holding the stamp of v.
func (r *Registry) ForVersion(v entity.Version) (*Transaction, bool, error) {
	s, err := r.factory.Stamp(v.StampNid)
	if err != nil {
		return nil, false, err
	}
	t, ok := r.ForStamp(s.UUID)
	return t, ok, nil
}

// CommitVersion finalizes the stamp of one version. When no active
// transaction holds the stamp a single-stamp transaction is synthesized so
// the edit still resolves.
func (r *Registry) CommitVersion(ctx context.Context, v entity.Version) (int, error) {
	return r.resolveVersion(ctx, v, true)
}

// CancelVersion tombstones the stamp of one version, synthesizing a
// transaction on a registry miss like CommitVersion.
func (r *Registry) CancelVersion(ctx context.Context, v entity.Version) (int, error) {
	return r.resolveVersion(ctx, v, false)
}

func (r *Registry) resolveVersion(ctx context.Context, v entity.Version, commit bool) (int, error) {
	s, err := r.factory.Stamp(v.StampNid)
	if err != nil {
		return 0, err
	}
	t, ok := r.ForStamp(s.UUID)
	if !ok {
		r.metrics.RegistryMiss()
		r.logger.Warn("no transaction for stamp, synthesizing one",
			zap.String(logging.FieldStamp, s.UUID.String()),
			zap.Int32(logging.FieldNid, s.Nid),
			zap.Bool("commit", commit))
		t = r.Open("synthesized for " + s.UUID.String())
		if err := t.AddStamp(s.UUID); err != nil {
			return 0, err
		}
	}
	return t.resolveStamp(ctx, s.UUID, commit)
}

// OnRefresh registers fn to run after every resolution. The returned
// function unregisters it.
func (r *Registry) OnRefresh(fn func(RefreshEvent)) (unsubscribe func()) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = fn
	return func() {
		r.listenersMu.Lock()
		defer r.listenersMu.Unlock()
		delete(r.listeners, id)
	}
}

// resolved removes t from the active set and builds its refresh event.
// Called with t.mu held; the event is delivered after it is released.
func (r *Registry) resolved(t *Transaction, outcome string, stamps int) *RefreshEvent {
	r.active.Delete(t.id)
	r.metrics.TransactionResolved(outcome, stamps)
	r.logger.Info("transaction "+outcome,
		append(t.logFields(),
			zap.Int(logging.FieldCount, stamps),
			zap.String(logging.FieldCommitTime, entity.FormatTime(t.commitTime)))...)
	return &RefreshEvent{
		Transaction: t.id,
		Name:        t.name,
		Outcome:     outcome,
		Stamps:      stamps,
		Components:  t.Components(),
	}
}

func (r *Registry) notify(ev *RefreshEvent) {
	if ev == nil {
		return
	}
	r.listenersMu.RLock()
	fns := make([]func(RefreshEvent), 0, len(r.listeners))
	ids := make([]int, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, r.listeners[id])
	}
	r.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(*ev)
	}
}

// restore registers a transaction read back from disk. A stamp already
// pending in another active transaction is rejected.
func (r *Registry) restore(id uuid.UUID, name string, stamps []uuid.UUID, components []int32) (bool, error) {
	if _, ok := r.active.Load(id); ok {
		return false, nil
	}
	r.claimMu.Lock()
	defer r.claimMu.Unlock()
	t := newTransaction(r, id, name)
	for _, s := range stamps {
		if owner, ok := r.ForStamp(s); ok {
			return false, errors.Validationf("restore transaction %s: stamp %s is pending in transaction %s", id, s, owner.id)
		}
		t.stamps.Store(s, struct{}{})
	}
	for _, nid := range components {
		if err := entity.ValidateNid(nid); err != nil {
			return false, errors.Wrapf(err, "restore transaction %s", id)
		}
		t.components.Store(nid, struct{}{})
	}
	if _, loaded := r.active.LoadOrStore(id, t); loaded {
		return false, nil
	}
	r.metrics.TransactionOpened()
	return true, nil
}
