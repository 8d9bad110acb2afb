package engine

import (
	"context"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/roach88/stampview/internal/calc"
	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/logging"
	"github.com/roach88/stampview/internal/metrics"
	"github.com/roach88/stampview/internal/navigation"
	"github.com/roach88/stampview/internal/preset"
	"github.com/roach88/stampview/internal/stamp"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/txn"
)

// Engine is the facade over store, transactions and calculators.
//
// Thread-safety model:
//   - every method except Run is safe from any goroutine
//   - Run must be called from exactly one goroutine
type Engine struct {
	store    store.Store
	factory  *stamp.Factory
	registry *txn.Registry
	presets  *preset.Presets
	logger   *zap.Logger
	metrics  *metrics.Metrics

	clock     txn.Clock
	ids       txn.IDGenerator
	rootDir   string
	txFile    string
	presetSrc []byte
	locale    language.Tag

	stamps      *calc.Cache[calc.StampCalculator]
	languages   *calc.Cache[calc.LanguageCalculator]
	navigations *calc.Cache[navigation.Calculator]

	queue       *refreshQueue
	unsubscribe func()

	subscribersMu sync.RWMutex
	subscribers   map[int]func(txn.RefreshEvent)
	nextID        int

	closeOnce sync.Once
	closeErr  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every component.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics sink shared by every component.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock sets the commit clock.
func WithClock(c txn.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the transaction id source.
func WithIDGenerator(g txn.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithRootDir restores active transactions from dir on New and saves them
// there on Close.
func WithRootDir(dir string) Option {
	return func(e *Engine) {
		e.rootDir = dir
	}
}

// WithTransactionsFile overrides the transactions file name under the root
// directory.
func WithTransactionsFile(name string) Option {
	return func(e *Engine) {
		e.txFile = name
	}
}

// WithPresetSource compiles presets from CUE source instead of the
// embedded defaults.
func WithPresetSource(src []byte) Option {
	return func(e *Engine) {
		e.presetSrc = src
	}
}

// WithSortLocale collates navigation vertex text under tag.
func WithSortLocale(tag language.Tag) Option {
	return func(e *Engine) {
		e.locale = tag
	}
}

// New creates an engine over s. The engine owns s and closes it on Close.
func New(s store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:       s,
		logger:      logging.Nop(),
		clock:       txn.SystemClock{},
		txFile:      txn.DefaultFileName,
		queue:       newRefreshQueue(),
		subscribers: map[int]func(txn.RefreshEvent){},
	}
	for _, opt := range opts {
		opt(e)
	}

	e.factory = stamp.NewFactory(s, stamp.WithLogger(e.logger))
	regOpts := []txn.Option{
		txn.WithClock(e.clock),
		txn.WithLogger(e.logger),
		txn.WithMetrics(e.metrics),
	}
	if e.ids != nil {
		regOpts = append(regOpts, txn.WithIDGenerator(e.ids))
	}
	e.registry = txn.NewRegistry(e.factory, regOpts...)

	var err error
	if e.presetSrc != nil {
		e.presets, err = preset.LoadSource(s, "presets.cue", e.presetSrc)
	} else {
		e.presets, err = preset.Load(s)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load presets")
	}

	cacheOpt := calc.WithCacheLogger(e.logger)
	e.stamps = calc.NewCache[calc.StampCalculator]("stamp", e.metrics, cacheOpt)
	e.languages = calc.NewCache[calc.LanguageCalculator]("language", e.metrics, cacheOpt)
	e.navigations = calc.NewCache[navigation.Calculator]("navigation", e.metrics, cacheOpt)

	if e.rootDir != "" {
		n, err := e.registry.Restore(e.transactionsPath())
		if err != nil {
			return nil, errors.Wrap(err, "restore transactions")
		}
		if n > 0 {
			e.logger.Info("restored active transactions",
				zap.Int(logging.FieldCount, n),
				zap.String(logging.FieldPath, e.transactionsPath()))
		}
	}

	e.unsubscribe = e.registry.OnRefresh(func(ev txn.RefreshEvent) {
		if !e.hasSubscribers() {
			return
		}
		if !e.queue.Enqueue(ev) {
			e.logger.Debug("refresh dropped after stop",
				zap.Stringer(logging.FieldTransaction, ev.Transaction))
		}
	})
	return e, nil
}

func (e *Engine) transactionsPath() string {
	return filepath.Join(e.rootDir, e.txFile)
}

// Store returns the entity store.
func (e *Engine) Store() store.Store { return e.store }

// Stamps returns the stamp factory.
func (e *Engine) Stamps() *stamp.Factory { return e.factory }

// Transactions returns the transaction registry.
func (e *Engine) Transactions() *txn.Registry { return e.registry }

// Presets returns the compiled default coordinates.
func (e *Engine) Presets() *preset.Presets { return e.presets }

// StampCalculator returns the calculator for coord.
func (e *Engine) StampCalculator(coord coordinate.StampCoordinate) (*calc.StampCalculator, error) {
	return e.stamps.Get(coord.Key(), func() (*calc.StampCalculator, error) {
		return calc.NewStampCalculator(e.store, coord, calc.WithStampLogger(e.logger))
	})
}

// LanguageCalculator returns the calculator for langs read under stampCoord.
func (e *Engine) LanguageCalculator(stampCoord coordinate.StampCoordinate, langs ...coordinate.LanguageCoordinate) (*calc.LanguageCalculator, error) {
	key := stampCoord.Key() + "|" + coordinate.LanguagesKey(langs...)
	return e.languages.Get(key, func() (*calc.LanguageCalculator, error) {
		stamps, err := e.StampCalculator(stampCoord)
		if err != nil {
			return nil, err
		}
		return calc.NewLanguageCalculator(e.store, stamps, langs...)
	})
}

// NavigationCalculator returns the calculator for view. It holds the
// view's stamp, vertex stamp and language calculators.
func (e *Engine) NavigationCalculator(view coordinate.ViewCoordinate) (*navigation.Calculator, error) {
	if err := view.Validate(); err != nil {
		return nil, err
	}
	return e.navigations.Get(view.Key(), func() (*navigation.Calculator, error) {
		stamps, err := e.StampCalculator(view.Stamp)
		if err != nil {
			return nil, err
		}
		vertices, err := e.StampCalculator(view.VertexStampCoordinate())
		if err != nil {
			return nil, err
		}
		lang, err := e.LanguageCalculator(view.Stamp, view.Languages...)
		if err != nil {
			return nil, err
		}
		return navigation.New(e.store, view, stamps, vertices, lang,
			navigation.WithLogger(e.logger),
			navigation.WithMetrics(e.metrics),
			navigation.WithCollation(e.locale))
	})
}

// Refresh drops every cached calculator. Calculators already handed out
// keep working.
func (e *Engine) Refresh() {
	e.stamps.Purge()
	e.languages.Purge()
	e.navigations.Purge()
	e.logger.Debug("calculator caches purged")
}

// Subscribe registers fn for refresh events delivered by Run. Events are
// queued only while at least one subscriber exists, and the queue grows
// until Run drains it. The returned func removes the subscription.
func (e *Engine) Subscribe(fn func(txn.RefreshEvent)) (unsubscribe func()) {
	e.subscribersMu.Lock()
	id := e.nextID
	e.nextID++
	e.subscribers[id] = fn
	e.subscribersMu.Unlock()
	return func() {
		e.subscribersMu.Lock()
		delete(e.subscribers, id)
		e.subscribersMu.Unlock()
	}
}

func (e *Engine) hasSubscribers() bool {
	e.subscribersMu.RLock()
	defer e.subscribersMu.RUnlock()
	return len(e.subscribers) > 0
}

// Run delivers refresh events to subscribers until ctx is canceled or the
// engine is stopped. Events still queued at Stop are delivered first.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting")
	for {
		if ev, ok := e.queue.TryDequeue(); ok {
			e.deliver(ev)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context canceled")
			e.queue.Close()
			return ctx.Err()
		case <-e.queue.Wait():
			// A closed signal channel fires immediately; stop once drained.
			if e.queue.Len() == 0 && e.queue.Closed() {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

func (e *Engine) deliver(ev txn.RefreshEvent) {
	e.subscribersMu.RLock()
	fns := make([]func(txn.RefreshEvent), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.subscribersMu.RUnlock()

	e.logger.Debug("delivering refresh",
		zap.Stringer(logging.FieldTransaction, ev.Transaction),
		zap.String("outcome", ev.Outcome),
		zap.Int("subscribers", len(fns)))
	for _, fn := range fns {
		fn(ev)
	}
}

// Stop closes the refresh queue, which makes Run return once drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Close stops the engine, saves active transactions when a root directory
// is configured, and closes the store.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.unsubscribe()
		e.Stop()
		if e.rootDir != "" {
			if err := e.registry.Save(e.transactionsPath()); err != nil {
				e.closeErr = errors.Wrap(err, "save transactions")
			}
		}
		if err := e.store.Close(); err != nil && e.closeErr == nil {
			e.closeErr = errors.Wrap(err, "close store")
		}
	})
	return e.closeErr
}
