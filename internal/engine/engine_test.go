package engine

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stampview/internal/calc"
	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/metrics"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/term"
	"github.com/roach88/stampview/internal/testutil"
	"github.com/roach88/stampview/internal/txn"
)

const start int64 = 1_700_000_000_000

func newEngine(t *testing.T, opts ...Option) (*Engine, *testutil.Builder, *testutil.ManualClock) {
	t.Helper()
	clock := testutil.NewManualClock(start)
	e, err := New(store.NewMemoryStore(), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, testutil.NewBuilder(t, e.Store()), clock
}

func TestNew_LoadsPresets(t *testing.T) {
	e, _, _ := newEngine(t)
	p := e.Presets()
	require.NotNil(t, p)
	assert.NoError(t, p.DefaultView.Validate())
	assert.NotNil(t, e.Stamps())
	assert.Empty(t, e.Transactions().Active())
}

func TestStampCalculator_SharedByValue(t *testing.T) {
	e, b, _ := newEngine(t, WithMetrics(metrics.New(nil)))
	a, err := e.StampCalculator(coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	require.NoError(t, err)
	again, err := e.StampCalculator(coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	require.NoError(t, err)
	assert.Same(t, a, again)

	other, err := e.StampCalculator(coordinate.NewStampCoordinate(coordinate.ActiveAndInactive, coordinate.LatestOn(b.Path)))
	require.NoError(t, err)
	assert.NotSame(t, a, other)

	e.Refresh()
	rebuilt, err := e.StampCalculator(coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	require.NoError(t, err)
	assert.NotSame(t, a, rebuilt)
}

func TestLanguageCalculator_SharedByValue(t *testing.T) {
	e, _, _ := newEngine(t)
	p := e.Presets()
	a, err := e.LanguageCalculator(p.DevelopmentLatest, p.USEnglishRegularName)
	require.NoError(t, err)
	b, err := e.LanguageCalculator(p.DevelopmentLatest, p.USEnglishRegularName)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := e.LanguageCalculator(p.DevelopmentLatest, p.USEnglishFullyQualifiedName)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Same(t, a.StampCalculator(), c.StampCalculator(), "nested calculators are shared")
}

// navigationView defines is-a and part-of navigation patterns and returns
// the default view navigating both.
func navigationView(t *testing.T, e *Engine, b *testutil.Builder) coordinate.ViewCoordinate {
	t.Helper()
	boot := b.Bootstrap()
	isA := b.NavigationPattern(term.InferredNavigationPattern, b.Nid(term.IsA), boot)
	partOf := b.NavigationPattern(term.StatedNavigationPattern, b.Nid(term.PartOf), boot)
	return e.Presets().DefaultView.WithNavigation(
		coordinate.NewNavigationCoordinate(coordinate.ActiveAndInactive, isA, partOf))
}

func TestNavigationCalculator_TwoPatterns(t *testing.T) {
	e, b, _ := newEngine(t)
	view := navigationView(t, e, b)
	s := b.Stamp(entity.StateActive, 100)
	a, bb, c := b.Concept("A", s), b.Concept("B", s), b.Concept("C", s)
	isA := b.Nid(term.InferredNavigationPattern)
	partOf := b.Nid(term.StatedNavigationPattern)
	b.Hierarchy(isA, s, map[int32][]int32{a: {bb}})
	b.Hierarchy(partOf, s, map[int32][]int32{a: {c}})

	nav, err := e.NavigationCalculator(view)
	require.NoError(t, err)
	parents, err := nav.UnsortedParentsOf(a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{bb, c}, parents.ToArray())

	edges, err := nav.ParentEdges(a)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.False(t, edges[0].Types.Equal(edges[1].Types), "two distinct relationship types")

	same, err := e.NavigationCalculator(view)
	require.NoError(t, err)
	assert.Same(t, nav, same)
}

func TestNavigationCalculator_RejectsInvalidView(t *testing.T) {
	e, _, _ := newEngine(t)
	view := e.Presets().DefaultView
	view.Languages = nil
	_, err := e.NavigationCalculator(view)
	assert.Error(t, err)
}

func TestTransaction_EndToEnd(t *testing.T) {
	e, b, clock := newEngine(t)

	var (
		mu     sync.Mutex
		events []txn.RefreshEvent
	)
	e.Subscribe(func(ev txn.RefreshEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	tx := e.Transactions().Open("edit two concepts")
	active, err := tx.GetOrCreateStamp(entity.StateActive, entity.TimeUncommitted, b.Author, b.Module, b.Path)
	require.NoError(t, err)
	inactive, err := tx.GetOrCreateStamp(entity.StateInactive, entity.TimeUncommitted, b.Author, b.Module, b.Path)
	require.NoError(t, err)
	first := b.Concept("first", active.Nid)
	second := b.Concept("second", inactive.Nid)
	require.NoError(t, tx.AddComponent(first))
	require.NoError(t, tx.AddComponent(second))

	clock.Set(start + 5000)
	n, err := tx.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, nid := range []int32{first, second} {
		c, ok, err := e.Store().Chronology(nid)
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, c.Versions, 1)
		st, err := e.Stamps().Stamp(c.Versions[0].StampNid)
		require.NoError(t, err)
		assert.Equal(t, start+5000, st.Time())
	}
	_, stillActive := e.Transactions().Get(tx.ID())
	assert.False(t, stillActive)

	affected, err := e.AffectedConcepts(context.Background(), tx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{first, second}, affected.ToArray())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, tx.ID(), events[0].Transaction)
	assert.Equal(t, 2, events[0].Stamps)
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_ReturnsAfterStop(t *testing.T) {
	e, _, _ := newEngine(t)
	var delivered atomic.Int32
	unsubscribe := e.Subscribe(func(txn.RefreshEvent) { delivered.Add(1) })
	defer unsubscribe()

	tx := e.Transactions().Open("empty")
	_, err := tx.Cancel(context.Background())
	require.NoError(t, err)

	e.Stop()
	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, int32(1), delivered.Load(), "queued events drain before Run returns")
}

func TestRefresh_NotQueuedWithoutSubscribers(t *testing.T) {
	e, _, _ := newEngine(t)

	tx := e.Transactions().Open("unobserved")
	_, err := tx.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, e.queue.Len())

	unsubscribe := e.Subscribe(func(txn.RefreshEvent) {})
	tx = e.Transactions().Open("observed")
	_, err = tx.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, e.queue.Len())

	unsubscribe()
	tx = e.Transactions().Open("unobserved again")
	_, err = tx.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, e.queue.Len())
}

func TestAffectedConcepts_FollowsSemanticReferences(t *testing.T) {
	e, b, _ := newEngine(t)
	boot := b.Bootstrap()
	concept := b.Concept("described", boot)

	tx := e.Transactions().Open("describe")
	s, err := tx.GetOrCreateStamp(entity.StateActive, entity.TimeUncommitted, b.Author, b.Module, b.Path)
	require.NoError(t, err)
	desc := b.Description(concept, s.Nid, b.Nid(term.EnglishLanguage), "Described", b.Nid(term.RegularName))
	b.Acceptability(desc, b.Nid(term.USDialectPattern), b.Nid(term.Preferred), s.Nid)

	affected, err := e.AffectedConcepts(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, []int32{concept}, affected.ToArray())
}

func TestForEachLatest(t *testing.T) {
	e, b, _ := newEngine(t)
	s100 := b.Stamp(entity.StateActive, 100)
	s200 := b.Stamp(entity.StateInactive, 200)
	keep := b.Concept("kept", s100)
	b.Concept("kept", s200)
	b.Concept("hidden", s200)

	coord := coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path))
	var (
		mu   sync.Mutex
		seen = map[int32]int32{}
	)
	err := e.ForEachLatest(context.Background(), coord, func(_ context.Context, c entity.Chronology, l calc.Latest[entity.Version]) error {
		mu.Lock()
		seen[c.Nid] = l.Value().StampNid
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[int32]int32{keep: s100}, seen)
}

func TestRootDir_SavesAndRestoresTransactions(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "store.db")

	s, err := store.OpenSQLite(dbPath)
	require.NoError(t, err)
	e, err := New(s, WithRootDir(dir))
	require.NoError(t, err)
	b := testutil.NewBuilder(t, e.Store())
	tx := e.Transactions().Open("unfinished")
	_, err = tx.GetOrCreateStamp(entity.StateActive, entity.TimeUncommitted, b.Author, b.Module, b.Path)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.FileExists(t, filepath.Join(dir, txn.DefaultFileName))

	s, err = store.OpenSQLite(dbPath)
	require.NoError(t, err)
	reopened, err := New(s, WithRootDir(dir))
	require.NoError(t, err)
	defer reopened.Close()

	restored, ok := reopened.Transactions().Get(tx.ID())
	require.True(t, ok)
	assert.Equal(t, "unfinished", restored.Name())
	assert.Equal(t, tx.StampUUIDs(), restored.StampUUIDs())
}
