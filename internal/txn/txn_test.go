package txn

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/testutil"
)

type fixture struct {
	b     *testutil.Builder
	clock *testutil.ManualClock
	reg   *Registry
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	b := testutil.NewBuilder(t, store.NewMemoryStore())
	clock := testutil.NewManualClock(1_700_000_000_000)
	return fixture{b: b, clock: clock, reg: NewRegistry(b.Factory, WithClock(clock))}
}

func (f fixture) pending(t *testing.T, tx *Transaction, state entity.State) entity.Stamp {
	t.Helper()
	s, err := tx.GetOrCreateStamp(state, entity.TimeUncommitted, f.b.Author, f.b.Module, f.b.Path)
	require.NoError(t, err)
	return s
}

func (f fixture) stamp(t *testing.T, nid int32) entity.Stamp {
	t.Helper()
	s, err := f.b.Factory.Stamp(nid)
	require.NoError(t, err)
	return s
}

func TestOpen_RegistersActive(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")

	assert.Equal(t, StateOpen, tx.State())
	assert.Equal(t, "edit", tx.Name())
	assert.Equal(t, entity.TimeUncommitted, tx.CommitTime())
	got, ok := f.reg.Get(tx.ID())
	require.True(t, ok)
	assert.Same(t, tx, got)
	assert.Len(t, f.reg.Active(), 1)
}

func TestGetOrCreateStamp_IdempotentWithinTransaction(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")

	a := f.pending(t, tx, entity.StateActive)
	b := f.pending(t, tx, entity.StateActive)
	assert.Equal(t, a.UUID, b.UUID)
	assert.Len(t, tx.StampUUIDs(), 1)

	other := f.reg.Open("other")
	c := f.pending(t, other, entity.StateActive)
	assert.NotEqual(t, a.UUID, c.UUID, "a pending stamp belongs to one transaction")
}

func TestAddComponent_RejectsSentinels(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")

	for _, nid := range []int32{entity.NidUnset, entity.NidUncommitted, entity.NidInvalid} {
		err := tx.AddComponent(nid)
		assert.ErrorIs(t, err, errors.ErrInvalidNid)
	}
	require.NoError(t, tx.AddComponent(42))
	assert.True(t, tx.Components().Contains(42))
}

func TestCommit_TwoEntitiesShareCommitTime(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("two entities")

	active := f.pending(t, tx, entity.StateActive)
	inactive := f.pending(t, tx, entity.StateInactive)
	a := f.b.Concept("a", active.Nid)
	b := f.b.Concept("b", inactive.Nid)
	require.NoError(t, tx.AddComponent(a))
	require.NoError(t, tx.AddComponent(b))

	n, err := tx.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sa := f.stamp(t, active.Nid)
	sb := f.stamp(t, inactive.Nid)
	assert.Equal(t, f.clock.NowMillis(), sa.Time())
	assert.Equal(t, sa.Time(), sb.Time())
	assert.Equal(t, entity.StateActive, sa.State())
	assert.Equal(t, entity.StateInactive, sb.State())

	for _, nid := range []int32{a, b} {
		c, ok, err := f.b.Store.Chronology(nid)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Len(t, c.Versions, 1)
	}

	assert.Equal(t, StateCommitted, tx.State())
	_, ok := f.reg.Get(tx.ID())
	assert.False(t, ok)
	assert.Empty(t, f.reg.Active())
}

func TestCommit_LeavesRealTimeStampsUntouched(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("import")

	historical, err := tx.GetOrCreateStamp(entity.StateActive, 12345, f.b.Author, f.b.Module, f.b.Path)
	require.NoError(t, err)
	fresh := f.pending(t, tx, entity.StateActive)

	n, err := tx.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	h := f.stamp(t, historical.Nid)
	assert.Len(t, h.Versions, 1)
	assert.Equal(t, int64(12345), h.Time())
	assert.Equal(t, f.clock.NowMillis(), f.stamp(t, fresh.Nid).Time())
}

func TestCommit_Twice(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	f.pending(t, tx, entity.StateActive)

	_, err := tx.Commit(context.Background())
	require.NoError(t, err)
	_, err = tx.Commit(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransactionResolved)
}

func TestAddStamp_RejectsStampPendingElsewhere(t *testing.T) {
	f := newFixture(t)
	tx1 := f.reg.Open("first")
	tx2 := f.reg.Open("second")
	s := f.pending(t, tx1, entity.StateActive)

	err := tx2.AddStamp(s.UUID)
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.False(t, tx2.ContainsStamp(s.UUID))

	canceled, err := tx2.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, canceled)

	committed, err := tx1.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, committed)
	assert.Equal(t, f.clock.NowMillis(), f.stamp(t, s.Nid).Time())
}

func TestAddStamp_SameTransactionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	s := f.pending(t, tx, entity.StateActive)

	require.NoError(t, tx.AddStamp(s.UUID))
	assert.Equal(t, []uuid.UUID{s.UUID}, tx.StampUUIDs())
}

func TestCommit_CanceledContext(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tx.Commit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateOpen, tx.State())
}

func TestResolvedTransactionRejectsEdits(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	_, err := tx.Commit(context.Background())
	require.NoError(t, err)

	_, err = tx.GetOrCreateStamp(entity.StateActive, entity.TimeUncommitted, f.b.Author, f.b.Module, f.b.Path)
	assert.ErrorIs(t, err, errors.ErrTransactionResolved)
	assert.ErrorIs(t, tx.AddComponent(7), errors.ErrTransactionResolved)
}

func TestCancel_Tombstones(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	s := f.pending(t, tx, entity.StateActive)

	n, err := tx.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.stamp(t, s.Nid)
	require.Len(t, got.Versions, 2)
	assert.Equal(t, entity.StateCanceled, got.State())
	assert.Equal(t, entity.TimeCanceled, got.Time())
	assert.True(t, got.Versions[0].IsUncommitted(), "history stays inspectable")
	assert.Equal(t, StateCanceled, tx.State())
	assert.Empty(t, f.reg.Active())
}

func TestCancel_TwiceDoesNotDoubleTombstone(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	s := f.pending(t, tx, entity.StateActive)

	_, err := tx.Cancel(context.Background())
	require.NoError(t, err)
	n, err := tx.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, f.stamp(t, s.Nid).Versions, 2)
}

func TestCancel_AfterCommit(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	_, err := tx.Commit(context.Background())
	require.NoError(t, err)

	_, err = tx.Cancel(context.Background())
	assert.ErrorIs(t, err, errors.ErrTransactionResolved)
}

func TestForStampAndForVersion(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	s := f.pending(t, tx, entity.StateActive)

	got, ok := f.reg.ForStamp(s.UUID)
	require.True(t, ok)
	assert.Same(t, tx, got)

	got, ok, err := f.reg.ForVersion(entity.Version{StampNid: s.Nid})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, tx, got)

	_, ok = f.reg.ForStamp(uuid.New())
	assert.False(t, ok)
}

func TestCommitVersion_OnlyThatStamp(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	active := f.pending(t, tx, entity.StateActive)
	inactive := f.pending(t, tx, entity.StateInactive)

	n, err := f.reg.CommitVersion(context.Background(), entity.Version{StampNid: active.Nid})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.False(t, f.stamp(t, active.Nid).Last().IsUncommitted())
	assert.True(t, f.stamp(t, inactive.Nid).Last().IsUncommitted())
	assert.Equal(t, StateOpen, tx.State())

	_, err = f.reg.CommitVersion(context.Background(), entity.Version{StampNid: inactive.Nid})
	require.NoError(t, err)
	assert.Equal(t, StateCommitted, tx.State())
	assert.Empty(t, f.reg.Active())
}

func TestCommitVersion_RegistryMissSynthesizes(t *testing.T) {
	f := newFixture(t)
	orphan := f.b.Stamp(entity.StateActive, entity.TimeUncommitted)

	var events []RefreshEvent
	f.reg.OnRefresh(func(ev RefreshEvent) { events = append(events, ev) })

	n, err := f.reg.CommitVersion(context.Background(), entity.Version{StampNid: orphan})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, f.clock.NowMillis(), f.stamp(t, orphan).Time())
	assert.Empty(t, f.reg.Active())
	require.Len(t, events, 1)
	assert.Equal(t, "committed", events[0].Outcome)
}

func TestCancelVersion_RegistryMissSynthesizes(t *testing.T) {
	f := newFixture(t)
	orphan := f.b.Stamp(entity.StateActive, entity.TimeUncommitted)

	n, err := f.reg.CancelVersion(context.Background(), entity.Version{StampNid: orphan})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, entity.StateCanceled, f.stamp(t, orphan).State())
	assert.Empty(t, f.reg.Active())
}

func TestOnRefresh_DeliversAfterResolution(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")
	require.NoError(t, tx.AddComponent(99))
	f.pending(t, tx, entity.StateActive)

	var got []RefreshEvent
	unsubscribe := f.reg.OnRefresh(func(ev RefreshEvent) {
		// Listeners may inspect the transaction without deadlocking.
		assert.Equal(t, StateCommitted, tx.State())
		got = append(got, ev)
	})

	_, err := tx.Commit(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tx.ID(), got[0].Transaction)
	assert.Equal(t, 1, got[0].Stamps)
	assert.True(t, got[0].Components.Contains(99))

	unsubscribe()
	tx2 := f.reg.Open("second")
	_, err = tx2.Cancel(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLookup(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("edit")

	got, err := f.reg.Lookup(tx.ID())
	require.NoError(t, err)
	assert.Same(t, tx, got)

	_, err = tx.Cancel(context.Background())
	require.NoError(t, err)
	_, err = f.reg.Lookup(tx.ID())
	assert.ErrorIs(t, err, errors.ErrTransactionNotFound)
}

func TestActive_OrderedByID(t *testing.T) {
	b := testutil.NewBuilder(t, store.NewMemoryStore())
	ids := []uuid.UUID{
		uuid.MustParse("00000000-0000-7000-8000-000000000002"),
		uuid.MustParse("00000000-0000-7000-8000-000000000001"),
	}
	reg := NewRegistry(b.Factory, WithIDGenerator(NewFixedGenerator(ids...)))
	reg.Open("second")
	reg.Open("first")

	active := reg.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "first", active[0].Name())
	assert.Equal(t, "second", active[1].Name())
}

func TestConcurrentAddAndLookup(t *testing.T) {
	f := newFixture(t)
	tx := f.reg.Open("busy")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, tx.AddComponent(int32(i+1)))
		}()
		go func() {
			defer wg.Done()
			tx.Components()
			f.reg.ForStamp(uuid.New())
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, tx.Components().Len())
}
