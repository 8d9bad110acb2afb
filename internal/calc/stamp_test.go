package calc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/term"
	"github.com/roach88/stampview/internal/testutil"
)

func newBuilder(t *testing.T) *testutil.Builder {
	t.Helper()
	return testutil.NewBuilder(t, store.NewMemoryStore())
}

func stampCalc(t *testing.T, b *testutil.Builder, coord coordinate.StampCoordinate) *StampCalculator {
	t.Helper()
	c, err := NewStampCalculator(b.Store, coord)
	require.NoError(t, err)
	return c
}

func latestStampNid(t *testing.T, c *StampCalculator, nid int32) int32 {
	t.Helper()
	l, err := c.Latest(nid)
	require.NoError(t, err)
	require.True(t, l.IsPresent(), "expected a visible version of %d", nid)
	return l.Value().StampNid
}

func TestStampCalculator_GreatestTimeWins(t *testing.T) {
	b := newBuilder(t)
	s100 := b.Stamp(entity.StateActive, 100)
	s200 := b.Stamp(entity.StateActive, 200)
	nid := b.Concept("heart", s100)
	b.Concept("heart", s200)

	latest := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	assert.Equal(t, s200, latestStampNid(t, latest, nid))

	at150 := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.Position{Time: 150, PathNid: b.Path}))
	assert.Equal(t, s100, latestStampNid(t, at150, nid))

	at50 := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.Position{Time: 50, PathNid: b.Path}))
	l, err := at50.Latest(nid)
	require.NoError(t, err)
	assert.True(t, l.IsAbsent())
}

func TestStampCalculator_AllowedStatesFilterVersions(t *testing.T) {
	b := newBuilder(t)
	active := b.Stamp(entity.StateActive, 100)
	inactive := b.Stamp(entity.StateInactive, 200)
	nid := b.Concept("retired", active)
	b.Concept("retired", inactive)

	all := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveAndInactive, coordinate.LatestOn(b.Path)))
	assert.Equal(t, inactive, latestStampNid(t, all, nid))

	activeOnly := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	assert.Equal(t, active, latestStampNid(t, activeOnly, nid))

	visible, err := activeOnly.IsVisible(inactive)
	require.NoError(t, err)
	assert.False(t, visible)
}

func TestStampCalculator_AbsentIsNotAnError(t *testing.T) {
	b := newBuilder(t)
	c := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))

	l, err := c.Latest(b.NidFor("never written"))
	require.NoError(t, err)
	assert.True(t, l.IsAbsent())

	_, err = c.Latest(entity.NidUnset)
	assert.ErrorIs(t, err, errors.ErrInvalidNid)
}

func TestStampCalculator_OtherPathInvisible(t *testing.T) {
	b := newBuilder(t)
	sandbox := b.Nid(term.SandboxPath)
	s := b.StampWith(entity.StateActive, 100, b.Module, sandbox)
	nid := b.Concept("sandboxed", s)

	c := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	l, err := c.Latest(nid)
	require.NoError(t, err)
	assert.True(t, l.IsAbsent())
}

func TestStampCalculator_PathOrigins(t *testing.T) {
	b := newBuilder(t)
	master := b.Nid(term.MasterPath)
	boot := b.Bootstrap()
	b.PathOrigin(b.Path, master, 150, boot)

	m100 := b.StampWith(entity.StateActive, 100, b.Module, master)
	m200 := b.StampWith(entity.StateActive, 200, b.Module, master)
	nid := b.Concept("inherited", m100)
	b.Concept("inherited", m200)

	dev := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	assert.Equal(t, m100, latestStampNid(t, dev, nid), "master versions after the branch point are hidden")

	onMaster := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(master)))
	assert.Equal(t, m200, latestStampNid(t, onMaster, nid))

	d300 := b.Stamp(entity.StateActive, 300)
	b.Concept("inherited", d300)
	assert.Equal(t, d300, latestStampNid(t, dev, nid), "development edits override the origin")
}

func TestStampCalculator_PathOriginsAreTransitive(t *testing.T) {
	b := newBuilder(t)
	master := b.Nid(term.MasterPath)
	primordial := b.Nid(term.PrimordialPath)
	boot := b.Bootstrap()
	b.PathOrigin(b.Path, master, 500, boot)
	b.PathOrigin(master, primordial, 50, boot)
	// A cycle back to development must not loop.
	b.PathOrigin(primordial, b.Path, 10, boot)

	p40 := b.StampWith(entity.StateActive, 40, b.Module, primordial)
	p60 := b.StampWith(entity.StateActive, 60, b.Module, primordial)
	nid := b.Concept("ancient", p40)
	b.Concept("ancient", p60)

	dev := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	assert.Equal(t, p40, latestStampNid(t, dev, nid))

	ok, err := dev.OnRoute(entity.StampVersion{State: entity.StateActive, Time: 60, PathNid: primordial})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStampCalculator_ModulePriorityBreaksTies(t *testing.T) {
	b := newBuilder(t)
	core := b.Nid(term.CoreModule)
	dev := b.Module
	sCore := b.StampWith(entity.StateActive, 100, core, b.Path)
	sDev := b.StampWith(entity.StateActive, 100, dev, b.Path)
	nid := b.Concept("tied", sCore)
	b.Concept("tied", sDev)

	base := coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path))

	unordered := stampCalc(t, b, base)
	l, err := unordered.Latest(nid)
	require.NoError(t, err)
	require.True(t, l.IsPresent())
	assert.True(t, l.IsContradicted())
	assert.Equal(t, sCore, l.Value().StampNid)
	require.Len(t, l.Contradictions(), 1)
	assert.Equal(t, sDev, l.Contradictions()[0].StampNid)

	devFirst := stampCalc(t, b, base.WithModulePriority(dev, core))
	l, err = devFirst.Latest(nid)
	require.NoError(t, err)
	assert.False(t, l.IsContradicted())
	assert.Equal(t, sDev, l.Value().StampNid)

	stamps, err := devFirst.LatestStamp(nid)
	require.NoError(t, err)
	assert.Equal(t, dev, stamps.Value().ModuleNid)
}

func TestStampCalculator_ModuleInclusionAndExclusion(t *testing.T) {
	b := newBuilder(t)
	core := b.Nid(term.CoreModule)
	sCore := b.StampWith(entity.StateActive, 100, core, b.Path)
	sDev := b.Stamp(entity.StateActive, 200)
	nid := b.Concept("modular", sCore)
	b.Concept("modular", sDev)

	base := coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path))
	assert.Equal(t, sCore, latestStampNid(t, stampCalc(t, b, base.WithModules(core)), nid))
	assert.Equal(t, sCore, latestStampNid(t, stampCalc(t, b, base.WithExcludedModules(b.Module)), nid))
	assert.Equal(t, sDev, latestStampNid(t, stampCalc(t, b, base), nid))
}

func TestStampCalculator_UncommittedAndCanceled(t *testing.T) {
	b := newBuilder(t)
	committed := b.Stamp(entity.StateActive, 100)
	pending := b.Stamp(entity.StateActive, entity.TimeUncommitted)
	nid := b.Concept("editing", committed)
	b.Concept("editing", pending)

	latest := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	assert.Equal(t, pending, latestStampNid(t, latest, nid), "pending edits show at latest")

	pinned := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.Position{Time: 1000, PathNid: b.Path}))
	assert.Equal(t, committed, latestStampNid(t, pinned, nid))

	_, err := b.Factory.Analogue(pending, entity.StateCanceled, entity.TimeCanceled)
	require.NoError(t, err)
	assert.Equal(t, committed, latestStampNid(t, latest, nid), "canceled versions disappear")
}

func TestStampCalculator_SeesWritesAfterConstruction(t *testing.T) {
	b := newBuilder(t)
	s100 := b.Stamp(entity.StateActive, 100)
	nid := b.Concept("growing", s100)

	c := stampCalc(t, b, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)))
	assert.Equal(t, s100, latestStampNid(t, c, nid))

	s200 := b.Stamp(entity.StateActive, 200)
	b.Concept("growing", s200)
	assert.Equal(t, s200, latestStampNid(t, c, nid))
}

func TestNewStampCalculator_Validates(t *testing.T) {
	b := newBuilder(t)
	_, err := NewStampCalculator(b.Store, coordinate.NewStampCoordinate(0, coordinate.LatestOn(b.Path)))
	assert.True(t, errors.IsValidation(err))
}

func TestStampCalculator_ReadsDoNotAssignNids(t *testing.T) {
	s := store.NewMemoryStore()
	path, err := s.NidForUUID(term.DevelopmentPath.UUID)
	require.NoError(t, err)
	gen := s.Generation()

	c, err := NewStampCalculator(s, coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(path)))
	require.NoError(t, err)
	on, err := c.OnRoute(entity.StampVersion{State: entity.StateActive, Time: 100, PathNid: path})
	require.NoError(t, err)
	assert.True(t, on)

	assert.Equal(t, gen, s.Generation())
	_, known, err := s.LookupNid(term.PathOriginsPattern.UUID)
	require.NoError(t, err)
	assert.False(t, known)
}
