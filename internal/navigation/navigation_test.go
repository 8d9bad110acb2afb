package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/roach88/stampview/internal/calc"
	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/term"
	"github.com/roach88/stampview/internal/testutil"
)

type fixture struct {
	b      *testutil.Builder
	stamp  int32
	isA    int32
	partOf int32
	sort   int32
	view   coordinate.ViewCoordinate
}

// newFixture defines an is-a pattern and a part-of pattern and a view
// navigating both.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := testutil.NewBuilder(t, store.NewMemoryStore())
	boot := b.Bootstrap()
	f := &fixture{
		b:      b,
		stamp:  b.Stamp(entity.StateActive, 100),
		isA:    b.NavigationPattern(term.InferredNavigationPattern, b.Nid(term.IsA), boot),
		partOf: b.NavigationPattern(term.StatedNavigationPattern, b.Nid(term.PartOf), boot),
		sort:   b.Pattern(term.VertexSortPattern, b.Nid(term.SortOrderField), b.Nid(term.SortOrderField), boot),
	}
	english := coordinate.LanguageCoordinate{LanguageNid: b.Nid(term.EnglishLanguage), Tag: language.AmericanEnglish}.
		WithDescriptionTypes(b.Nid(term.RegularName))
	f.view = coordinate.ViewCoordinate{
		Stamp:      coordinate.NewStampCoordinate(coordinate.ActiveOnly, coordinate.LatestOn(b.Path)),
		Languages:  []coordinate.LanguageCoordinate{english},
		Navigation: coordinate.NewNavigationCoordinate(coordinate.ActiveAndInactive, f.isA, f.partOf).WithSortPatterns(f.sort),
	}
	return f
}

func (f *fixture) calculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := f.build(f.view)
	require.NoError(t, err)
	return c
}

func (f *fixture) build(view coordinate.ViewCoordinate) (*Calculator, error) {
	s := f.b.Store
	stamps, err := calc.NewStampCalculator(s, view.Stamp)
	if err != nil {
		return nil, err
	}
	vertices, err := calc.NewStampCalculator(s, view.VertexStampCoordinate())
	if err != nil {
		return nil, err
	}
	lang, err := calc.NewLanguageCalculator(s, stamps, view.Languages...)
	if err != nil {
		return nil, err
	}
	return New(s, view, stamps, vertices, lang)
}

func (f *fixture) concepts(names ...string) []int32 {
	out := make([]int32, len(names))
	for i, n := range names {
		out[i] = f.b.Concept(n, f.stamp)
	}
	return out
}

func TestParentsOf_MergesPatterns(t *testing.T) {
	f := newFixture(t)
	c := f.concepts("A", "B", "C")
	a, b, cc := c[0], c[1], c[2]
	f.b.Hierarchy(f.isA, f.stamp, map[int32][]int32{a: {b}})
	f.b.Hierarchy(f.partOf, f.stamp, map[int32][]int32{a: {cc}})

	nav := f.calculator(t)
	parents, err := nav.UnsortedParentsOf(a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{b, cc}, parents.ToArray())

	sorted, err := nav.ParentsOf(a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{b, cc}, sorted.ToArray())

	edges, err := nav.ParentEdges(a)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	types := map[int32][]int32{}
	for _, e := range edges {
		types[e.Nid] = e.Types.ToArray()
	}
	assert.Equal(t, []int32{f.b.Nid(term.IsA)}, types[b])
	assert.Equal(t, []int32{f.b.Nid(term.PartOf)}, types[cc])

	children, err := nav.ChildrenOf(b)
	require.NoError(t, err)
	assert.Equal(t, []int32{a}, children.ToArray())
	childEdges, err := nav.ChildEdges(cc)
	require.NoError(t, err)
	require.Len(t, childEdges, 1)
	assert.Equal(t, a, childEdges[0].Nid)
}

func TestParentEdges_OneVertexManyTypes(t *testing.T) {
	f := newFixture(t)
	c := f.concepts("wheel", "car")
	f.b.Hierarchy(f.isA, f.stamp, map[int32][]int32{c[0]: {c[1]}})
	f.b.Hierarchy(f.partOf, f.stamp, map[int32][]int32{c[0]: {c[1]}})

	edges, err := f.calculator(t).ParentEdges(c[0])
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.ElementsMatch(t, []int32{f.b.Nid(term.IsA), f.b.Nid(term.PartOf)}, edges[0].Types.ToArray())
}

func TestClosures_Acyclic(t *testing.T) {
	f := newFixture(t)
	c := f.concepts("root", "x", "y", "z")
	root, x, y, z := c[0], c[1], c[2], c[3]
	f.b.Hierarchy(f.isA, f.stamp, map[int32][]int32{x: {root}, y: {root}, z: {x, y}})
	nav := f.calculator(t)

	ancestors, err := nav.AncestorsOf(z)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{root, x, y}, ancestors.ToArray())
	assert.False(t, ancestors.Contains(z))

	descendants, err := nav.DescendantsOf(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{x, y, z}, descendants.ToArray())
	assert.False(t, descendants.Contains(root))

	// Every ancestor's descendants lead back to z, never above it.
	ancestors.ForEach(func(anc int32) {
		d, err := nav.DescendantsOf(anc)
		require.NoError(t, err)
		assert.True(t, d.Contains(z))
		assert.False(t, d.Contains(anc), "no cycle through %d", anc)
	})

	kind, err := nav.KindOf(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{root, x, y, z}, kind.ToArray())

	ok, err := nav.IsDescendentOf(z, root)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = nav.IsDescendentOf(root, z)
	require.NoError(t, err)
	assert.False(t, ok)

	cycle, err := nav.FindCycle(z)
	require.NoError(t, err)
	assert.Nil(t, cycle)
	assert.NoError(t, nav.CheckAcyclic(z))
}

func TestClosures_Cyclic(t *testing.T) {
	f := newFixture(t)
	c := f.concepts("p", "q", "r", "s")
	p, q, r, s := c[0], c[1], c[2], c[3]
	// p -> q -> r -> p, and s hangs below p.
	f.b.Hierarchy(f.isA, f.stamp, map[int32][]int32{p: {q}, q: {r}, r: {p}, s: {p}})
	nav := f.calculator(t)

	ancestors, err := nav.AncestorsOf(p)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{p, q, r}, ancestors.ToArray(), "p reaches itself")

	ancestors, err = nav.AncestorsOf(s)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{p, q, r}, ancestors.ToArray())
	assert.False(t, ancestors.Contains(s))

	descendants, err := nav.DescendantsOf(q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{p, q, r, s}, descendants.ToArray())

	cycle, err := nav.FindCycle(s)
	require.NoError(t, err)
	require.NotEmpty(t, cycle)
	assert.Equal(t, cycle[0], cycle[len(cycle)-1])
	assert.ElementsMatch(t, []int32{p, q, r}, cycle[:len(cycle)-1])

	err = nav.CheckAcyclic(s)
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err))
	assert.Equal(t, errors.CodeCycle, errors.IntegrityCodeOf(err))
}

func TestRelationship_MultipleVisibleSemanticsIsIntegrityError(t *testing.T) {
	f := newFixture(t)
	c := f.concepts("dup", "one", "two")
	f.b.Semantic(f.isA, c[0], f.stamp, entity.NewFieldIDSet(), entity.NewFieldIDSet(c[1]))
	f.b.Semantic(f.isA, c[0], f.stamp, entity.NewFieldIDSet(), entity.NewFieldIDSet(c[2]))

	_, err := f.calculator(t).ParentsOf(c[0])
	require.Error(t, err)
	assert.True(t, errors.IsIntegrity(err))
	assert.Equal(t, errors.CodeMultipleSemantics, errors.IntegrityCodeOf(err))
}

func TestNew_MissingPatternDefinition(t *testing.T) {
	f := newFixture(t)
	undefined := f.b.NidFor("undefined pattern")
	view := f.view
	view.Navigation = coordinate.NewNavigationCoordinate(coordinate.ActiveOnly, f.isA, undefined)

	_, err := f.build(view)
	require.Error(t, err)
	assert.Equal(t, errors.CodeMissingPattern, errors.IntegrityCodeOf(err))
}

func TestVertexStates_IndependentOfViewStamp(t *testing.T) {
	f := newFixture(t)
	c := f.concepts("child", "active parent")
	retired := f.b.Concept("retired parent", f.b.Stamp(entity.StateInactive, 100))
	f.b.Hierarchy(f.isA, f.stamp, map[int32][]int32{c[0]: {c[1], retired}})

	withInactive := f.calculator(t)
	parents, err := withInactive.UnsortedParentsOf(c[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []int32{c[1], retired}, parents.ToArray(),
		"inactive vertices show although the view is active-only")

	view := f.view
	view.Navigation = view.Navigation.WithVertexStates(coordinate.ActiveOnly)
	activeOnly, err := f.build(view)
	require.NoError(t, err)
	parents, err = activeOnly.UnsortedParentsOf(c[0])
	require.NoError(t, err)
	assert.Equal(t, []int32{c[1]}, parents.ToArray())
}

func TestChildrenOf_Sorting(t *testing.T) {
	f := newFixture(t)
	c := f.concepts("parent", "item10", "item2", "apple")
	parent, item10, item2, apple := c[0], c[1], c[2], c[3]
	english, regular := f.b.Nid(term.EnglishLanguage), f.b.Nid(term.RegularName)
	f.b.Description(item10, f.stamp, english, "Item 10", regular)
	f.b.Description(item2, f.stamp, english, "item 2", regular)
	f.b.Description(apple, f.stamp, english, "Apple", regular)
	f.b.Hierarchy(f.isA, f.stamp, map[int32][]int32{item10: {parent}, item2: {parent}, apple: {parent}})

	children, err := f.calculator(t).ChildrenOf(parent)
	require.NoError(t, err)
	assert.Equal(t, []int32{apple, item2, item10}, children.ToArray(), "natural order")

	f.b.SortOrder(f.sort, parent, f.stamp, item10)
	children, err = f.calculator(t).ChildrenOf(parent)
	require.NoError(t, err)
	assert.Equal(t, []int32{item10, apple, item2}, children.ToArray(), "custom order first")

	view := f.view
	view.Navigation = view.Navigation.WithSort(false)
	unsorted, err := f.build(view)
	require.NoError(t, err)
	children, err = unsorted.ChildrenOf(parent)
	require.NoError(t, err)
	assert.Equal(t, []int32{item10, item2, apple}, children.ToArray(), "nid order")
}

func TestCalculator_SeesNewEdges(t *testing.T) {
	f := newFixture(t)
	c := f.concepts("leaf", "old parent", "new parent")
	rel := f.b.Hierarchy(f.isA, f.stamp, map[int32][]int32{c[0]: {c[1]}})
	nav := f.calculator(t)

	parents, err := nav.UnsortedParentsOf(c[0])
	require.NoError(t, err)
	assert.Equal(t, []int32{c[1]}, parents.ToArray())

	later := f.b.Stamp(entity.StateActive, 200)
	f.b.SemanticVersion(rel[c[0]], later, entity.NewFieldIDSet(), entity.NewFieldIDSet(c[2]))
	parents, err = nav.UnsortedParentsOf(c[0])
	require.NoError(t, err)
	assert.Equal(t, []int32{c[2]}, parents.ToArray())
}
