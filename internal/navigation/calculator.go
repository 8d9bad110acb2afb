package navigation

import (
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/roach88/stampview/internal/calc"
	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
	"github.com/roach88/stampview/internal/logging"
	"github.com/roach88/stampview/internal/metrics"
	"github.com/roach88/stampview/internal/store"
)

// Field positions in a navigation semantic.
const (
	childrenField = 0
	parentsField  = 1
)

// Edge is a related vertex and the relationship types that connect it.
type Edge struct {
	Nid   int32
	Types intid.Set
}

// Calculator resolves navigation queries under one view coordinate.
//
// Safe for concurrent use. Per-vertex edges are memoized for the store
// generation they were read at.
type Calculator struct {
	store    store.Store
	view     coordinate.ViewCoordinate
	stamps   *calc.StampCalculator
	vertices *calc.StampCalculator
	language *calc.LanguageCalculator
	logger   *zap.Logger
	metrics  *metrics.Metrics
	locale   language.Tag

	patterns []navPattern
	memo     atomic.Pointer[edgeMemo]
}

type navPattern struct {
	nid     int32
	meaning int32
}

type edgeMemo struct {
	generation uint64
	vertices   sync.Map // nid -> *vertexEdges
}

type vertexEdges struct {
	parents  map[int32]intid.Set
	children map[int32]intid.Set
}

// Option configures a Calculator.
type Option func(*Calculator)

// WithLogger sets the calculator's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Calculator) {
		c.logger = l
	}
}

// WithMetrics records integrity failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Calculator) {
		c.metrics = m
	}
}

// WithCollation sorts vertex text under tag instead of the first
// language coordinate's tag.
func WithCollation(tag language.Tag) Option {
	return func(c *Calculator) {
		c.locale = tag
	}
}

// New binds a navigation calculator to view. stamps reads under the view's
// stamp coordinate, vertices under its vertex stamp coordinate.
//
// Every configured navigation pattern must have a visible definition;
// a missing one is an integrity error.
func New(s store.Store, view coordinate.ViewCoordinate, stamps, vertices *calc.StampCalculator, language *calc.LanguageCalculator, opts ...Option) (*Calculator, error) {
	if err := view.Navigation.Validate(); err != nil {
		return nil, err
	}
	c := &Calculator{
		store:    s,
		view:     view,
		stamps:   stamps,
		vertices: vertices,
		language: language,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, pnid := range view.Navigation.NavigationPatternNids.ToArray() {
		def, err := stamps.Latest(pnid)
		if err != nil {
			return nil, err
		}
		v, ok := def.Get()
		if !ok {
			return nil, c.integrity(errors.CodeMissingPattern, pnid, pnid, "navigation pattern has no visible definition")
		}
		c.patterns = append(c.patterns, navPattern{nid: pnid, meaning: v.MeaningNid})
	}
	return c, nil
}

// View returns the bound view coordinate.
func (c *Calculator) View() coordinate.ViewCoordinate { return c.view }

func (c *Calculator) integrity(code errors.IntegrityCode, nid, pattern int32, format string, args ...any) error {
	err := errors.NewIntegrityError(code, nid, pattern, format, args...)
	c.metrics.IntegrityError(string(code))
	c.logger.Error("navigation integrity failure",
		zap.String("code", string(code)),
		zap.Int32(logging.FieldNid, nid),
		zap.Int32(logging.FieldPattern, pattern),
		zap.Error(err))
	return err
}

func (c *Calculator) current() *edgeMemo {
	gen := c.store.Generation()
	if m := c.memo.Load(); m != nil && m.generation == gen {
		return m
	}
	m := &edgeMemo{generation: gen}
	c.memo.Store(m)
	return m
}

// edges resolves and memoizes the visible edges of nid.
func (c *Calculator) edges(nid int32) (*vertexEdges, error) {
	if err := entity.ValidateNid(nid); err != nil {
		return nil, err
	}
	m := c.current()
	if e, ok := m.vertices.Load(nid); ok {
		return e.(*vertexEdges), nil
	}

	e := &vertexEdges{parents: map[int32]intid.Set{}, children: map[int32]intid.Set{}}
	for _, p := range c.patterns {
		v, ok, err := c.relationship(nid, p.nid)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := c.addEdges(e.children, v.Field(childrenField), p.meaning); err != nil {
			return nil, err
		}
		if err := c.addEdges(e.parents, v.Field(parentsField), p.meaning); err != nil {
			return nil, err
		}
	}
	actual, _ := m.vertices.LoadOrStore(nid, e)
	return actual.(*vertexEdges), nil
}

// relationship returns the one visible relationship semantic version of
// (nid, pattern). More than one is an integrity error.
func (c *Calculator) relationship(nid, pattern int32) (entity.Version, bool, error) {
	semantics, err := c.store.SemanticNidsForComponentOfPattern(nid, pattern)
	if err != nil {
		return entity.Version{}, false, err
	}
	var (
		found   entity.Version
		visible []int32
	)
	for _, snid := range semantics {
		latest, err := c.vertices.Latest(snid)
		if err != nil {
			return entity.Version{}, false, err
		}
		if v, ok := latest.Get(); ok {
			found = v
			visible = append(visible, snid)
		}
	}
	switch len(visible) {
	case 0:
		return entity.Version{}, false, nil
	case 1:
		return found, true, nil
	default:
		return entity.Version{}, false, c.integrity(errors.CodeMultipleSemantics, nid, pattern,
			"%d visible relationship semantics %v", len(visible), visible)
	}
}

// addEdges adds the visible vertices of an ID set field under relType.
func (c *Calculator) addEdges(dst map[int32]intid.Set, f entity.Field, relType int32) error {
	var ids []int32
	switch f := f.(type) {
	case entity.FieldIDSet:
		if f.Set != nil {
			ids = f.ToArray()
		}
	case entity.FieldIDList:
		if f.List != nil {
			ids = f.ToArray()
		}
	default:
		return nil
	}
	for _, id := range ids {
		ok, err := c.vertexVisible(id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if types, seen := dst[id]; seen {
			dst[id] = types.With(relType)
		} else {
			dst[id] = intid.SetOf(relType)
		}
	}
	return nil
}

func (c *Calculator) vertexVisible(nid int32) (bool, error) {
	if !entity.IsValidNid(nid) {
		return false, nil
	}
	latest, err := c.vertices.Latest(nid)
	if err != nil {
		return false, err
	}
	return latest.IsPresent(), nil
}

// UnsortedParentsOf returns the parents of nid across all patterns.
func (c *Calculator) UnsortedParentsOf(nid int32) (intid.Set, error) {
	e, err := c.edges(nid)
	if err != nil {
		return nil, err
	}
	return keySet(e.parents), nil
}

// UnsortedChildrenOf returns the children of nid across all patterns.
func (c *Calculator) UnsortedChildrenOf(nid int32) (intid.Set, error) {
	e, err := c.edges(nid)
	if err != nil {
		return nil, err
	}
	return keySet(e.children), nil
}

// ParentsOf returns the parents of nid, sorted when the navigation
// coordinate asks for it.
func (c *Calculator) ParentsOf(nid int32) (intid.List, error) {
	set, err := c.UnsortedParentsOf(nid)
	if err != nil {
		return nil, err
	}
	return c.order(nid, set.ToArray())
}

// ChildrenOf returns the children of nid, sorted when the navigation
// coordinate asks for it.
func (c *Calculator) ChildrenOf(nid int32) (intid.List, error) {
	set, err := c.UnsortedChildrenOf(nid)
	if err != nil {
		return nil, err
	}
	return c.order(nid, set.ToArray())
}

// ParentEdges returns each parent of nid with the relationship types that
// connect them, in ParentsOf order.
func (c *Calculator) ParentEdges(nid int32) ([]Edge, error) {
	e, err := c.edges(nid)
	if err != nil {
		return nil, err
	}
	return c.edgeList(nid, e.parents)
}

// ChildEdges returns each child of nid with the relationship types that
// connect them, in ChildrenOf order.
func (c *Calculator) ChildEdges(nid int32) ([]Edge, error) {
	e, err := c.edges(nid)
	if err != nil {
		return nil, err
	}
	return c.edgeList(nid, e.children)
}

func (c *Calculator) edgeList(nid int32, m map[int32]intid.Set) ([]Edge, error) {
	ordered, err := c.order(nid, keySet(m).ToArray())
	if err != nil {
		return nil, err
	}
	out := make([]Edge, 0, ordered.Len())
	ordered.ForEach(func(id int32) {
		out = append(out, Edge{Nid: id, Types: m[id]})
	})
	return out, nil
}

func keySet(m map[int32]intid.Set) intid.Set {
	ids := make([]int32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return intid.SetOf(ids...)
}

// order sorts related vertices of nid when sorting is enabled, otherwise
// keeps ascending nid order.
func (c *Calculator) order(nid int32, related []int32) (intid.List, error) {
	if !c.view.Navigation.SortVertices || len(related) < 2 {
		slices.Sort(related)
		return intid.ListOf(related...), nil
	}
	sorted, err := c.sortVertices(nid, related)
	if err != nil {
		return nil, err
	}
	return intid.ListOf(sorted...), nil
}
