package coordinate

import (
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
)

// NavigationCoordinate selects the relationship patterns merged into one
// navigation graph and how its vertices are filtered and ordered.
type NavigationCoordinate struct {
	NavigationPatternNids intid.Set
	// VertexStates filters vertices and edges independently of the view's
	// stamp coordinate.
	VertexStates StateSet
	SortVertices bool
	// VertexSortPatternNids are consulted in order before natural ordering.
	VertexSortPatternNids intid.List
}

// NewNavigationCoordinate returns a sorted coordinate over patterns.
func NewNavigationCoordinate(vertexStates StateSet, patterns ...int32) NavigationCoordinate {
	return NavigationCoordinate{
		NavigationPatternNids: intid.SetOf(patterns...),
		VertexStates:          vertexStates,
		SortVertices:          true,
		VertexSortPatternNids: intid.EmptyList(),
	}
}

// Validate checks the coordinate is usable.
func (c NavigationCoordinate) Validate() error {
	if c.NavigationPatternNids == nil || c.NavigationPatternNids.IsEmpty() {
		return errors.Validationf("navigation coordinate: no navigation patterns")
	}
	if c.VertexStates.IsEmpty() {
		return errors.Validationf("navigation coordinate: no vertex states")
	}
	return nil
}

// WithSort returns a copy with sorting enabled or disabled.
func (c NavigationCoordinate) WithSort(sort bool) NavigationCoordinate {
	c.SortVertices = sort
	return c
}

// WithVertexStates returns a copy filtering vertices by states.
func (c NavigationCoordinate) WithVertexStates(states StateSet) NavigationCoordinate {
	c.VertexStates = states
	return c
}

// WithSortPatterns returns a copy consulting sort patterns in order.
func (c NavigationCoordinate) WithSortPatterns(patterns ...int32) NavigationCoordinate {
	c.VertexSortPatternNids = intid.ListOf(patterns...)
	return c
}

// Key returns the value hash of the coordinate.
func (c NavigationCoordinate) Key() string {
	return key("navigation", c.canonical())
}

func (c NavigationCoordinate) canonical() map[string]any {
	return map[string]any{
		"patterns":     setArray(c.NavigationPatternNids),
		"vertexStates": c.VertexStates.Names(),
		"sort":         c.SortVertices,
		"sortPatterns": listArray(c.VertexSortPatternNids),
	}
}
