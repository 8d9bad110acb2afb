package coordinate

import (
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
)

// Position is a point on a path: every version on the path up to and
// including Time is visible from it.
type Position struct {
	Time    int64
	PathNid int32
}

// LatestOn returns the position at the tip of path.
func LatestOn(pathNid int32) Position {
	return Position{Time: entity.TimeLatest, PathNid: pathNid}
}

// StampCoordinate filters versions by stamp.
type StampCoordinate struct {
	AllowedStates StateSet
	Position      Position

	// ModuleNids restricts visible modules; empty admits every module.
	ModuleNids intid.Set
	// ExcludedModuleNids are never visible, even when included above.
	ExcludedModuleNids intid.Set
	// ModulePriority orders modules when versions tie on time; earlier wins.
	ModulePriority intid.List
}

// NewStampCoordinate returns a coordinate admitting every module.
func NewStampCoordinate(states StateSet, pos Position) StampCoordinate {
	return StampCoordinate{
		AllowedStates:      states,
		Position:           pos,
		ModuleNids:         intid.EmptySet(),
		ExcludedModuleNids: intid.EmptySet(),
		ModulePriority:     intid.EmptyList(),
	}
}

// Validate checks the identifiers the coordinate references.
func (c StampCoordinate) Validate() error {
	if c.AllowedStates.IsEmpty() {
		return errors.Validationf("stamp coordinate: no allowed states")
	}
	if err := entity.ValidateNid(c.Position.PathNid); err != nil {
		return errors.Wrap(err, "stamp coordinate path")
	}
	return nil
}

// AdmitsModule reports whether versions from moduleNid may be visible.
func (c StampCoordinate) AdmitsModule(moduleNid int32) bool {
	if c.excluded().Contains(moduleNid) {
		return false
	}
	included := c.included()
	return included.IsEmpty() || included.Contains(moduleNid)
}

// ModuleRank returns the priority rank of moduleNid, lower first. Modules
// without a priority rank after every prioritized module.
func (c StampCoordinate) ModuleRank(moduleNid int32) int {
	priority := c.priority()
	for i := 0; i < priority.Len(); i++ {
		if priority.Get(i) == moduleNid {
			return i
		}
	}
	return priority.Len()
}

// WithTime returns a copy positioned at t on the same path.
func (c StampCoordinate) WithTime(t int64) StampCoordinate {
	c.Position.Time = t
	return c
}

// WithPath returns a copy positioned on pathNid at the same time.
func (c StampCoordinate) WithPath(pathNid int32) StampCoordinate {
	c.Position.PathNid = pathNid
	return c
}

// WithAllowedStates returns a copy admitting states.
func (c StampCoordinate) WithAllowedStates(states StateSet) StampCoordinate {
	c.AllowedStates = states
	return c
}

// WithModules returns a copy restricted to modules.
func (c StampCoordinate) WithModules(modules ...int32) StampCoordinate {
	c.ModuleNids = intid.SetOf(modules...)
	return c
}

// WithExcludedModules returns a copy excluding modules.
func (c StampCoordinate) WithExcludedModules(modules ...int32) StampCoordinate {
	c.ExcludedModuleNids = intid.SetOf(modules...)
	return c
}

// WithModulePriority returns a copy with the given tie-break order.
func (c StampCoordinate) WithModulePriority(modules ...int32) StampCoordinate {
	c.ModulePriority = intid.ListOf(modules...)
	return c
}

func (c StampCoordinate) included() intid.Set {
	if c.ModuleNids == nil {
		return intid.EmptySet()
	}
	return c.ModuleNids
}

func (c StampCoordinate) excluded() intid.Set {
	if c.ExcludedModuleNids == nil {
		return intid.EmptySet()
	}
	return c.ExcludedModuleNids
}

func (c StampCoordinate) priority() intid.List {
	if c.ModulePriority == nil {
		return intid.EmptyList()
	}
	return c.ModulePriority
}

func (c StampCoordinate) canonical() map[string]any {
	return map[string]any{
		"states":          c.AllowedStates.Names(),
		"time":            c.Position.Time,
		"path":            c.Position.PathNid,
		"modules":         c.included().ToArray(),
		"excludedModules": c.excluded().ToArray(),
		"modulePriority":  c.priority().ToArray(),
	}
}

// Key returns the value hash of the coordinate.
func (c StampCoordinate) Key() string {
	return key("stamp", c.canonical())
}

// Equal reports value equality.
func (c StampCoordinate) Equal(other StampCoordinate) bool {
	return c.Key() == other.Key()
}
