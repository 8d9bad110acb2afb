package calc

import (
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/logging"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/term"
)

// StampCalculator resolves visibility and latest versions under one stamp
// coordinate.
//
// A version is visible when its stamp's last analogue has an allowed state,
// comes from an admitted module, and lies on the coordinate's route: on the
// position path at or before the position time, or on an origin path at or
// before the time the path branched from it.
//
// Derived state (routes and stamp visibility) is memoized per store
// generation and rebuilt after any write.
type StampCalculator struct {
	store  store.Store
	coord  coordinate.StampCoordinate
	logger *zap.Logger

	memo atomic.Pointer[stampMemo]
}

type stampMemo struct {
	generation uint64
	routes     map[int32]int64 // path nid -> latest visible time
	visible    sync.Map        // stamp nid -> bool
}

// StampOption configures a StampCalculator.
type StampOption func(*StampCalculator)

// WithStampLogger sets the calculator's logger.
func WithStampLogger(l *zap.Logger) StampOption {
	return func(c *StampCalculator) {
		c.logger = l
	}
}

// NewStampCalculator binds a calculator to coord.
func NewStampCalculator(s store.Store, coord coordinate.StampCoordinate, opts ...StampOption) (*StampCalculator, error) {
	if err := coord.Validate(); err != nil {
		return nil, err
	}
	c := &StampCalculator{store: s, coord: coord, logger: logging.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Coordinate returns the bound coordinate.
func (c *StampCalculator) Coordinate() coordinate.StampCoordinate { return c.coord }

// current returns the memo for the store's generation, rebuilding it when
// the store has changed.
func (c *StampCalculator) current() (*stampMemo, error) {
	gen := c.store.Generation()
	if m := c.memo.Load(); m != nil && m.generation == gen {
		return m, nil
	}
	// An unknown pattern leaves origins unset: no path has origins yet.
	origins, _, err := c.store.LookupNid(term.PathOriginsPattern.UUID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve path origins pattern")
	}
	routes, err := c.buildRoutes(origins)
	if err != nil {
		return nil, err
	}
	m := &stampMemo{generation: gen, routes: routes}
	c.memo.Store(m)
	return m, nil
}

// buildRoutes walks path origins from the position path. A path reachable
// along several routes keeps the latest time any route allows.
func (c *StampCalculator) buildRoutes(originsPattern int32) (map[int32]int64, error) {
	type step struct {
		path  int32
		limit int64
	}
	routes := map[int32]int64{}
	stack := []step{{c.coord.Position.PathNid, c.coord.Position.Time}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if prev, seen := routes[s.path]; seen && prev >= s.limit {
			continue
		}
		routes[s.path] = s.limit

		origins, err := c.pathOrigins(s.path, originsPattern)
		if err != nil {
			return nil, err
		}
		for _, o := range origins {
			stack = append(stack, step{o.path, min(s.limit, o.time)})
		}
	}
	return routes, nil
}

type pathOrigin struct {
	path int32
	time int64
}

// pathOrigins reads the origin semantics of pathNid. Each semantic's
// effective version is its last version under an active committed stamp.
func (c *StampCalculator) pathOrigins(pathNid, originsPattern int32) ([]pathOrigin, error) {
	if originsPattern == entity.NidUnset {
		return nil, nil
	}
	nids, err := c.store.SemanticNidsForComponentOfPattern(pathNid, originsPattern)
	if err != nil {
		return nil, err
	}
	var out []pathOrigin
	for _, nid := range nids {
		chron, ok, err := c.store.Chronology(nid)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for i := len(chron.Versions) - 1; i >= 0; i-- {
			v := chron.Versions[i]
			st, ok, err := c.store.Stamp(v.StampNid)
			if err != nil {
				return nil, err
			}
			if !ok || st.State() != entity.StateActive || st.Last().IsUncommitted() {
				continue
			}
			path, okPath := v.Field(0).(entity.FieldNid)
			at, okTime := v.Field(1).(entity.FieldInt)
			if okPath && okTime {
				out = append(out, pathOrigin{path: int32(path), time: int64(at)})
			}
			break
		}
	}
	return out, nil
}

// OnRoute reports whether an analogue's path and time fall on the
// coordinate's route, ignoring state and module.
func (c *StampCalculator) OnRoute(v entity.StampVersion) (bool, error) {
	m, err := c.current()
	if err != nil {
		return false, err
	}
	return onRoute(m, v), nil
}

func onRoute(m *stampMemo, v entity.StampVersion) bool {
	if v.Time == entity.TimeCanceled {
		return false
	}
	limit, ok := m.routes[v.PathNid]
	return ok && v.Time <= limit
}

// IsVisible reports whether versions written under stampNid are visible.
func (c *StampCalculator) IsVisible(stampNid int32) (bool, error) {
	if err := entity.ValidateNid(stampNid); err != nil {
		return false, err
	}
	m, err := c.current()
	if err != nil {
		return false, err
	}
	if v, ok := m.visible.Load(stampNid); ok {
		return v.(bool), nil
	}
	st, ok, err := c.store.Stamp(stampNid)
	if err != nil {
		return false, err
	}
	visible := ok && c.admits(m, st.Last())
	m.visible.Store(stampNid, visible)
	return visible, nil
}

func (c *StampCalculator) admits(m *stampMemo, v entity.StampVersion) bool {
	return c.coord.AllowedStates.Contains(v.State) &&
		c.coord.AdmitsModule(v.ModuleNid) &&
		onRoute(m, v)
}

// Latest resolves the latest visible version of nid.
func (c *StampCalculator) Latest(nid int32) (Latest[entity.Version], error) {
	if err := entity.ValidateNid(nid); err != nil {
		return Absent[entity.Version](), err
	}
	chron, ok, err := c.store.Chronology(nid)
	if err != nil || !ok {
		return Absent[entity.Version](), err
	}
	return c.LatestVersions(chron)
}

// LatestStamp resolves the analogue of the stamp behind nid's latest
// visible version.
func (c *StampCalculator) LatestStamp(nid int32) (Latest[entity.StampVersion], error) {
	latest, err := c.Latest(nid)
	if err != nil || latest.IsAbsent() {
		return Absent[entity.StampVersion](), err
	}
	out := make([]entity.StampVersion, 0, len(latest.contradictions)+1)
	for _, v := range latest.All() {
		st, _, err := c.store.Stamp(v.StampNid)
		if err != nil {
			return Absent[entity.StampVersion](), err
		}
		out = append(out, st.Last())
	}
	return Of(out[0], out[1:]...), nil
}

// LatestVersions resolves the latest visible version among chron's
// versions: greatest time first, then module priority. Versions that still
// tie are reported as contradictions, in version order.
func (c *StampCalculator) LatestVersions(chron entity.Chronology) (Latest[entity.Version], error) {
	type candidate struct {
		version entity.Version
		time    int64
		rank    int
		index   int
	}
	var best []candidate
	for i, v := range chron.Versions {
		visible, err := c.IsVisible(v.StampNid)
		if err != nil {
			return Absent[entity.Version](), err
		}
		if !visible {
			continue
		}
		st, _, err := c.store.Stamp(v.StampNid)
		if err != nil {
			return Absent[entity.Version](), err
		}
		last := st.Last()
		cand := candidate{version: v, time: last.Time, rank: c.coord.ModuleRank(last.ModuleNid), index: i}
		switch {
		case len(best) == 0:
			best = []candidate{cand}
		case cand.time > best[0].time || (cand.time == best[0].time && cand.rank < best[0].rank):
			best = []candidate{cand}
		case cand.time == best[0].time && cand.rank == best[0].rank:
			best = append(best, cand)
		}
	}
	if len(best) == 0 {
		return Absent[entity.Version](), nil
	}
	slices.SortFunc(best, func(a, b candidate) int { return a.index - b.index })
	if len(best) > 1 {
		c.logger.Debug("contradictory versions",
			zap.Int32(logging.FieldNid, chron.Nid),
			zap.Int(logging.FieldCount, len(best)))
	}
	contradictions := make([]entity.Version, 0, len(best)-1)
	for _, b := range best[1:] {
		contradictions = append(contradictions, b.version)
	}
	return Of(best[0].version, contradictions...), nil
}
