package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/engine"
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
	"github.com/roach88/stampview/internal/logging"
	"github.com/roach88/stampview/internal/navigation"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/term"
	"github.com/roach88/stampview/internal/testutil"
	"github.com/roach88/stampview/internal/txn"
)

// StartMillis is the manual clock's reading when a scenario starts.
const StartMillis int64 = 1_000_000

var scenarioNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("stampview/harness/v1"))

// graph is the cumulative content of one navigation pattern.
type graph struct {
	nid       int32
	parentsOf map[int32][]int32
	semantics map[int32]int32
	stamps    map[int32]bool
}

// Harness executes one scenario against a fresh engine.
type Harness struct {
	engine *engine.Engine
	store  store.Store
	clock  *testutil.ManualClock
	logger *zap.Logger
	view   coordinate.ViewCoordinate

	author    int32
	module    int32
	path      int32
	bootstrap int32

	nids     map[string]int32
	labels   map[int32]string
	stamps   map[string]int32
	stampTxs map[string]*txn.Transaction
	txs      map[string]*txn.Transaction
	graphs   map[string]*graph
	seq      int
}

// Option configures Run.
type Option func(*Harness)

// WithLogger logs every step to l.
func WithLogger(l *zap.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// Run executes a scenario in a fresh in-memory store and returns the
// result. Expectation and assertion failures are reported in the result;
// an error means the scenario itself could not be executed.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{
		store:    store.NewMemoryStore(),
		clock:    testutil.NewManualClock(StartMillis),
		logger:   logging.Nop(),
		nids:     map[string]int32{},
		labels:   map[int32]string{},
		stamps:   map[string]int32{},
		stampTxs: map[string]*txn.Transaction{},
		txs:      map[string]*txn.Transaction{},
		graphs:   map[string]*graph{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = logging.Component(h.logger, "harness").With(zap.String("scenario", scenario.Name))

	eng, err := engine.New(h.store, engine.WithClock(h.clock), engine.WithLogger(h.logger))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create engine")
	}
	defer eng.Close()
	h.engine = eng

	if err := h.bootstrapTerms(); err != nil {
		return nil, errors.Wrap(err, "failed to bootstrap")
	}
	if err := h.buildView(scenario.View); err != nil {
		return nil, errors.Wrap(err, "failed to build view")
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Setup {
		if err := h.execute(ctx, step, result); err != nil {
			return nil, errors.Wrapf(err, "setup step %d (%s)", i, step.Op)
		}
	}
	for i, step := range scenario.Flow {
		if err := h.execute(ctx, step, result); err != nil {
			return nil, errors.Wrapf(err, "flow step %d (%s)", i, step.Op)
		}
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h) {
		result.AddError(msg)
	}
	return result, nil
}

// bootstrapTerms registers every well-known term and defines the
// navigation patterns under a premundane stamp.
func (h *Harness) bootstrapTerms() error {
	for _, tm := range term.All {
		nid, err := h.store.NidForUUID(tm.UUID)
		if err != nil {
			return err
		}
		h.labels[nid] = tm.Name
	}
	h.author = h.term(term.UserAuthor)
	h.module = h.term(term.DevelopmentModule)
	h.path = h.term(term.DevelopmentPath)

	s, err := h.engine.Stamps().MakeStamp(entity.StateActive, entity.TimePremundane, h.author, h.module, h.path)
	if err != nil {
		return err
	}
	h.bootstrap = s.Nid

	for name, def := range map[string]struct{ pattern, meaning term.Term }{
		PatternIsA:    {term.InferredNavigationPattern, term.IsA},
		PatternPartOf: {term.StatedNavigationPattern, term.PartOf},
	} {
		nid := h.term(def.pattern)
		children := h.term(term.ChildrenField)
		parents := h.term(term.ParentsField)
		err := h.store.PutEntity(entity.NewPattern(nid, def.pattern.UUID).WithVersion(entity.Version{
			StampNid:   h.bootstrap,
			MeaningNid: h.term(def.meaning),
			PurposeNid: children,
			FieldDefinitions: []entity.FieldDefinition{
				{MeaningNid: children, PurposeNid: children, DataType: entity.FieldTypeIDSet},
				{MeaningNid: parents, PurposeNid: parents, DataType: entity.FieldTypeIDSet},
			},
		}))
		if err != nil {
			return err
		}
		h.graphs[name] = &graph{
			nid:       nid,
			parentsOf: map[int32][]int32{},
			semantics: map[int32]int32{},
			stamps:    map[int32]bool{},
		}
	}
	return nil
}

// term returns the nid of a term registered by bootstrapTerms.
func (h *Harness) term(tm term.Term) int32 {
	nid, _, _ := h.store.LookupNid(tm.UUID)
	return nid
}

func (h *Harness) buildView(spec ViewSpec) error {
	patterns := spec.Patterns
	if len(patterns) == 0 {
		patterns = []string{PatternIsA}
	}
	nids := make([]int32, len(patterns))
	for i, p := range patterns {
		nids[i] = h.graphs[p].nid
	}

	vertexStates := coordinate.ActiveAndInactive
	if len(spec.VertexStates) > 0 {
		states, err := coordinate.ParseStates(spec.VertexStates...)
		if err != nil {
			return err
		}
		vertexStates = states
	}

	view := h.engine.Presets().DefaultView.WithNavigation(
		coordinate.NewNavigationCoordinate(vertexStates, nids...).
			WithSort(spec.Sort).
			WithSortPatterns(h.term(term.VertexSortPattern)))
	if len(spec.StampStates) > 0 {
		states, err := coordinate.ParseStates(spec.StampStates...)
		if err != nil {
			return err
		}
		view = view.WithStamp(view.Stamp.WithAllowedStates(states))
	}
	h.view = view
	return view.Validate()
}

// nid returns the identity of a scenario concept name.
func (h *Harness) nid(name string) (int32, error) {
	if nid, ok := h.nids[name]; ok {
		return nid, nil
	}
	nid, err := h.store.NidForUUID(uuid.NewSHA1(scenarioNamespace, []byte("concept/"+name)))
	if err != nil {
		return 0, err
	}
	h.nids[name] = nid
	h.labels[nid] = name
	return nid, nil
}

func (h *Harness) label(nid int32) string {
	if name, ok := h.labels[nid]; ok {
		return name
	}
	return fmt.Sprintf("nid:%d", nid)
}

func (h *Harness) labelList(nids []int32) []string {
	out := make([]string, len(nids))
	for i, nid := range nids {
		out[i] = h.label(nid)
	}
	return out
}

func (h *Harness) sortedLabels(s intid.Set) []string {
	out := h.labelList(s.ToArray())
	slices.Sort(out)
	return out
}

func (h *Harness) stamp(name string) (int32, error) {
	nid, ok := h.stamps[name]
	if !ok {
		return 0, errors.Newf("unknown stamp %q", name)
	}
	return nid, nil
}

func (h *Harness) transaction(name string) (*txn.Transaction, error) {
	tx, ok := h.txs[name]
	if !ok {
		return nil, errors.Newf("unknown transaction %q", name)
	}
	return tx, nil
}

func (h *Harness) newUUID(kind string) uuid.UUID {
	h.seq++
	return uuid.NewSHA1(scenarioNamespace, []byte(fmt.Sprintf("%s/%d", kind, h.seq)))
}

// put appends v to the chronology of nid, creating it with fresh when
// absent.
func (h *Harness) put(nid int32, fresh func() entity.Chronology, v entity.Version) error {
	c, ok, err := h.store.Chronology(nid)
	if err != nil {
		return err
	}
	if !ok {
		c = fresh()
	}
	return h.store.PutEntity(c.WithVersion(v))
}

// execute runs one step and traces it. Query failures become trace errors;
// any other failure aborts the scenario.
func (h *Harness) execute(ctx context.Context, step Step, result *Result) error {
	var (
		value any
		err   error
	)
	if isQuery(step.Op) {
		value, err = h.query(step)
		code := ""
		if err != nil {
			code = errorCode(err)
			value = nil
		}
		ev := result.AddTrace(step.Op, step.args(), value, code)
		h.check(step, ev, err, result)
		h.logger.Debug("query executed", zap.Int64("seq", ev.Seq), zap.String("op", step.Op), zap.String("error", code))
		return nil
	}

	value, err = h.mutate(ctx, step)
	if err != nil {
		return err
	}
	ev := result.AddTrace(step.Op, step.args(), value, "")
	h.logger.Debug("step executed", zap.Int64("seq", ev.Seq), zap.String("op", step.Op))
	return nil
}

// check compares a query's outcome with its expectations.
func (h *Harness) check(step Step, ev TraceEvent, err error, result *Result) {
	switch {
	case step.ExpectError != "":
		if ev.Error != step.ExpectError {
			result.AddError(fmt.Sprintf("step %d (%s %s): expected error %s, got %q", ev.Seq, step.Op, step.Concept, step.ExpectError, ev.Error))
		}
	case err != nil:
		result.AddError(fmt.Sprintf("step %d (%s %s): %v", ev.Seq, step.Op, step.Concept, err))
	case step.Expect != nil:
		if !valuesEqual(ev.Result, step.Expect) {
			result.AddError(fmt.Sprintf("step %d (%s %s): expected %v, got %v", ev.Seq, step.Op, step.Concept, step.Expect, ev.Result))
		}
	}
}

// errorCode names the failure of a query in the trace.
func errorCode(err error) string {
	if code := errors.IntegrityCodeOf(err); code != "" {
		return strings.ToLower(string(code))
	}
	return "error"
}

func (h *Harness) mutate(ctx context.Context, step Step) (any, error) {
	switch step.Op {
	case OpStamp:
		state, err := entity.ParseState(step.State)
		if err != nil {
			return nil, err
		}
		s, err := h.engine.Stamps().MakeStamp(state, *step.Time, h.author, h.module, h.path)
		if err != nil {
			return nil, err
		}
		h.stamps[step.Name] = s.Nid
		return nil, nil

	case OpConcept:
		stampNid, err := h.stamp(step.Stamp)
		if err != nil {
			return nil, err
		}
		for _, name := range step.Concepts {
			nid, err := h.nid(name)
			if err != nil {
				return nil, err
			}
			id := uuid.NewSHA1(scenarioNamespace, []byte("concept/"+name))
			fresh := func() entity.Chronology { return entity.NewConcept(nid, id) }
			if err := h.put(nid, fresh, entity.Version{StampNid: stampNid}); err != nil {
				return nil, err
			}
			if err := h.track(step.Stamp, nid); err != nil {
				return nil, err
			}
		}
		return nil, nil

	case OpRelate:
		return nil, h.relate(step)

	case OpDescribe:
		return nil, h.describe(step)

	case OpSortOrder:
		stampNid, err := h.stamp(step.Stamp)
		if err != nil {
			return nil, err
		}
		nid, err := h.nid(step.Concept)
		if err != nil {
			return nil, err
		}
		order := make([]int32, len(step.Order))
		for i, name := range step.Order {
			if order[i], err = h.nid(name); err != nil {
				return nil, err
			}
		}
		pattern := h.term(term.VertexSortPattern)
		id := h.newUUID("sort")
		snid, err := h.store.NidForUUID(id)
		if err != nil {
			return nil, err
		}
		fresh := func() entity.Chronology { return entity.NewSemantic(snid, pattern, nid, id) }
		return nil, h.put(snid, fresh, entity.Version{StampNid: stampNid, Fields: []entity.Field{entity.NewFieldIDList(order...)}})

	case OpOpen:
		if _, ok := h.txs[step.Transaction]; ok {
			return nil, errors.Newf("transaction %q already opened", step.Transaction)
		}
		h.txs[step.Transaction] = h.engine.Transactions().Open(step.Transaction)
		return nil, nil

	case OpTxStamp:
		tx, err := h.transaction(step.Transaction)
		if err != nil {
			return nil, err
		}
		state, err := entity.ParseState(step.State)
		if err != nil {
			return nil, err
		}
		s, err := tx.GetOrCreateStamp(state, entity.TimeUncommitted, h.author, h.module, h.path)
		if err != nil {
			return nil, err
		}
		h.stamps[step.Name] = s.Nid
		h.stampTxs[step.Name] = tx
		return nil, nil

	case OpCommit, OpCancel:
		tx, err := h.transaction(step.Transaction)
		if err != nil {
			return nil, err
		}
		if step.Time != nil {
			h.clock.Set(*step.Time)
		}
		var n int
		if step.Op == OpCommit {
			n, err = tx.Commit(ctx)
		} else {
			n, err = tx.Cancel(ctx)
		}
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	return nil, errors.Newf("unknown op %q", step.Op)
}

// track records nid as a component of the transaction owning stampName.
func (h *Harness) track(stampName string, nid int32) error {
	tx, ok := h.stampTxs[stampName]
	if !ok {
		return nil
	}
	return tx.AddComponent(nid)
}

// relate updates a pattern's graph and writes a new navigation version for
// every vertex whose parents or children changed.
func (h *Harness) relate(step Step) error {
	g := h.graphs[step.Pattern]
	stampNid, err := h.stamp(step.Stamp)
	if err != nil {
		return err
	}
	if g.stamps[stampNid] {
		return errors.Newf("stamp %q already used for %s", step.Stamp, step.Pattern)
	}
	g.stamps[stampNid] = true

	affected := map[int32]bool{}
	children := make([]string, 0, len(step.Edges))
	for child := range step.Edges {
		children = append(children, child)
	}
	slices.Sort(children)
	for _, name := range children {
		child, err := h.nid(name)
		if err != nil {
			return err
		}
		parents := make([]int32, 0, len(step.Edges[name]))
		for _, pname := range step.Edges[name] {
			p, err := h.nid(pname)
			if err != nil {
				return err
			}
			parents = append(parents, p)
		}
		affected[child] = true
		for _, p := range g.parentsOf[child] {
			affected[p] = true
		}
		for _, p := range parents {
			affected[p] = true
		}
		g.parentsOf[child] = parents
	}

	vertices := make([]int32, 0, len(affected))
	for nid := range affected {
		vertices = append(vertices, nid)
	}
	slices.Sort(vertices)
	for _, nid := range vertices {
		var kids []int32
		for child, parents := range g.parentsOf {
			if slices.Contains(parents, nid) {
				kids = append(kids, child)
			}
		}
		snid, ok := g.semantics[nid]
		id := uuid.NewSHA1(scenarioNamespace, []byte(fmt.Sprintf("navigation/%s/%d", step.Pattern, nid)))
		if !ok {
			if snid, err = h.store.NidForUUID(id); err != nil {
				return err
			}
			g.semantics[nid] = snid
		}
		fresh := func() entity.Chronology { return entity.NewSemantic(snid, g.nid, nid, id) }
		err := h.put(snid, fresh, entity.Version{
			StampNid: stampNid,
			Fields: []entity.Field{
				entity.NewFieldIDSet(kids...),
				entity.NewFieldIDSet(g.parentsOf[nid]...),
			},
		})
		if err != nil {
			return err
		}
		if err := h.track(step.Stamp, snid); err != nil {
			return err
		}
	}
	return nil
}

// describe writes a preferred US English regular name for a concept.
func (h *Harness) describe(step Step) error {
	stampNid, err := h.stamp(step.Stamp)
	if err != nil {
		return err
	}
	concept, err := h.nid(step.Concept)
	if err != nil {
		return err
	}

	descPattern := h.term(term.DescriptionPattern)
	id := h.newUUID("description")
	dnid, err := h.store.NidForUUID(id)
	if err != nil {
		return err
	}
	err = h.put(dnid, func() entity.Chronology { return entity.NewSemantic(dnid, descPattern, concept, id) },
		entity.Version{StampNid: stampNid, Fields: []entity.Field{
			entity.FieldNid(h.term(term.EnglishLanguage)),
			entity.FieldString(step.Text),
			entity.FieldNid(h.term(term.NotCaseSensitive)),
			entity.FieldNid(h.term(term.RegularName)),
		}})
	if err != nil {
		return err
	}

	dialect := h.term(term.USDialectPattern)
	aid := h.newUUID("acceptability")
	anid, err := h.store.NidForUUID(aid)
	if err != nil {
		return err
	}
	err = h.put(anid, func() entity.Chronology { return entity.NewSemantic(anid, dialect, dnid, aid) },
		entity.Version{StampNid: stampNid, Fields: []entity.Field{entity.FieldNid(h.term(term.Preferred))}})
	if err != nil {
		return err
	}
	return h.track(step.Stamp, dnid)
}

func (h *Harness) navigator() (*navigation.Calculator, error) {
	return h.engine.NavigationCalculator(h.view)
}

// query runs a read-only step and returns its result in trace form.
func (h *Harness) query(step Step) (any, error) {
	nid, err := h.nid(step.Concept)
	if err != nil {
		return nil, err
	}

	switch step.Op {
	case OpName:
		lang, err := h.engine.LanguageCalculator(h.view.Stamp, h.view.Languages...)
		if err != nil {
			return nil, err
		}
		return lang.DescriptionText(nid)

	case OpLatest:
		return h.latest(nid)
	}

	nav, err := h.navigator()
	if err != nil {
		return nil, err
	}
	switch step.Op {
	case OpParents, OpChildren:
		if h.view.Navigation.SortVertices {
			list, err := nav.ParentsOf(nid)
			if step.Op == OpChildren {
				list, err = nav.ChildrenOf(nid)
			}
			if err != nil {
				return nil, err
			}
			return h.labelList(list.ToArray()), nil
		}
		set, err := nav.UnsortedParentsOf(nid)
		if step.Op == OpChildren {
			set, err = nav.UnsortedChildrenOf(nid)
		}
		if err != nil {
			return nil, err
		}
		return h.sortedLabels(set), nil

	case OpAncestors, OpDescendants:
		set, err := nav.AncestorsOf(nid)
		if step.Op == OpDescendants {
			set, err = nav.DescendantsOf(nid)
		}
		if err != nil {
			return nil, err
		}
		return h.sortedLabels(set), nil

	case OpIsDescendent:
		ancestor, err := h.nid(step.Ancestor)
		if err != nil {
			return nil, err
		}
		return nav.IsDescendentOf(nid, ancestor)

	case OpFindCycle:
		cycle, err := nav.FindCycle(nid)
		if err != nil {
			return nil, err
		}
		return h.sortedLabels(intid.SetOf(cycle...)), nil
	}
	return nil, errors.Newf("unknown query %q", step.Op)
}

// latest describes the latest visible version of nid under the view's
// stamp coordinate.
func (h *Harness) latest(nid int32) (map[string]any, error) {
	sc, err := h.engine.StampCalculator(h.view.Stamp)
	if err != nil {
		return nil, err
	}
	latest, err := sc.Latest(nid)
	if err != nil {
		return nil, err
	}
	v, ok := latest.Get()
	if !ok {
		return map[string]any{"visible": false}, nil
	}
	s, err := h.engine.Stamps().Stamp(v.StampNid)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"visible": true,
		"state":   s.State().String(),
		"time":    s.Time(),
	}, nil
}
