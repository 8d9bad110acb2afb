// Package preset compiles the named default coordinates other subsystems
// depend on.
//
// Presets are written in CUE (presets.cue, embedded) against well-known
// term names and compiled into coordinates against a store's nid mapping.
package preset

import (
	_ "embed"
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
	"github.com/roach88/stampview/internal/term"
)

//go:embed presets.cue
var presetsCUE []byte

// NidResolver maps public identities to nids. store.Store satisfies it.
type NidResolver interface {
	NidForUUID(id uuid.UUID) (int32, error)
}

// Presets holds the compiled default coordinates.
type Presets struct {
	DevelopmentLatest           coordinate.StampCoordinate
	DevelopmentLatestActiveOnly coordinate.StampCoordinate
	MasterLatest                coordinate.StampCoordinate
	USEnglishRegularName        coordinate.LanguageCoordinate
	USEnglishFullyQualifiedName coordinate.LanguageCoordinate
	InferredNavigation          coordinate.NavigationCoordinate
	StatedNavigation            coordinate.NavigationCoordinate
	DefaultLogic                coordinate.LogicCoordinate
	DefaultEdit                 coordinate.EditCoordinate
	DefaultView                 coordinate.ViewCoordinate

	// All compiled coordinates by kind and name, including any beyond the
	// fields above.
	Stamps      map[string]coordinate.StampCoordinate
	Languages   map[string]coordinate.LanguageCoordinate
	Navigations map[string]coordinate.NavigationCoordinate
	Logics      map[string]coordinate.LogicCoordinate
	Edits       map[string]coordinate.EditCoordinate
	Views       map[string]coordinate.ViewCoordinate
}

// Names lists every preset as kind/name, sorted.
func (p *Presets) Names() []string {
	var out []string
	add := func(kind string, names []string) {
		for _, n := range names {
			out = append(out, kind+"/"+n)
		}
	}
	add("stamp", keys(p.Stamps))
	add("language", keys(p.Languages))
	add("navigation", keys(p.Navigations))
	add("logic", keys(p.Logics))
	add("edit", keys(p.Edits))
	add("view", keys(p.Views))
	slices.Sort(out)
	return out
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Load compiles the embedded presets.
func Load(r NidResolver) (*Presets, error) {
	return LoadSource(r, "presets.cue", presetsCUE)
}

// LoadSource compiles presets from CUE source. Sources must define the
// coordinates the Presets fields name; they may define more.
func LoadSource(r NidResolver, filename string, src []byte) (*Presets, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	c := &compiler{resolver: r}
	p := &Presets{}
	var err error
	if p.Stamps, err = compileAll(v, "stamp", c.stamp); err != nil {
		return nil, err
	}
	if p.Languages, err = compileAll(v, "language", c.language); err != nil {
		return nil, err
	}
	if p.Navigations, err = compileAll(v, "navigation", c.navigation); err != nil {
		return nil, err
	}
	if p.Logics, err = compileAll(v, "logic", c.logic); err != nil {
		return nil, err
	}
	if p.Edits, err = compileAll(v, "edit", c.edit); err != nil {
		return nil, err
	}
	if p.Views, err = compileAll(v, "view", func(v cue.Value) (coordinate.ViewCoordinate, error) {
		return c.view(v, p)
	}); err != nil {
		return nil, err
	}

	fields := []struct {
		ok   bool
		name string
	}{
		{pick(p.Stamps, "developmentLatest", &p.DevelopmentLatest), "stamp/developmentLatest"},
		{pick(p.Stamps, "developmentLatestActiveOnly", &p.DevelopmentLatestActiveOnly), "stamp/developmentLatestActiveOnly"},
		{pick(p.Stamps, "masterLatest", &p.MasterLatest), "stamp/masterLatest"},
		{pick(p.Languages, "usEnglishRegularName", &p.USEnglishRegularName), "language/usEnglishRegularName"},
		{pick(p.Languages, "usEnglishFullyQualifiedName", &p.USEnglishFullyQualifiedName), "language/usEnglishFullyQualifiedName"},
		{pick(p.Navigations, "inferred", &p.InferredNavigation), "navigation/inferred"},
		{pick(p.Navigations, "stated", &p.StatedNavigation), "navigation/stated"},
		{pick(p.Logics, "default", &p.DefaultLogic), "logic/default"},
		{pick(p.Edits, "default", &p.DefaultEdit), "edit/default"},
		{pick(p.Views, "default", &p.DefaultView), "view/default"},
	}
	for _, f := range fields {
		if !f.ok {
			return nil, &CompileError{Field: f.name, Message: "preset is required"}
		}
	}
	return p, nil
}

func pick[V any](m map[string]V, name string, dst *V) bool {
	v, ok := m[name]
	if ok {
		*dst = v
	}
	return ok
}

func compileAll[T any](root cue.Value, kind string, fn func(cue.Value) (T, error)) (map[string]T, error) {
	out := map[string]T{}
	v := root.LookupPath(cue.ParsePath(kind))
	if !v.Exists() {
		return out, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().String()
		c, err := fn(iter.Value())
		if err != nil {
			return nil, errors.Wrapf(err, "%s/%s", kind, name)
		}
		out[name] = c
	}
	return out, nil
}

type compiler struct {
	resolver NidResolver
}

func (c *compiler) nid(v cue.Value, field string) (int32, error) {
	name, err := lookup(v, field).String()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return c.termNid(v, field, name)
}

func (c *compiler) termNid(v cue.Value, field, name string) (int32, error) {
	t, ok := term.ByName(name)
	if !ok {
		return 0, &CompileError{Field: field, Message: fmt.Sprintf("unknown term %q", name), Pos: v.Pos()}
	}
	return c.resolver.NidForUUID(t.UUID)
}

func (c *compiler) nids(v cue.Value, field string) ([]int32, error) {
	names, err := stringList(lookup(v, field))
	if err != nil {
		return nil, err
	}
	out := make([]int32, 0, len(names))
	for _, n := range names {
		nid, err := c.termNid(v, field, n)
		if err != nil {
			return nil, err
		}
		out = append(out, nid)
	}
	return out, nil
}

func (c *compiler) states(v cue.Value, field string) (coordinate.StateSet, error) {
	names, err := stringList(lookup(v, field))
	if err != nil {
		return 0, err
	}
	return coordinate.ParseStates(names...)
}

func (c *compiler) stamp(v cue.Value) (coordinate.StampCoordinate, error) {
	var zero coordinate.StampCoordinate
	states, err := c.states(v, "states")
	if err != nil {
		return zero, err
	}
	path, err := c.nid(v, "path")
	if err != nil {
		return zero, err
	}
	time := entity.TimeLatest
	tv := lookup(v, "time")
	if s, err := tv.String(); err == nil {
		if s != "latest" {
			return zero, &CompileError{Field: "time", Message: fmt.Sprintf("unknown time %q", s), Pos: tv.Pos()}
		}
	} else if time, err = tv.Int64(); err != nil {
		return zero, formatCUEError(err)
	}

	coord := coordinate.NewStampCoordinate(states, coordinate.Position{Time: time, PathNid: path})
	modules, err := c.nids(v, "modules")
	if err != nil {
		return zero, err
	}
	excluded, err := c.nids(v, "excludedModules")
	if err != nil {
		return zero, err
	}
	priority, err := c.nids(v, "modulePriority")
	if err != nil {
		return zero, err
	}
	return coord.WithModules(modules...).WithExcludedModules(excluded...).WithModulePriority(priority...), nil
}

func (c *compiler) language(v cue.Value) (coordinate.LanguageCoordinate, error) {
	var zero coordinate.LanguageCoordinate
	lang, err := c.nid(v, "language")
	if err != nil {
		return zero, err
	}
	tagText, err := lookup(v, "tag").String()
	if err != nil {
		return zero, formatCUEError(err)
	}
	tag, err := language.Parse(tagText)
	if err != nil {
		return zero, &CompileError{Field: "tag", Message: err.Error(), Pos: v.Pos()}
	}
	types, err := c.nids(v, "descriptionTypes")
	if err != nil {
		return zero, err
	}
	dialects, err := c.nids(v, "dialects")
	if err != nil {
		return zero, err
	}
	modules, err := c.nids(v, "modules")
	if err != nil {
		return zero, err
	}
	return coordinate.LanguageCoordinate{LanguageNid: lang, Tag: tag}.
		WithDescriptionTypes(types...).
		WithDialects(dialects...).
		WithModulePreference(modules...), nil
}

func (c *compiler) navigation(v cue.Value) (coordinate.NavigationCoordinate, error) {
	var zero coordinate.NavigationCoordinate
	patterns, err := c.nids(v, "patterns")
	if err != nil {
		return zero, err
	}
	states, err := c.states(v, "vertexStates")
	if err != nil {
		return zero, err
	}
	sort, err := lookup(v, "sort").Bool()
	if err != nil {
		return zero, formatCUEError(err)
	}
	sortPatterns, err := c.nids(v, "sortPatterns")
	if err != nil {
		return zero, err
	}
	return coordinate.NavigationCoordinate{
		NavigationPatternNids: intid.SetOf(patterns...),
		VertexStates:          states,
		SortVertices:          sort,
		VertexSortPatternNids: intid.ListOf(sortPatterns...),
	}, nil
}

func (c *compiler) logic(v cue.Value) (coordinate.LogicCoordinate, error) {
	var out coordinate.LogicCoordinate
	fields := []struct {
		name string
		dst  *int32
	}{
		{"classifier", &out.ClassifierNid},
		{"profile", &out.DescriptionLogicProfileNid},
		{"inferredAxioms", &out.InferredAxiomsPatternNid},
		{"statedAxioms", &out.StatedAxiomsPatternNid},
		{"conceptMember", &out.ConceptMemberPatternNid},
		{"statedNavigation", &out.StatedNavigationPatternNid},
		{"inferredNavigation", &out.InferredNavigationPatternNid},
		{"root", &out.RootNid},
	}
	for _, f := range fields {
		nid, err := c.nid(v, f.name)
		if err != nil {
			return coordinate.LogicCoordinate{}, err
		}
		*f.dst = nid
	}
	return out, nil
}

func (c *compiler) edit(v cue.Value) (coordinate.EditCoordinate, error) {
	var out coordinate.EditCoordinate
	fields := []struct {
		name string
		dst  *int32
	}{
		{"author", &out.AuthorNid},
		{"module", &out.DefaultModuleNid},
		{"destinationModule", &out.DestinationModuleNid},
		{"path", &out.DefaultPathNid},
		{"promotionPath", &out.PromotionPathNid},
	}
	for _, f := range fields {
		nid, err := c.nid(v, f.name)
		if err != nil {
			return coordinate.EditCoordinate{}, err
		}
		*f.dst = nid
	}
	return out, nil
}

func (c *compiler) view(v cue.Value, p *Presets) (coordinate.ViewCoordinate, error) {
	var out coordinate.ViewCoordinate
	ref := func(field string) (string, error) {
		s, err := lookup(v, field).String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return s, nil
	}
	missing := func(field, name string) error {
		return &CompileError{Field: field, Message: fmt.Sprintf("no preset named %q", name), Pos: v.Pos()}
	}

	name, err := ref("stamp")
	if err != nil {
		return out, err
	}
	if !pick(p.Stamps, name, &out.Stamp) {
		return out, missing("stamp", name)
	}
	langs, err := stringList(lookup(v, "languages"))
	if err != nil {
		return out, err
	}
	for _, l := range langs {
		var lc coordinate.LanguageCoordinate
		if !pick(p.Languages, l, &lc) {
			return out, missing("languages", l)
		}
		out.Languages = append(out.Languages, lc)
	}
	if name, err = ref("logic"); err != nil {
		return out, err
	}
	if !pick(p.Logics, name, &out.Logic) {
		return out, missing("logic", name)
	}
	if name, err = ref("navigation"); err != nil {
		return out, err
	}
	if !pick(p.Navigations, name, &out.Navigation) {
		return out, missing("navigation", name)
	}
	if name, err = ref("edit"); err != nil {
		return out, err
	}
	if !pick(p.Edits, name, &out.Edit) {
		return out, missing("edit", name)
	}
	return out, nil
}

// lookup returns the field with any default applied.
func lookup(v cue.Value, field string) cue.Value {
	f, _ := v.LookupPath(cue.ParsePath(field)).Default()
	return f
}

func stringList(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError is a preset compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
