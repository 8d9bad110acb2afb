package calc

import (
	"cmp"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/roach88/stampview/internal/coordinate"
	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
	"github.com/roach88/stampview/internal/store"
	"github.com/roach88/stampview/internal/term"
)

// Description is the resolved latest version of a description semantic.
type Description struct {
	Nid                 int32
	ConceptNid          int32
	LanguageNid         int32
	Text                string
	CaseSignificanceNid int32
	TypeNid             int32
	ModuleNid           int32
}

// LanguageCalculator picks descriptions under an ordered list of language
// coordinates, reading versions through a stamp calculator.
type LanguageCalculator struct {
	store  store.Store
	stamps *StampCalculator
	coords []coordinate.LanguageCoordinate

	terms atomic.Pointer[languageTerms]
}

// languageTerms holds the nids of the well-known terms the calculator reads,
// resolved per store generation. A term the store has not seen is NidUnset.
type languageTerms struct {
	generation         uint64
	descriptionPattern int32
	preferred          int32
	acceptable         int32
	regularName        int32
	fullyQualifiedName int32
}

// NewLanguageCalculator binds a calculator to coords, tried in order.
func NewLanguageCalculator(s store.Store, stamps *StampCalculator, coords ...coordinate.LanguageCoordinate) (*LanguageCalculator, error) {
	if len(coords) == 0 {
		return nil, errors.Validationf("language calculator needs at least one language coordinate")
	}
	for _, lc := range coords {
		if err := lc.Validate(); err != nil {
			return nil, err
		}
	}
	return &LanguageCalculator{store: s, stamps: stamps, coords: slices.Clone(coords)}, nil
}

func (c *LanguageCalculator) resolveTerms() (*languageTerms, error) {
	gen := c.store.Generation()
	if t := c.terms.Load(); t != nil && t.generation == gen {
		return t, nil
	}
	t := &languageTerms{generation: gen}
	for _, r := range []struct {
		tm  term.Term
		dst *int32
	}{
		{term.DescriptionPattern, &t.descriptionPattern},
		{term.Preferred, &t.preferred},
		{term.Acceptable, &t.acceptable},
		{term.RegularName, &t.regularName},
		{term.FullyQualifiedName, &t.fullyQualifiedName},
	} {
		nid, _, err := c.store.LookupNid(r.tm.UUID)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve %s", r.tm)
		}
		*r.dst = nid
	}
	c.terms.Store(t)
	return t, nil
}

// Coordinates returns the bound language coordinates.
func (c *LanguageCalculator) Coordinates() []coordinate.LanguageCoordinate {
	return slices.Clone(c.coords)
}

// StampCalculator returns the calculator versions are read through.
func (c *LanguageCalculator) StampCalculator() *StampCalculator { return c.stamps }

// Description returns the preferred description of nid using each
// coordinate's own description-type preference.
func (c *LanguageCalculator) Description(nid int32) (Latest[Description], error) {
	return c.describe(nid, func(*languageTerms) intid.List { return nil })
}

// RegularName returns the preferred regular-name description of nid.
func (c *LanguageCalculator) RegularName(nid int32) (Latest[Description], error) {
	return c.describe(nid, func(t *languageTerms) intid.List { return intid.ListOf(t.regularName) })
}

// FullyQualifiedName returns the preferred fully qualified name of nid.
func (c *LanguageCalculator) FullyQualifiedName(nid int32) (Latest[Description], error) {
	return c.describe(nid, func(t *languageTerms) intid.List { return intid.ListOf(t.fullyQualifiedName) })
}

// DescriptionText returns the text of nid's preferred description, falling
// back to nid's primary UUID and then to the nid itself.
func (c *LanguageCalculator) DescriptionText(nid int32) (string, error) {
	d, err := c.Description(nid)
	if err != nil {
		return "", err
	}
	if d.IsPresent() {
		return d.Value().Text, nil
	}
	ids, err := c.store.PublicID(nid)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return "", err
	}
	if len(ids) > 0 {
		return ids[0].String(), nil
	}
	return fmt.Sprintf("nid:%d", nid), nil
}

// describe tries each language coordinate in turn. A non-nil list from
// override replaces the coordinate's description-type preference.
func (c *LanguageCalculator) describe(nid int32, override func(*languageTerms) intid.List) (Latest[Description], error) {
	if err := entity.ValidateNid(nid); err != nil {
		return Absent[Description](), err
	}
	terms, err := c.resolveTerms()
	if err != nil {
		return Absent[Description](), err
	}
	types := override(terms)
	all, err := c.descriptions(terms, nid)
	if err != nil || len(all) == 0 {
		return Absent[Description](), err
	}
	for _, lc := range c.coords {
		prefs := types
		if prefs == nil {
			prefs = lc.DescriptionTypePreference
		}
		best, err := c.pick(terms, lc, all, prefs)
		if err != nil {
			return Absent[Description](), err
		}
		if best.IsPresent() {
			return best, nil
		}
	}
	return Absent[Description](), nil
}

// descriptions resolves the latest visible version of every description
// semantic attached to nid.
func (c *LanguageCalculator) descriptions(terms *languageTerms, nid int32) ([]Description, error) {
	if terms.descriptionPattern == entity.NidUnset {
		return nil, nil
	}
	nids, err := c.store.SemanticNidsForComponentOfPattern(nid, terms.descriptionPattern)
	if err != nil {
		return nil, err
	}
	var out []Description
	for _, dn := range nids {
		latest, err := c.stamps.Latest(dn)
		if err != nil {
			return nil, err
		}
		v, ok := latest.Get()
		if !ok {
			continue
		}
		d, ok := decodeDescription(v)
		if !ok {
			continue
		}
		st, _, err := c.store.Stamp(v.StampNid)
		if err != nil {
			return nil, err
		}
		d.Nid = dn
		d.ConceptNid = nid
		d.ModuleNid = st.ModuleNid()
		out = append(out, d)
	}
	return out, nil
}

func decodeDescription(v entity.Version) (Description, bool) {
	lang, ok1 := v.Field(0).(entity.FieldNid)
	text, ok2 := v.Field(1).(entity.FieldString)
	cs, ok3 := v.Field(2).(entity.FieldNid)
	typ, ok4 := v.Field(3).(entity.FieldNid)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Description{}, false
	}
	return Description{
		LanguageNid:         int32(lang),
		Text:                string(text),
		CaseSignificanceNid: int32(cs),
		TypeNid:             int32(typ),
	}, true
}

// pick chooses among descriptions in lc's language: the first preferred
// type with any candidate wins; within it dialect acceptability, then
// module preference, then nid order decide.
func (c *LanguageCalculator) pick(terms *languageTerms, lc coordinate.LanguageCoordinate, all []Description, types intid.List) (Latest[Description], error) {
	type ranked struct {
		d          Description
		dialect    int
		moduleRank int
	}
	for i := 0; i < types.Len(); i++ {
		typ := types.Get(i)
		var candidates []ranked
		for _, d := range all {
			if d.LanguageNid != lc.LanguageNid || d.TypeNid != typ {
				continue
			}
			dialect, err := c.dialectRank(terms, lc, d.Nid)
			if err != nil {
				return Absent[Description](), err
			}
			candidates = append(candidates, ranked{d: d, dialect: dialect, moduleRank: listRank(lc.ModulePreference, d.ModuleNid)})
		}
		if len(candidates) == 0 {
			continue
		}
		best := slices.MinFunc(candidates, func(a, b ranked) int {
			return cmp.Or(
				cmp.Compare(a.dialect, b.dialect),
				cmp.Compare(a.moduleRank, b.moduleRank),
				cmp.Compare(a.d.Nid, b.d.Nid),
			)
		})
		return Of(best.d), nil
	}
	return Absent[Description](), nil
}

// dialectRank scores a description's acceptability over lc's dialect
// preference: preferred in the first dialect scores 0, acceptable 1,
// preferred in the second dialect 2, and so on. Descriptions without any
// acceptability rank last.
func (c *LanguageCalculator) dialectRank(terms *languageTerms, lc coordinate.LanguageCoordinate, descriptionNid int32) (int, error) {
	dialects := lc.DialectPatternPreference
	if dialects == nil {
		return 0, nil
	}
	for i := 0; i < dialects.Len(); i++ {
		nids, err := c.store.SemanticNidsForComponentOfPattern(descriptionNid, dialects.Get(i))
		if err != nil {
			return 0, err
		}
		best := -1
		for _, an := range nids {
			latest, err := c.stamps.Latest(an)
			if err != nil {
				return 0, err
			}
			v, ok := latest.Get()
			if !ok {
				continue
			}
			acc, ok := v.Field(0).(entity.FieldNid)
			if !ok {
				continue
			}
			switch int32(acc) {
			case terms.preferred:
				best = 0
			case terms.acceptable:
				if best < 0 {
					best = 1
				}
			}
		}
		if best >= 0 {
			return 2*i + best, nil
		}
	}
	return 2 * dialects.Len(), nil
}

func listRank(l intid.List, id int32) int {
	if l == nil {
		return 0
	}
	for i := 0; i < l.Len(); i++ {
		if l.Get(i) == id {
			return i
		}
	}
	return l.Len()
}
