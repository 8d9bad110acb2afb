package coordinate

import (
	"golang.org/x/text/language"

	"github.com/roach88/stampview/internal/entity"
	"github.com/roach88/stampview/internal/errors"
	"github.com/roach88/stampview/internal/intid"
)

// LanguageCoordinate selects descriptions: which language, which
// description types in preference order, and which dialects decide
// acceptability.
type LanguageCoordinate struct {
	LanguageNid int32
	// Tag is the BCP 47 tag of the language, used for collation.
	Tag language.Tag

	DescriptionTypePreference intid.List
	DialectPatternPreference  intid.List
	ModulePreference          intid.List
}

// Validate checks the identifiers the coordinate references.
func (c LanguageCoordinate) Validate() error {
	if err := entity.ValidateNid(c.LanguageNid); err != nil {
		return errors.Wrap(err, "language coordinate language")
	}
	if c.DescriptionTypePreference == nil || c.DescriptionTypePreference.IsEmpty() {
		return errors.Validationf("language coordinate: no description types")
	}
	return nil
}

// WithDescriptionTypes returns a copy preferring types in order.
func (c LanguageCoordinate) WithDescriptionTypes(types ...int32) LanguageCoordinate {
	c.DescriptionTypePreference = intid.ListOf(types...)
	return c
}

// WithDialects returns a copy consulting dialect patterns in order.
func (c LanguageCoordinate) WithDialects(patterns ...int32) LanguageCoordinate {
	c.DialectPatternPreference = intid.ListOf(patterns...)
	return c
}

// WithModulePreference returns a copy breaking ties by modules in order.
func (c LanguageCoordinate) WithModulePreference(modules ...int32) LanguageCoordinate {
	c.ModulePreference = intid.ListOf(modules...)
	return c
}

// Key returns the value hash of the coordinate.
func (c LanguageCoordinate) Key() string {
	return key("language", c.canonical())
}

func (c LanguageCoordinate) canonical() map[string]any {
	return map[string]any{
		"language":        c.LanguageNid,
		"tag":             c.Tag.String(),
		"descriptionType": listArray(c.DescriptionTypePreference),
		"dialect":         listArray(c.DialectPatternPreference),
		"module":          listArray(c.ModulePreference),
	}
}

func listArray(l intid.List) []int32 {
	if l == nil {
		return []int32{}
	}
	return l.ToArray()
}

func setArray(s intid.Set) []int32 {
	if s == nil {
		return []int32{}
	}
	return s.ToArray()
}
