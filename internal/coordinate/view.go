package coordinate

import (
	"github.com/roach88/stampview/internal/errors"
)

// ViewCoordinate composes the coordinates a query runs under. Languages
// form a fallback chain: the first language that yields a description wins.
type ViewCoordinate struct {
	Stamp      StampCoordinate
	Languages  []LanguageCoordinate
	Logic      LogicCoordinate
	Navigation NavigationCoordinate
	Edit       EditCoordinate
}

// VertexStampCoordinate returns the view's stamp coordinate with the
// navigation vertex states as its allowed states.
func (v ViewCoordinate) VertexStampCoordinate() StampCoordinate {
	return v.Stamp.WithAllowedStates(v.Navigation.VertexStates)
}

// Validate checks every component coordinate.
func (v ViewCoordinate) Validate() error {
	if err := v.Stamp.Validate(); err != nil {
		return err
	}
	if len(v.Languages) == 0 {
		return errors.Validationf("view coordinate: no language coordinates")
	}
	for _, l := range v.Languages {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return v.Navigation.Validate()
}

// WithStamp returns a copy using s.
func (v ViewCoordinate) WithStamp(s StampCoordinate) ViewCoordinate {
	v.Stamp = s
	return v
}

// WithNavigation returns a copy using n.
func (v ViewCoordinate) WithNavigation(n NavigationCoordinate) ViewCoordinate {
	v.Navigation = n
	return v
}

// WithLanguages returns a copy using the fallback chain ls.
func (v ViewCoordinate) WithLanguages(ls ...LanguageCoordinate) ViewCoordinate {
	v.Languages = append([]LanguageCoordinate(nil), ls...)
	return v
}

// Key returns the value hash of the composite coordinate.
func (v ViewCoordinate) Key() string {
	return key("view", map[string]any{
		"stamp":      v.Stamp.Key(),
		"languages":  LanguagesKey(v.Languages...),
		"logic":      v.Logic.Key(),
		"navigation": v.Navigation.Key(),
		"edit":       v.Edit.Key(),
	})
}

// LanguagesKey returns the value hash of a language fallback chain.
func LanguagesKey(ls ...LanguageCoordinate) string {
	keys := make([]string, len(ls))
	for i, l := range ls {
		keys[i] = l.Key()
	}
	return key("languages", map[string]any{"chain": keys})
}

// Equal reports value equality.
func (v ViewCoordinate) Equal(other ViewCoordinate) bool {
	return v.Key() == other.Key()
}
