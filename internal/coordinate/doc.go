// Package coordinate defines the immutable, value-equal specifications that
// select which versions, languages and relationships a query sees.
//
// Coordinates are pure data. Key returns a value hash used to share one
// calculator among all equal coordinates; two coordinates are equal exactly
// when their keys are.
//
// Five kinds compose into a ViewCoordinate:
//   - StampCoordinate: allowed states, position (time, path), modules
//   - LanguageCoordinate: language, description-type and dialect preference
//   - LogicCoordinate: classifier and axiom pattern references
//   - NavigationCoordinate: navigation patterns, vertex states, sorting
//   - EditCoordinate: author, module and path for new content
package coordinate

import (
	"fmt"

	"github.com/roach88/stampview/internal/entity"
)

// key hashes a canonical map. Coordinates only hold strings, integers,
// booleans and integer arrays, for which canonical encoding cannot fail.
func key(kind string, canonical map[string]any) string {
	k, err := entity.CoordinateKey(kind, canonical)
	if err != nil {
		panic(fmt.Sprintf("coordinate: %s key: %v", kind, err))
	}
	return k
}
