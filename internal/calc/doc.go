// Package calc resolves versions under coordinates.
//
// A StampCalculator answers "which version of this entity is latest" for one
// stamp coordinate; a LanguageCalculator picks the description text a list
// of language coordinates prefers. Both are bound to their coordinates for
// life and are handed out through a Cache keyed by coordinate value, so
// equal coordinates share one calculator while it is in use.
//
// Absence is a value: Latest reports IsPresent() == false when nothing is
// visible. Errors are reserved for store failures, reserved nids and
// integrity violations.
package calc
