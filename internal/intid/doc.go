// Package intid provides immutable, size-adaptive collections of 32-bit
// entity identifiers.
//
// The factories pick the cheapest representation for the final element
// count:
//
//   - 0 elements: a shared empty value
//   - 1 or 2 elements: fixed-arity values with no backing slice
//   - up to ArrayThreshold elements: a slice wrapper
//   - more than ArrayThreshold unique elements (sets only): a roaring bitmap
//
// Sets always iterate in ascending signed order, whatever the
// representation, so crossing the threshold never changes observable
// behavior. Nothing in this package mutates its inputs.
package intid

// ArrayThreshold is the largest unique cardinality kept in a plain array.
const ArrayThreshold = 1024
