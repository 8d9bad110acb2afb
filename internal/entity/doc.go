// Package entity provides the immutable version model of stampview.
//
// This package contains value types only. Every other internal package
// imports entity; entity imports nothing internal except intid and errors.
//
// Key design constraints:
//   - Nids 0, MaxInt32 and MinInt32 are reserved and never reference an entity
//   - Versions are append-only: WithVersion returns a new chronology and never
//     edits the receiver
//   - Every version references exactly one stamp; the stamp's last analogue
//     is its effective status/time/author/module/path
//   - Stamp identities are name-based UUIDs over the canonical encoding of the
//     stamp tuple, so the same tuple always converges on one stamp
package entity
