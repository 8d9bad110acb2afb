// Package store provides the entity store the version model sits on: an
// append-only keyed store of chronologies and stamps addressed by dense
// int32 nids.
//
// Three implementations share one contract:
//   - MemoryStore: concurrent in-process maps (default, tests)
//   - SQLiteStore: durable single-file store (WAL mode)
//   - BadgerStore: durable LSM key-value store
//
// # Critical Patterns
//
// Append-only:
//   - PutEntity merges: existing versions are kept, versions under unseen
//     stamps are appended
//   - a version under a stamp that is still uncommitted may be replaced by a
//     newer edit under the same stamp; committed versions are never replaced
//   - nothing is ever deleted
//
// Identity:
//   - NidForUUID assigns a nid on first sight and is idempotent afterwards
//   - nids never take the reserved values 0, MaxInt32, MinInt32
//
// Concurrency:
//   - all methods are safe for concurrent use; no lock guards the whole store
//   - Generation increases on every write so memoizing readers can detect
//     staleness
package store
