// Package harness runs conformance scenarios against a real engine.
//
// A scenario builds a small terminology in a fresh in-memory store, drives
// transactions through the registry and queries the navigation graph under
// a view. Every step is recorded in a trace, and query steps may carry an
// expected result compared against what the engine actually returned.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: diamond
//	description: "Closures over a diamond visit the shared ancestor once"
//	view:
//	  patterns: [is_a]
//	  sort: false
//	setup:
//	  - op: stamp
//	    name: s100
//	    state: active
//	    time: 100
//	  - op: concept
//	    concepts: [A, B, C, D]
//	    stamp: s100
//	  - op: relate
//	    pattern: is_a
//	    stamp: s100
//	    edges: { A: [B, C], B: [D], C: [D] }
//	flow:
//	  - op: ancestors
//	    concept: A
//	    expect: [B, C, D]
//	assertions:
//	  - type: trace_count
//	    op: ancestors
//	    count: 1
//
// # Operations
//
// Fixture operations write directly to the store:
//
//   - stamp: a committed stamp named name with state and time
//   - concept: a version of each of concepts under stamp
//   - relate: navigation semantics of pattern for edges (child to parents)
//   - describe: a regular name description of concept with text
//   - sort_order: a custom child order for concept
//
// Transaction operations go through the registry:
//
//   - open: opens transaction
//   - tx_stamp: an uncommitted stamp named name in transaction
//   - commit, cancel: resolve transaction, optionally at time
//
// Query operations read through the engine's calculators:
//
//   - parents, children, ancestors, descendants: concept names
//   - is_descendent: whether concept descends from ancestor
//   - find_cycle: the names on a cycle reachable from concept, sorted
//   - name: the description text of concept
//   - latest: state and time of the latest visible version of concept
//
// A query may set expect (the result) or expect_error (an integrity code,
// or "error" for any other failure).
//
// # Assertion Types
//
//   - trace_contains: an op with matching args appears in the trace
//   - trace_order: ops appear in the given order
//   - trace_count: an op appears exactly count times
//   - final_state: the latest version of concept matches expect
//
// # Deterministic Testing
//
// Identities are name-based, the commit clock is manual and unsorted
// results are reported in name order, so a scenario produces the same
// trace on every run. RunWithGolden compares it against
// testdata/golden/<name>.golden.
package harness
