// Package engine wires the version model together.
//
// An Engine owns the entity store, the stamp factory, the transaction
// registry and the calculator caches. Calculators are handed out per
// coordinate value: equal coordinates share one calculator for as long as
// any caller holds it.
//
// REFRESH:
//
// Resolving a transaction enqueues a refresh event. Run drains the queue on
// a single goroutine and delivers events to subscribers in resolution
// order, so subscribers never run under a transaction lock and never see
// events out of order. Calculators do not need the event: they revalidate
// against the store generation on every query.
//
// BULK WORK:
//
// AffectedConcepts and ForEachLatest fan out over Store.ForEachParallel
// and are safe to call from many goroutines at once.
package engine
