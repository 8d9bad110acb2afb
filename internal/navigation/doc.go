// Package navigation answers parent, child, ancestor and descendant
// queries over one or more relationship patterns.
//
// There is no precomputed global graph. Edges are resolved per vertex from
// the single visible relationship semantic of each (concept, pattern) pair:
// field 0 of that semantic holds the concept's children, field 1 its
// parents. Edges from every configured pattern are merged, and the
// pattern's meaning identifies the relationship type an edge carries.
//
// Relationship semantics and vertices are read through the vertex stamp
// calculator, whose allowed states come from the navigation coordinate
// rather than the view's stamp coordinate. Pattern definitions and sort
// semantics are read through the view's stamp calculator.
//
// Closures are iterative and guarded by a visited set, so cycles terminate
// without error. FindCycle is the explicit probe for malformed graphs.
package navigation
