// Package queryir is the predicate language used to select entities by
// attribute instead of by ID.
//
// It covers the "entity_id_or_predicate" argument of the temporal queries:
//
//	Select{From: "Product", Filter: Equals{Field: "name", Value: ir.String("DeLorean")}}
//
// A predicate is evaluated against one version's attributes, so a
// historical query matches an entity only while its own state satisfied
// the filter.
//
// # Fragment
//
// Supported:
//   - Equals(field, literal): deterministic equality via ir.Equal
//   - And(predicates...): conjunction; empty And is always true
//
// Excluded:
//   - NULL comparisons (a missing attribute never equals anything)
//   - OR and negation
//   - float literals (ir values carry no floats)
//
// Query and Predicate are sealed: only types in this package implement
// them, so Evaluate and Validate switch exhaustively.
package queryir
