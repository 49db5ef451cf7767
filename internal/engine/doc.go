// Package engine implements the temporal versioning core.
//
// The engine keeps the full version history of mutable entities and
// answers "what did this look like at T / between T1 and T2 / ever".
//
// ARCHITECTURE:
//
// Entity Table:
// Current rows, one per live entity, keyed c|type|id. The table is a cache
// over the ledger: Rebuild regenerates it from the open versions alone.
//
// Mutation Coordinator:
// Create, Update, Delete and Restore each run as one substrate write
// transaction under a per-entity lock:
//  1. lock (type, id)
//  2. stamp t = Clock.Now()
//  3. close the open version at t (update, delete)
//  4. append a new open version [t, +inf) (create, update, restore)
//  5. write or remove the current row
//  6. commit; any error rolls back to the pre-call state
//
// Temporal Query Engine:
// AsOf, Between and All read one entity's history with a single range scan
// inside a read transaction, so a reader never sees half a transition.
// The *Where forms scan a whole entity type and filter each version with a
// queryir predicate. AsOfJoin and Resolve compose per-reference AsOf calls
// at one timestamp inside one transaction.
//
// INTERVALS:
//
// Versions are half-open [valid_from, valid_to). An update at t is visible
// to AsOf(t). A timestamp that does not advance past the open version's
// valid_from is rejected with CLOCK_REGRESSION rather than producing an
// empty interval.
//
// ERRORS:
//
// Every failure is an *ir.TemporalError (NOT_FOUND, CONFLICT,
// CLOCK_REGRESSION, STORAGE, INVALID). The engine never retries.
package engine
