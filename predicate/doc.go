// Package predicate defines the typed predicate model used by the search
// engine and implements in-process (residual) predicate evaluation.
//
// Predicates arrive from the caller as (attribute, operator, value) tuples.
// The planner splits them into a base predicate served by a projection's
// partition key and residual predicates evaluated here against each fetched
// row. Evaluation is pure: no I/O, no shared state.
package predicate
