// Package catalog holds the projection metadata and cardinality statistics
// the planner consults: which projections exist, their partition and
// clustering keys, per-value row counts, and hot-partition flags.
//
// Statistics live in an immutable Snapshot swapped atomically behind the
// Catalog. Readers always observe one consistent snapshot; refresh builds a
// new snapshot off to the side and publishes it with a single pointer swap.
package catalog
