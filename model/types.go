package model

import (
	"github.com/scoutdex/scoutdex/predicate"
)

// Request limit bounds. Requests outside the range are rejected; a zero limit
// selects DefaultLimit.
const (
	MinLimit     = 1
	MaxLimit     = 500
	DefaultLimit = 50
)

// Entity is a single denormalized row as stored in a projection.
// Projections carry superset-consistent copies of the same fields, so the
// engine treats every projection's rows as interchangeable Entity values.
type Entity struct {
	// ID is the globally unique entity identifier (dedup key for fan-out).
	ID string

	// Fields holds the entity attributes carried by the projection row.
	Fields predicate.Document
}

// SearchRequest is an attribute-based lookup: all predicates must hold.
type SearchRequest struct {
	Predicates []predicate.Predicate

	// Limit bounds the result page (MinLimit..MaxLimit, 0 = DefaultLimit).
	Limit int

	// Cursor resumes a previous search. It is only valid for the exact
	// predicate set it was minted for.
	Cursor string

	// Exhaustive requests multi-projection fan-out instead of a single base
	// projection. Used for queries where no single base is reliable.
	Exhaustive bool
}

// SearchResponse is an ordered page of entities. Order is strategy-dependent
// (partition/clustering order, not a global rank).
type SearchResponse struct {
	Items []Entity

	// StrategyUsed names the chosen strategy and projection(s).
	StrategyUsed string

	// QueryID correlates log lines and responses.
	QueryID string

	// Degraded is set when a fan-out branch failed and the response holds
	// the union of the surviving branches only.
	Degraded bool

	HasMore    bool
	NextCursor string
}

// BrowseRequest reads one projection partition in clustering order, e.g. a
// per-entity time series.
type BrowseRequest struct {
	Projection string
	Key        string
	Limit      int
	Cursor     string
}

// BrowsePage is one page of a Browse read.
type BrowsePage struct {
	Items      []Entity
	HasMore    bool
	NextCursor string
}
