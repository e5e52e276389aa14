// Package model defines the core types exchanged between the engine and its
// callers.
//
//   - Entity: the logical record being searched, identified by a globally
//     unique id. Entities are read-only for the engine; ingestion owns them.
//   - SearchRequest / SearchResponse: the attribute-search contract.
//   - BrowseRequest / BrowsePage: bounded single-partition reads against a
//     named projection (time-series style access).
package model
