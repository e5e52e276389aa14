// Package store abstracts the external partitioned wide-column store. The
// engine only ever issues bounded partition reads: one partition key, a page
// size, and an opaque continuation token minted by a previous read.
package store

import (
	"context"
	"errors"

	"github.com/scoutdex/scoutdex/model"
)

var (
	// ErrTimeout marks a read that exceeded its deadline. Retryable.
	ErrTimeout = errors.New("store: read timed out")

	// ErrUnavailable marks a connectivity failure. Retryable with backoff.
	ErrUnavailable = errors.New("store: unavailable")
)

// ReadRequest describes one bounded partition read.
type ReadRequest struct {
	// Projection names the projection (table) to read.
	Projection string

	// Key is the partition key value.
	Key string

	// Prefix, when non-empty, restricts the read to rows whose clustering
	// key starts with it (lowercased comparison, matching the ingestion's
	// normalized clustering columns).
	Prefix string

	// PageSize bounds the number of rows returned.
	PageSize int32

	// PageState resumes a previous read. Opaque to everything but the
	// implementation that minted it.
	PageState []byte
}

// Page is the result of one partition read. A nil PageState means the
// partition is exhausted.
type Page struct {
	Rows      []model.Entity
	PageState []byte
}

// Client reads projection partitions. Implementations must use parameterized
// access only (no value interpolation) and must translate their native
// failure modes to ErrTimeout / ErrUnavailable. A missing partition is an
// empty page, not an error.
type Client interface {
	ReadPartition(ctx context.Context, req ReadRequest) (Page, error)
}
