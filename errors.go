package scoutdex

import (
	"errors"
	"fmt"

	"github.com/scoutdex/scoutdex/cursor"
	"github.com/scoutdex/scoutdex/planner"
	"github.com/scoutdex/scoutdex/store"
)

var (
	// ErrInvalidCursor is returned when a cursor is malformed or was minted
	// for a different predicate set. The cursor is rejected, never
	// reinterpreted.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrCursorExpired is returned when a cursor was minted by an
	// incompatible format version. Resubmitting the search without the
	// cursor recovers.
	ErrCursorExpired = errors.New("cursor expired")

	// ErrQueryTimeout is returned when the base read path exceeded its
	// deadline after exhausting the retry budget.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrStoreUnavailable is returned when the store could not be reached
	// on the base read path after exhausting the retry budget.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidLimit is returned when the requested limit is outside the
	// allowed range.
	ErrInvalidLimit = errors.New("limit out of range")
)

// ErrInvalidPredicate indicates a predicate the engine rejected before any
// I/O: a malformed tuple, or a set no projection can serve.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidPredicate struct {
	Reason string
	cause  error
}

func (e *ErrInvalidPredicate) Error() string {
	return fmt.Sprintf("invalid predicate: %s", e.Reason)
}

func (e *ErrInvalidPredicate) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Cursor normalization. Expiry must stay distinct from invalidity so
	// callers can resubmit without a cursor on the former.
	if errors.Is(err, cursor.ErrExpired) {
		return fmt.Errorf("%w: %w", ErrCursorExpired, err)
	}
	if errors.Is(err, cursor.ErrInvalid) {
		return fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}

	// Planning failures are request errors, not store errors.
	if errors.Is(err, planner.ErrNoProjection) {
		return &ErrInvalidPredicate{Reason: "no projection covers the predicate set", cause: err}
	}

	// Store normalization.
	if errors.Is(err, store.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrQueryTimeout, err)
	}
	if errors.Is(err, store.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return err
}
