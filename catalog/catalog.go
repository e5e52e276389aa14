package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Source supplies fresh statistics, e.g. from a batch job publishing counts
// to object storage. Implementations must be safe for concurrent use.
type Source interface {
	FetchStats(ctx context.Context) (Stats, error)
}

// Catalog publishes the current Snapshot. Load is wait-free; Refresh builds a
// replacement snapshot and swaps it in atomically, so readers never observe a
// partially updated catalog.
type Catalog struct {
	snap atomic.Pointer[Snapshot]
	opts []SnapshotOption
}

// New creates a catalog serving the given initial snapshot. The snapshot
// options are reused when Refresh rebuilds snapshots from fresh statistics.
func New(initial *Snapshot, optFns ...SnapshotOption) (*Catalog, error) {
	if initial == nil {
		return nil, fmt.Errorf("catalog: nil initial snapshot")
	}
	c := &Catalog{opts: optFns}
	c.snap.Store(initial)
	return c, nil
}

// Load returns the current snapshot.
func (c *Catalog) Load() *Snapshot { return c.snap.Load() }

// Swap publishes a pre-built snapshot.
func (c *Catalog) Swap(s *Snapshot) {
	if s != nil {
		c.snap.Store(s)
	}
}

// Refresh fetches statistics from the source and publishes a new snapshot
// with the current projection set. The previous snapshot stays visible until
// the new one is fully built.
func (c *Catalog) Refresh(ctx context.Context, src Source) error {
	stats, err := src.FetchStats(ctx)
	if err != nil {
		return fmt.Errorf("catalog: refresh: %w", err)
	}
	next, err := NewSnapshot(c.Load().Projections(), stats, c.opts...)
	if err != nil {
		return fmt.Errorf("catalog: refresh: %w", err)
	}
	c.snap.Store(next)
	return nil
}

// Run refreshes the catalog on the given interval until ctx is cancelled.
// Refresh failures are logged and the previous snapshot stays in place.
func (c *Catalog) Run(ctx context.Context, src Source, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx, src); err != nil {
				logger.WarnContext(ctx, "catalog refresh failed", "error", err)
			}
		}
	}
}
