package scoutdex

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    searchCounter   prometheus.Counter
//	    searchHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordSearch(strategy string, duration time.Duration, err error) {
//	    p.searchCounter.Inc()
//	    // ... record strategy label, error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordSearch is called after each search.
	// strategy is the executed strategy name, duration the total time
	// taken, err is nil if successful (degraded responses count as
	// successes).
	RecordSearch(strategy string, duration time.Duration, err error)

	// RecordDegraded is called when a search returned partial results
	// because at least one fan-out branch failed.
	RecordDegraded(failedBranches int)

	// RecordUnboundedScan is called when a query fell back to the default
	// projection.
	RecordUnboundedScan()

	// RecordHotRead is called for each page read of a hot partition.
	RecordHotRead(projection string)

	// RecordBrowse is called after each browse page read.
	RecordBrowse(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSearch(string, time.Duration, error) {}
func (NoopMetricsCollector) RecordDegraded(int)                        {}
func (NoopMetricsCollector) RecordUnboundedScan()                      {}
func (NoopMetricsCollector) RecordHotRead(string)                      {}
func (NoopMetricsCollector) RecordBrowse(time.Duration, error)         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	DegradedCount    atomic.Int64
	FailedBranches   atomic.Int64
	UnboundedScans   atomic.Int64
	HotReads         atomic.Int64
	BrowseCount      atomic.Int64
	BrowseErrors     atomic.Int64
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(strategy string, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordDegraded implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDegraded(failedBranches int) {
	b.DegradedCount.Add(1)
	b.FailedBranches.Add(int64(failedBranches))
}

// RecordUnboundedScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUnboundedScan() {
	b.UnboundedScans.Add(1)
}

// RecordHotRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHotRead(projection string) {
	b.HotReads.Add(1)
}

// RecordBrowse implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBrowse(duration time.Duration, err error) {
	b.BrowseCount.Add(1)
	if err != nil {
		b.BrowseErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		SearchAvgNanos: b.getAvgSearchNanos(),
		DegradedCount:  b.DegradedCount.Load(),
		FailedBranches: b.FailedBranches.Load(),
		UnboundedScans: b.UnboundedScans.Load(),
		HotReads:       b.HotReads.Load(),
		BrowseCount:    b.BrowseCount.Load(),
		BrowseErrors:   b.BrowseErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgSearchNanos() int64 {
	count := b.SearchCount.Load()
	if count == 0 {
		return 0
	}
	return b.SearchTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	DegradedCount  int64
	FailedBranches int64
	UnboundedScans int64
	HotReads       int64
	BrowseCount    int64
	BrowseErrors   int64
}
