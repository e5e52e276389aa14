package scoutdex

import (
	"log/slog"
	"time"

	"github.com/scoutdex/scoutdex/executor"
)

const (
	// DefaultFanOutConcurrency bounds simultaneous branch reads during
	// fan-out.
	DefaultFanOutConcurrency = 4

	// DefaultFanOutWidth is how many projections an exhaustive search
	// fans out over.
	DefaultFanOutWidth = 3

	// DefaultOverFetch multiplies the requested limit when sizing store
	// pages, so residual filtering usually fills a page in one read.
	DefaultOverFetch = 3
)

type options struct {
	logger            *Logger
	metricsCollector  MetricsCollector
	fanOutConcurrency int
	fanOutWidth       int
	overFetch         int
	execConfig        executor.Config
	clock             func() time.Time
}

// Option configures Engine constructor behavior.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := scoutdex.NewJSONLogger(slog.LevelInfo)
//	eng, _ := scoutdex.New(cat, client, scoutdex.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &scoutdex.BasicMetricsCollector{}
//	eng, _ := scoutdex.New(cat, client, scoutdex.WithMetricsCollector(metrics))
//	// ... use eng ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithFanOutConcurrency bounds how many fan-out branches read the store
// simultaneously. Values below 1 keep the default.
func WithFanOutConcurrency(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.fanOutConcurrency = n
		}
	}
}

// WithFanOutWidth sets how many projections an exhaustive search fans out
// over. Values below 2 keep the default.
func WithFanOutWidth(n int) Option {
	return func(o *options) {
		if n >= 2 {
			o.fanOutWidth = n
		}
	}
}

// WithOverFetch sets the page-sizing multiplier applied to the requested
// limit to compensate for residual filtering. Values below 1 keep the
// default.
func WithOverFetch(factor int) Option {
	return func(o *options) {
		if factor >= 1 {
			o.overFetch = factor
		}
	}
}

// WithExecutorConfig overrides the page-size, retry and hot-partition pacing
// defaults of the underlying executor.
func WithExecutorConfig(cfg executor.Config) Option {
	return func(o *options) {
		o.execConfig = cfg
	}
}

// WithClock overrides the time source used for derived attributes such as
// age. Meant for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.clock = now
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:            NoopLogger(),
		metricsCollector:  NoopMetricsCollector{},
		fanOutConcurrency: DefaultFanOutConcurrency,
		fanOutWidth:       DefaultFanOutWidth,
		overFetch:         DefaultOverFetch,
		execConfig:        executor.DefaultConfig(),
		clock:             time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
