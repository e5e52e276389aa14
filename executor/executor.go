// Package executor reads projection partitions through a store client,
// applying the hot-partition guard and the bounded retry policy on the way.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/scoutdex/scoutdex/store"
)

const (
	// DefaultPageSize is the store page size for regular partitions.
	DefaultPageSize int32 = 1000

	// HotPageSize caps the page size for hot partitions to bound tail
	// latency on oversized keys.
	HotPageSize int32 = 200
)

// RetryPolicy bounds how transient store failures are retried. Only timeouts
// and unavailability are retried; everything else surfaces immediately.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int

	// InitialBackoff is the delay before the first retry; it doubles on
	// each subsequent one.
	InitialBackoff time.Duration
}

// DefaultRetryPolicy retries twice with exponential backoff from 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialBackoff: 50 * time.Millisecond}
}

// Config tunes a single executor.
type Config struct {
	DefaultPageSize int32
	HotPageSize     int32
	Retry           RetryPolicy

	// HotRate paces reads of a single hot partition key. Zero disables
	// pacing.
	HotRate  rate.Limit
	HotBurst int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize: DefaultPageSize,
		HotPageSize:     HotPageSize,
		Retry:           DefaultRetryPolicy(),
		HotRate:         rate.Limit(20),
		HotBurst:        5,
	}
}

// PageRequest asks for one page of one partition.
type PageRequest struct {
	Projection string
	Key        string

	// Prefix restricts rows to clustering keys with this prefix. Empty
	// reads the whole partition.
	Prefix string

	// Hot routes the read through the hot-partition guard.
	Hot bool

	// PageSize is the desired page size; zero means the configured
	// default. The hot guard may lower it.
	PageSize int32

	// PageState resumes a previous read. Nil starts at the beginning.
	PageState []byte
}

// Executor issues guarded partition reads.
type Executor struct {
	store  store.Client
	cfg    Config
	logger *slog.Logger

	warned   sync.Map // projection "/" key -> struct{}
	limiters sync.Map // projection "/" key -> *rate.Limiter
}

// New builds an executor around a store client.
func New(client store.Client, logger *slog.Logger, cfg Config) *Executor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = DefaultPageSize
	}
	if cfg.HotPageSize <= 0 {
		cfg.HotPageSize = HotPageSize
	}
	return &Executor{store: client, cfg: cfg, logger: logger}
}

// ReadPage reads one page, capping the page size and pacing the call when the
// partition is hot, and retrying transient failures per the policy.
func (e *Executor) ReadPage(ctx context.Context, req PageRequest) (store.Page, error) {
	pageSize := req.PageSize
	if pageSize <= 0 || pageSize > e.cfg.DefaultPageSize {
		pageSize = e.cfg.DefaultPageSize
	}
	if req.Hot {
		if pageSize > e.cfg.HotPageSize {
			pageSize = e.cfg.HotPageSize
		}
		if err := e.guardHot(ctx, req); err != nil {
			return store.Page{}, err
		}
	}

	read := store.ReadRequest{
		Projection: req.Projection,
		Key:        req.Key,
		Prefix:     req.Prefix,
		PageSize:   pageSize,
		PageState:  req.PageState,
	}

	var lastErr error
	backoff := e.cfg.Retry.InitialBackoff
	for attempt := 0; attempt <= e.cfg.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			e.logger.Debug("retrying partition read",
				slog.String("projection", req.Projection),
				slog.String("key", req.Key),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return store.Page{}, errors.Join(ctx.Err(), lastErr)
			case <-timer.C:
			}
			backoff *= 2
		}

		page, err := e.store.ReadPartition(ctx, read)
		if err == nil {
			return page, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return store.Page{}, lastErr
}

// retryable limits retries to transient store conditions.
func retryable(err error) bool {
	return errors.Is(err, store.ErrTimeout) || errors.Is(err, store.ErrUnavailable)
}

// guardHot warns once per hot key and paces repeat reads of it.
func (e *Executor) guardHot(ctx context.Context, req PageRequest) error {
	id := req.Projection + "/" + req.Key
	if _, seen := e.warned.LoadOrStore(id, struct{}{}); !seen {
		e.logger.Warn("hot partition, capping page size",
			slog.String("projection", req.Projection),
			slog.String("key", req.Key),
			slog.Int("page_size", int(e.cfg.HotPageSize)))
	}

	if e.cfg.HotRate <= 0 {
		return nil
	}
	v, _ := e.limiters.LoadOrStore(id, rate.NewLimiter(e.cfg.HotRate, max(e.cfg.HotBurst, 1)))
	if err := v.(*rate.Limiter).Wait(ctx); err != nil {
		return fmt.Errorf("hot partition pacing: %w", err)
	}
	return nil
}
