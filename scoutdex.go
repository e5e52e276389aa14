// Package scoutdex is a query-routing engine for attribute-based entity
// lookups over denormalized, partition-keyed projections.
//
// Instead of a secondary index, the dataset is stored several times, once per
// access pattern: each projection is keyed by one attribute (position,
// nationality, a fixed sentinel for the global name index). The engine routes
// a predicate set to the cheapest projection, reads that partition in
// clustering order, and filters the remaining predicates in process.
//
// Production-ready features include:
//
//   - Strategy selection over a closed enum: single, lowest-selectivity,
//     scan fallback, fan-out and browse
//   - Selectivity estimation from refreshable catalog statistics with a
//     conservative 1/cardinality fallback
//   - Atomic catalog snapshot swaps: readers never see torn statistics
//   - Stateless, versioned, replay-safe pagination cursors
//   - Hot-partition guarding with capped page sizes and pacing
//   - Bounded concurrent fan-out with first-seen dedup and explicit
//     degraded partial results
//
// # Quick Start
//
//	snap, _ := catalog.NewSnapshot(projections, stats)
//	cat, _ := catalog.New(snap)
//	eng, _ := scoutdex.New(cat, storeClient,
//	    scoutdex.WithLogger(scoutdex.NewJSONLogger(slog.LevelInfo)),
//	)
//
//	resp, err := eng.Search(ctx, model.SearchRequest{
//	    Predicates: []predicate.Predicate{
//	        predicate.Eq("position", predicate.String("GK")),
//	        predicate.Eq("nationality", predicate.String("BR")),
//	    },
//	    Limit: 25,
//	})
//
// Pagination round-trips the opaque cursor:
//
//	next, err := eng.Search(ctx, model.SearchRequest{
//	    Predicates: samePredicates,
//	    Limit:      25,
//	    Cursor:     resp.NextCursor,
//	})
package scoutdex

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scoutdex/scoutdex/catalog"
	"github.com/scoutdex/scoutdex/cursor"
	"github.com/scoutdex/scoutdex/executor"
	"github.com/scoutdex/scoutdex/model"
	"github.com/scoutdex/scoutdex/planner"
	"github.com/scoutdex/scoutdex/predicate"
	"github.com/scoutdex/scoutdex/store"
)

// Engine routes searches over the projection catalog. Safe for concurrent
// use; all per-request state lives on the stack or in the cursor.
type Engine struct {
	catalog *catalog.Catalog
	exec    *executor.Executor
	eval    predicate.Evaluator
	metrics MetricsCollector
	logger  *Logger
	opts    options
}

// New creates an Engine over a catalog and a store client.
func New(cat *catalog.Catalog, client store.Client, optFns ...Option) (*Engine, error) {
	if cat == nil {
		return nil, fmt.Errorf("scoutdex: catalog is nil")
	}
	if client == nil {
		return nil, fmt.Errorf("scoutdex: store client is nil")
	}
	opts := applyOptions(optFns)

	return &Engine{
		catalog: cat,
		exec:    executor.New(client, opts.logger.Logger, opts.execConfig),
		eval:    predicate.Evaluator{Now: opts.clock},
		metrics: opts.metricsCollector,
		logger:  opts.logger,
		opts:    opts,
	}, nil
}

// Search evaluates the request against the current catalog snapshot.
//
// Fatal errors (invalid predicates, invalid or expired cursors, base-path
// store failures) return a typed error. Partial fan-out failures are not
// errors: the response carries the surviving branches with Degraded set.
func (e *Engine) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	start := e.opts.clock()

	resp, err := e.search(ctx, req)

	strategy := "invalid"
	if resp != nil {
		strategy = resp.StrategyUsed
	}
	e.metrics.RecordSearch(strategy, e.opts.clock().Sub(start), err)
	return resp, err
}

func (e *Engine) search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	limit, err := resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}

	set := predicate.Set(req.Predicates)
	if err := set.Validate(); err != nil {
		return nil, &ErrInvalidPredicate{Reason: err.Error(), cause: err}
	}
	set = set.Canonical()
	digest := cursor.Digest(set)

	snap := e.catalog.Load()
	plan, err := planner.Select(snap, set, req.Exhaustive, e.opts.fanOutWidth)
	if err != nil {
		return nil, translateError(err)
	}

	queryID := uuid.NewString()
	logger := e.logger.WithQueryID(queryID).WithStrategy(plan.Strategy.String())
	if plan.Unbounded {
		logger.LogUnboundedScan(ctx, plan.Base[0].Projection.Name)
		e.metrics.RecordUnboundedScan()
	}

	resumes, delivered, err := e.resumePoints(req.Cursor, digest, plan)
	if err != nil {
		return nil, err
	}

	resp := &model.SearchResponse{
		StrategyUsed: describePlan(plan),
		QueryID:      queryID,
	}

	startAt := e.opts.clock()
	switch plan.Strategy {
	case planner.StrategyFanOut:
		delivered, err = e.runFanOut(ctx, plan, limit, resumes, delivered, resp, logger)
	default:
		err = e.runSingle(ctx, plan, limit, resumes, resp)
	}
	logger.LogSearch(ctx, plan.Strategy.String(), len(resp.Items), resp.Degraded, e.opts.clock().Sub(startAt), err)
	if err != nil {
		return nil, translateError(err)
	}

	if resp.HasMore {
		token, err := e.nextCursor(plan, digest, resumes, delivered)
		if err != nil {
			return nil, err
		}
		resp.NextCursor = token
	}
	return resp, nil
}

// resolveLimit applies the default and rejects out-of-range values.
func resolveLimit(limit int) (int, error) {
	if limit == 0 {
		return model.DefaultLimit, nil
	}
	if limit < model.MinLimit || limit > model.MaxLimit {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidLimit, limit, model.MinLimit, model.MaxLimit)
	}
	return limit, nil
}

func describePlan(plan planner.Plan) string {
	return plan.Strategy.String() + "(" + strings.Join(plan.Projections(), ",") + ")"
}

// resumePoints decodes the cursor (if any) into one resume point per planned
// base candidate. A replanned query whose strategy or projection ranking no
// longer matches the cursor gets ErrCursorExpired: the catalog moved on and
// the continuation tokens cannot be trusted against a different plan.
func (e *Engine) resumePoints(token string, digest uint32, plan planner.Plan) ([]resume, []string, error) {
	resumes := make([]resume, len(plan.Base))
	if token == "" {
		return resumes, nil, nil
	}

	st, err := cursor.Decode(token, digest)
	if err != nil {
		return nil, nil, translateError(err)
	}
	if planner.Strategy(st.Strategy) != plan.Strategy {
		return nil, nil, fmt.Errorf("%w: plan changed from %s to %s",
			ErrCursorExpired, planner.Strategy(st.Strategy), plan.Strategy)
	}
	if len(st.Projections) != len(plan.Base) {
		return nil, nil, fmt.Errorf("%w: plan width changed", ErrCursorExpired)
	}
	for i, name := range st.Projections {
		if name != plan.Base[i].Projection.Name {
			return nil, nil, fmt.Errorf("%w: projection ranking changed", ErrCursorExpired)
		}
		r, err := decodeResume(st.Tokens[i])
		if err != nil {
			return nil, nil, translateError(err)
		}
		resumes[i] = r
	}
	return resumes, st.Delivered, nil
}

// nextCursor serializes the post-read resume points. delivered is empty for
// single-branch strategies: one monotonic stream cannot re-deliver.
func (e *Engine) nextCursor(plan planner.Plan, digest uint32, resumes []resume, delivered []string) (string, error) {
	st := cursor.State{
		Strategy:    uint8(plan.Strategy),
		Digest:      digest,
		Projections: plan.Projections(),
		Tokens:      make([][]byte, len(resumes)),
		Delivered:   delivered,
	}
	for i, r := range resumes {
		st.Tokens[i] = encodeResume(r)
	}
	token, err := cursor.Encode(st)
	if err != nil {
		return "", fmt.Errorf("scoutdex: encoding cursor: %w", err)
	}
	return token, nil
}

// runSingle executes the single, lowest-selectivity and scan strategies: one
// projection, pages pulled until the limit is filled or the partition ends.
// The post-read resume point is written back into resumes for the cursor.
func (e *Engine) runSingle(ctx context.Context, plan planner.Plan, limit int, resumes []resume, resp *model.SearchResponse) error {
	cand := plan.Base[0]
	items, next, err := e.readBranch(ctx, cand, branchFilter(plan, cand), limit, resumes[0])
	if err != nil {
		return err
	}
	resp.Items = items
	resumes[0] = next
	resp.HasMore = !next.done
	return nil
}

// branchFilter returns the predicate set a branch re-checks in process. For
// sentinel projections the base predicate is re-checked too: the store only
// narrows by prefix, which over-matches an equality base.
func branchFilter(plan planner.Plan, cand planner.Candidate) predicate.Set {
	if cand.Projection.IsSentinel() && cand.Predicate.Attr != "" {
		for _, p := range plan.Residual {
			if p.Repr() == cand.Predicate.Repr() {
				return plan.Residual
			}
		}
		return append(append(predicate.Set{}, plan.Residual...), cand.Predicate)
	}
	return plan.Residual
}

// readBranch pulls pages of one partition, applies the residual filter, and
// accumulates up to limit matches. It returns the resume point to continue
// from; done marks an exhausted partition.
func (e *Engine) readBranch(ctx context.Context, cand planner.Candidate, filter predicate.Set, limit int, res resume) ([]model.Entity, resume, error) {
	if res.done {
		return nil, res, nil
	}

	prefix := ""
	if cand.Projection.IsSentinel() && cand.Predicate.Attr != "" {
		prefix = cand.Predicate.Value.S
	}

	pageSize := int32(limit * e.opts.overFetch)

	var items []model.Entity
	state := res.state
	skip := res.skip
	for {
		page, err := e.exec.ReadPage(ctx, executor.PageRequest{
			Projection: cand.Projection.Name,
			Key:        cand.Key,
			Prefix:     prefix,
			Hot:        cand.Hot,
			PageSize:   pageSize,
			PageState:  state,
		})
		if err != nil {
			return nil, res, err
		}
		if cand.Hot {
			e.metrics.RecordHotRead(cand.Projection.Name)
		}

		matched := 0
		appended := 0
		overflow := false
		for _, row := range page.Rows {
			if !e.eval.MatchesAll(row.Fields, filter) {
				continue
			}
			matched++
			if matched <= skip {
				continue
			}
			if len(items) < limit {
				items = append(items, row)
				appended++
				continue
			}
			overflow = true
			break
		}
		if overflow {
			// A match beyond the limit exists in this page: resume by
			// replaying the page and skipping the matches already returned.
			return items, resume{state: state, skip: skip + appended}, nil
		}
		if page.PageState == nil {
			return items, resume{done: true}, nil
		}
		if len(items) == limit {
			return items, resume{state: page.PageState}, nil
		}
		state = page.PageState
		// A skip can span page boundaries when the merge rewound past more
		// matches than one page holds; carry the remainder forward.
		if skip > matched {
			skip -= matched
		} else {
			skip = 0
		}
	}
}

// resume is one executor's continuation point: the store page state a page
// was fetched with, plus how many already-returned matches of that page to
// skip on replay. done marks an exhausted branch.
type resume struct {
	state []byte
	skip  int
	done  bool
}

// encodeResume frames a resume point as an opaque cursor token. Exhausted
// branches serialize as nil.
func encodeResume(r resume) []byte {
	if r.done {
		return nil
	}
	out := binary.AppendUvarint(nil, uint64(r.skip))
	return append(out, r.state...)
}

// decodeResume parses a cursor token back into a resume point.
func decodeResume(token []byte) (resume, error) {
	if len(token) == 0 {
		return resume{done: true}, nil
	}
	skip, n := binary.Uvarint(token)
	if n <= 0 || skip > 1<<20 {
		return resume{}, fmt.Errorf("%w: bad resume token", cursor.ErrInvalid)
	}
	r := resume{skip: int(skip)}
	if len(token) > n {
		r.state = append([]byte(nil), token[n:]...)
	}
	return r, nil
}

// Suggestions returns up to limit known partition key values of a projection
// matching the optional case-insensitive prefix, in lexical order. Backed by
// the catalog snapshot only; no store I/O.
func (e *Engine) Suggestions(projection, prefix string, limit int) ([]string, error) {
	snap := e.catalog.Load()
	if _, ok := snap.Projection(projection); !ok {
		return nil, &ErrInvalidPredicate{Reason: fmt.Sprintf("unknown projection %q", projection)}
	}
	if limit <= 0 {
		limit = 10
	}

	values := snap.Values(projection, 0)
	if prefix == "" {
		if len(values) > limit {
			values = values[:limit]
		}
		return values, nil
	}

	lower := strings.ToLower(prefix)
	out := make([]string, 0, limit)
	for _, v := range values {
		if strings.HasPrefix(strings.ToLower(v), lower) {
			out = append(out, v)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
