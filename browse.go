package scoutdex

import (
	"context"
	"fmt"

	"github.com/scoutdex/scoutdex/cursor"
	"github.com/scoutdex/scoutdex/model"
	"github.com/scoutdex/scoutdex/planner"
	"github.com/scoutdex/scoutdex/predicate"
)

// Browse pages one projection partition in its clustering order, without any
// predicate planning. Used for per-key listings such as time series
// partitions stored newest-first.
//
// Browse cursors are bound to the projection and key they were minted for,
// same as search cursors are bound to their predicate set.
func (e *Engine) Browse(ctx context.Context, req model.BrowseRequest) (*model.BrowsePage, error) {
	start := e.opts.clock()
	page, err := e.browse(ctx, req)
	e.metrics.RecordBrowse(e.opts.clock().Sub(start), err)
	return page, err
}

func (e *Engine) browse(ctx context.Context, req model.BrowseRequest) (*model.BrowsePage, error) {
	limit, err := resolveLimit(req.Limit)
	if err != nil {
		return nil, err
	}

	snap := e.catalog.Load()
	proj, ok := snap.Projection(req.Projection)
	if !ok {
		return nil, &ErrInvalidPredicate{Reason: fmt.Sprintf("unknown projection %q", req.Projection)}
	}
	key := req.Key
	if proj.IsSentinel() {
		key = proj.Sentinel
	} else if key == "" {
		return nil, &ErrInvalidPredicate{Reason: "browse requires a partition key"}
	}

	digest := browseDigest(req.Projection, key)

	res := resume{}
	if req.Cursor != "" {
		st, err := cursor.Decode(req.Cursor, digest)
		if err != nil {
			return nil, translateError(err)
		}
		if planner.Strategy(st.Strategy) != planner.StrategyBrowse ||
			len(st.Projections) != 1 || st.Projections[0] != proj.Name {
			return nil, fmt.Errorf("%w: not a browse cursor for %q", ErrInvalidCursor, proj.Name)
		}
		res, err = decodeResume(st.Tokens[0])
		if err != nil {
			return nil, translateError(err)
		}
	}

	cand := planner.Candidate{
		Projection: proj,
		Key:        key,
		Hot:        snap.IsHot(proj.Name, key),
	}
	items, next, err := e.readBranch(ctx, cand, nil, limit, res)
	if err != nil {
		e.logger.LogBrowse(ctx, proj.Name, key, 0, err)
		return nil, translateError(err)
	}
	e.logger.LogBrowse(ctx, proj.Name, key, len(items), nil)

	page := &model.BrowsePage{Items: items, HasMore: !next.done}
	if page.HasMore {
		token, err := cursor.Encode(cursor.State{
			Strategy:    uint8(planner.StrategyBrowse),
			Digest:      digest,
			Projections: []string{proj.Name},
			Tokens:      [][]byte{encodeResume(next)},
		})
		if err != nil {
			return nil, fmt.Errorf("scoutdex: encoding cursor: %w", err)
		}
		page.NextCursor = token
	}
	return page, nil
}

// browseDigest binds a browse cursor to its projection and key the way a
// search cursor is bound to its predicate set.
func browseDigest(projection, key string) uint32 {
	return cursor.Digest(predicate.Set{predicate.Eq(projection, predicate.String(key))})
}
