package scoutdex

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/scoutdex/scoutdex/model"
	"github.com/scoutdex/scoutdex/planner"
)

// branchOut is one fan-out branch's read result.
type branchOut struct {
	items []model.Entity
	next  resume
	err   error
}

// runFanOut reads the planned projections concurrently and merges the union.
//
// Each branch accumulates up to limit residual-filtered rows; the union of
// branches therefore holds at least limit distinct entities as soon as any
// single branch fills up, at which point the remaining reads are cancelled.
// Merging walks branches in rank order with first-seen id dedup, so the
// result is deterministic for identical inputs. The full predicate set stays
// residual under fan-out: no single branch is authoritative for any of it.
//
// A failed branch degrades the response instead of failing it, unless every
// branch failed. Branches cancelled by an already-satisfied limit are not
// failures: their resume points simply do not advance.
//
// delivered carries the entity ids returned on earlier pages. Branches
// overlap under fan-out, so without it a branch that lags another would
// re-deliver entities the faster branch already surfaced. The returned slice
// is delivered extended with this page's ids; it travels in the cursor.
func (e *Engine) runFanOut(ctx context.Context, plan planner.Plan, limit int, resumes []resume, delivered []string, resp *model.SearchResponse, logger *Logger) ([]string, error) {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var satisfied atomic.Bool
	out := make([]branchOut, len(plan.Base))

	g := new(errgroup.Group)
	g.SetLimit(e.opts.fanOutConcurrency)
	for i, cand := range plan.Base {
		i, cand := i, cand
		g.Go(func() error {
			items, next, err := e.readBranch(ctx, cand, plan.Residual, limit, resumes[i])
			out[i] = branchOut{items: items, next: next, err: err}
			if err == nil && len(items) == limit {
				satisfied.Store(true)
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait() // branch outcomes travel through out, never through the group

	if parent.Err() != nil {
		return nil, parent.Err()
	}

	// Classify branches before merging. Cancelled-by-us branches stay at
	// their incoming resume point and are replayed by the next page.
	failed := 0
	var firstErr error
	alive := make([]bool, len(out))
	for i := range out {
		b := &out[i]
		switch {
		case b.err == nil:
			alive[i] = true
		case errors.Is(b.err, context.Canceled) && satisfied.Load():
			b.items = nil
			b.next = resumes[i]
		default:
			failed++
			if firstErr == nil {
				firstErr = b.err
			}
			logger.LogBranchFailure(ctx, plan.Base[i].Projection.Name, b.err)
			b.items = nil
			b.next = resumes[i]
		}
	}
	if failed == len(out) {
		return nil, firstErr
	}
	if failed > 0 {
		resp.Degraded = true
		e.metrics.RecordDegraded(failed)
	}

	// Merge in branch rank order, first entity id seen wins. Ids delivered
	// on earlier pages count as seen so no branch re-delivers them.
	merged := make([]model.Entity, 0, limit)
	consumed := make([]int, len(out))
	seen := make(map[string]struct{}, len(delivered)+limit)
	for _, id := range delivered {
		seen[id] = struct{}{}
	}
merge:
	for i := range out {
		for _, item := range out[i].items {
			consumed[i]++
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			merged = append(merged, item)
			if len(merged) == limit {
				break merge
			}
		}
	}

	// Advance each surviving branch past any leading run of rows that some
	// other branch already delivered. A resume point can only skip a prefix
	// of the branch's match stream, so the walk stops at the first unseen
	// row; anything seen beyond it is deduped when it resurfaces.
	for i := range out {
		if !alive[i] {
			continue
		}
		for consumed[i] < len(out[i].items) {
			if _, dup := seen[out[i].items[consumed[i]].ID]; !dup {
				break
			}
			consumed[i]++
		}
	}

	// Branches whose items were only partially consumed rewind to their
	// incoming resume point plus the consumed count, so unreturned rows
	// reappear on the next page.
	for i := range out {
		switch {
		case !alive[i]:
			resumes[i] = out[i].next
		case consumed[i] == len(out[i].items):
			resumes[i] = out[i].next
		default:
			resumes[i] = resume{
				state: resumes[i].state,
				skip:  resumes[i].skip + consumed[i],
			}
		}
	}

	resp.Items = merged
	for _, item := range merged {
		delivered = append(delivered, item.ID)
	}
	for _, r := range resumes {
		if !r.done {
			resp.HasMore = true
			break
		}
	}
	return delivered, nil
}
