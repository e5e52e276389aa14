// Package planner turns a predicate set plus a catalog snapshot into an
// execution plan: which projection(s) to read, which predicate anchors the
// partition key, and which predicates remain to be filtered in process.
//
// Plans are pure functions of their inputs. The same snapshot and the same
// predicate set always produce the same plan, so pagination can rebuild the
// plan from a cursor without persisting it server-side.
package planner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/scoutdex/scoutdex/catalog"
	"github.com/scoutdex/scoutdex/predicate"
)

// ErrNoProjection is returned when no predicate is coverable and the catalog
// declares no usable fallback projection.
var ErrNoProjection = errors.New("planner: no coverable predicate and no default projection")

// Strategy is the closed set of execution strategies. Cursors carry the tag
// so a continuation resumes on the same path it started on.
type Strategy uint8

const (
	// StrategySingle reads one projection chosen by the only coverable
	// predicate in the request.
	StrategySingle Strategy = iota + 1

	// StrategyLowestSelectivity reads the projection whose coverable
	// predicate has the lowest estimated selectivity; the rest of the set
	// is filtered in process.
	StrategyLowestSelectivity

	// StrategyScan falls back to the default projection with the whole
	// predicate set residual. Flagged unbounded for observability.
	StrategyScan

	// StrategyFanOut reads several projections concurrently and merges the
	// deduplicated union.
	StrategyFanOut

	// StrategyBrowse pages a single partition in clustering order without
	// predicate planning.
	StrategyBrowse
)

// String implements fmt.Stringer.
func (s Strategy) String() string {
	switch s {
	case StrategySingle:
		return "single"
	case StrategyLowestSelectivity:
		return "lowest_selectivity"
	case StrategyScan:
		return "scan"
	case StrategyFanOut:
		return "fan_out"
	case StrategyBrowse:
		return "browse"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// Valid reports whether the tag is a known strategy. Used when decoding the
// strategy byte out of a cursor.
func (s Strategy) Valid() bool {
	return s >= StrategySingle && s <= StrategyBrowse
}

// Candidate binds one coverable predicate to the projection that covers it.
type Candidate struct {
	Projection  catalog.Projection
	Predicate   predicate.Predicate
	Key         string
	Selectivity float64
	Hot         bool
}

// Plan is the planner's output. Base holds one candidate for the single,
// lowest-selectivity and scan strategies, and up to the fan-out width for
// StrategyFanOut, in deterministic rank order.
type Plan struct {
	Strategy  Strategy
	Base      []Candidate
	Residual  predicate.Set
	Unbounded bool
}

// Projections returns the base projection names in rank order.
func (p Plan) Projections() []string {
	out := make([]string, len(p.Base))
	for i, c := range p.Base {
		out[i] = c.Projection.Name
	}
	return out
}

// Select plans the predicate set against the snapshot.
//
// The ladder: exactly one coverable predicate reads its projection directly;
// several coverable predicates pick the lowest estimated selectivity as the
// base and demote the rest to residuals; none falls back to the default
// projection as an unbounded scan. Exhaustive requests with at least two
// candidates fan out over the top fanOutWidth projections instead, keeping
// the full predicate set residual because no single branch is authoritative.
//
// Ties on selectivity prefer the non-hot candidate, then lexical projection
// name, then predicate representation, so planning is reproducible.
func Select(snap *catalog.Snapshot, set predicate.Set, exhaustive bool, fanOutWidth int) (Plan, error) {
	cands := candidates(snap, set)

	if exhaustive && len(cands) >= 2 {
		if fanOutWidth < 2 {
			fanOutWidth = 2
		}
		if len(cands) > fanOutWidth {
			cands = cands[:fanOutWidth]
		}
		return Plan{
			Strategy: StrategyFanOut,
			Base:     cands,
			Residual: set.Canonical(),
		}, nil
	}

	switch len(cands) {
	case 0:
		return scanPlan(snap, set)
	case 1:
		return Plan{
			Strategy: StrategySingle,
			Base:     cands[:1],
			Residual: set.Without(cands[0].Predicate).Canonical(),
		}, nil
	default:
		return Plan{
			Strategy: StrategyLowestSelectivity,
			Base:     cands[:1],
			Residual: set.Without(cands[0].Predicate).Canonical(),
		}, nil
	}
}

// candidates enumerates every (projection, predicate) pair the snapshot can
// cover, ranked by selectivity with the documented tie-breaks.
func candidates(snap *catalog.Snapshot, set predicate.Set) []Candidate {
	var cands []Candidate
	for _, proj := range snap.Projections() {
		for _, pr := range set {
			if !proj.Covers(pr) {
				continue
			}
			key := proj.PartitionKey(pr)
			cands = append(cands, Candidate{
				Projection:  proj,
				Predicate:   pr,
				Key:         key,
				Selectivity: snap.Selectivity(proj.Name, key),
				Hot:         snap.IsHot(proj.Name, key),
			})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Selectivity != b.Selectivity {
			return a.Selectivity < b.Selectivity
		}
		if a.Hot != b.Hot {
			return !a.Hot
		}
		if a.Projection.Name != b.Projection.Name {
			return a.Projection.Name < b.Projection.Name
		}
		return a.Predicate.Repr() < b.Predicate.Repr()
	})
	return cands
}

func scanPlan(snap *catalog.Snapshot, set predicate.Set) (Plan, error) {
	def, ok := snap.Default()
	if !ok || !def.IsSentinel() {
		return Plan{}, ErrNoProjection
	}
	return Plan{
		Strategy: StrategyScan,
		Base: []Candidate{{
			Projection:  def,
			Key:         def.Sentinel,
			Selectivity: 1,
			Hot:         snap.IsHot(def.Name, def.Sentinel),
		}},
		Residual:  set.Canonical(),
		Unbounded: true,
	}, nil
}
