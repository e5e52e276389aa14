package catalog

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/scoutdex/scoutdex/predicate"
)

// DefaultHotThreshold is the partition row count above which a partition key
// is flagged hot and read through the bounded hot path.
const DefaultHotThreshold = 10_000

// Projection describes one denormalized view of the entity set.
type Projection struct {
	// Name is the projection (table) name. Unique within a snapshot.
	Name string

	// BaseAttr is the attribute whose value is the partition key.
	BaseAttr string

	// ClusterBy is the clustering attribute ordering rows within a
	// partition. The entity id is the implicit tie-breaker.
	ClusterBy string

	// Descending reverses the clustering order (e.g. newest-first series).
	Descending bool

	// Sentinel, when non-empty, fixes the partition key to a single value
	// (a global index). For sentinel projections the coverable predicate is
	// a PREFIX or EQ on ClusterBy, executed as a clustering range.
	Sentinel string

	// Default marks the fallback projection used when no predicate is
	// coverable. At most one projection may be the default.
	Default bool
}

// IsSentinel reports whether the projection is a fixed-partition global index.
func (p Projection) IsSentinel() bool { return p.Sentinel != "" }

// Covers reports whether the projection can serve the predicate as its base.
func (p Projection) Covers(pr predicate.Predicate) bool {
	if p.IsSentinel() {
		if pr.Attr != p.ClusterBy {
			return false
		}
		return pr.Op == predicate.OpPrefix || pr.Op == predicate.OpEQ
	}
	return pr.Attr == p.BaseAttr && pr.Op == predicate.OpEQ
}

// PartitionKey returns the partition key value the predicate selects on this
// projection: the sentinel for global indexes, the operand value otherwise.
func (p Projection) PartitionKey(pr predicate.Predicate) string {
	if p.IsSentinel() {
		return p.Sentinel
	}
	switch pr.Value.Kind {
	case predicate.KindString:
		return pr.Value.S
	case predicate.KindInt:
		return strconv.FormatInt(pr.Value.I64, 10)
	case predicate.KindFloat:
		return strconv.FormatFloat(pr.Value.F64, 'g', -1, 64)
	case predicate.KindBool:
		return strconv.FormatBool(pr.Value.B)
	default:
		return ""
	}
}

// Stats carries the refreshable cardinality statistics for all projections.
type Stats struct {
	// Counts maps projection name -> partition key value -> estimated rows.
	Counts map[string]map[string]int64 `json:"counts"`

	// TotalEntities is the estimated size of the full entity set.
	TotalEntities int64 `json:"total_entities"`

	// Cardinality maps projection name -> estimated distinct key count,
	// used as the selectivity fallback when a value has no counted rows.
	Cardinality map[string]int64 `json:"cardinality"`
}

// Snapshot is an immutable view of projections plus statistics.
// All methods are safe for concurrent use; a Snapshot never changes after
// construction.
type Snapshot struct {
	projections  []Projection
	byName       map[string]Projection
	defaultProj  string
	stats        Stats
	hotThreshold int64
}

// SnapshotOption configures snapshot construction.
type SnapshotOption func(*Snapshot)

// WithHotThreshold overrides DefaultHotThreshold.
func WithHotThreshold(rows int64) SnapshotOption {
	return func(s *Snapshot) {
		if rows > 0 {
			s.hotThreshold = rows
		}
	}
}

// NewSnapshot builds an immutable snapshot. Projections are kept in lexical
// name order so planning tie-breaks are reproducible.
func NewSnapshot(projections []Projection, stats Stats, optFns ...SnapshotOption) (*Snapshot, error) {
	if len(projections) == 0 {
		return nil, fmt.Errorf("catalog: no projections")
	}

	s := &Snapshot{
		projections:  make([]Projection, len(projections)),
		byName:       make(map[string]Projection, len(projections)),
		stats:        stats,
		hotThreshold: DefaultHotThreshold,
	}
	copy(s.projections, projections)
	sort.Slice(s.projections, func(i, j int) bool {
		return s.projections[i].Name < s.projections[j].Name
	})

	for _, p := range s.projections {
		if p.Name == "" || (p.BaseAttr == "" && !p.IsSentinel()) {
			return nil, fmt.Errorf("catalog: malformed projection %+v", p)
		}
		if _, dup := s.byName[p.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate projection %q", p.Name)
		}
		if p.IsSentinel() && p.ClusterBy == "" {
			return nil, fmt.Errorf("catalog: sentinel projection %q needs a clustering attribute", p.Name)
		}
		if p.Default {
			if s.defaultProj != "" {
				return nil, fmt.Errorf("catalog: multiple default projections (%q, %q)", s.defaultProj, p.Name)
			}
			s.defaultProj = p.Name
		}
		s.byName[p.Name] = p
	}

	for _, fn := range optFns {
		fn(s)
	}
	return s, nil
}

// Projections returns the projections in lexical name order.
// Callers must not mutate the returned slice.
func (s *Snapshot) Projections() []Projection { return s.projections }

// Projection looks up a projection by name.
func (s *Snapshot) Projection(name string) (Projection, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// Default returns the fallback projection, if one is declared.
func (s *Snapshot) Default() (Projection, bool) {
	if s.defaultProj == "" {
		return Projection{}, false
	}
	return s.byName[s.defaultProj], true
}

// TotalEntities returns the estimated entity set size (at least 1).
func (s *Snapshot) TotalEntities() int64 {
	if s.stats.TotalEntities < 1 {
		return 1
	}
	return s.stats.TotalEntities
}

// EstimatedCount returns the estimated row count for one partition key value
// and whether the value was present in the statistics.
func (s *Snapshot) EstimatedCount(projection, key string) (int64, bool) {
	values, ok := s.stats.Counts[projection]
	if !ok {
		return 0, false
	}
	n, ok := values[key]
	return n, ok
}

// Selectivity estimates the fraction of all entities under one partition key,
// in [0,1]. Values absent from the statistics degrade to a conservative
// 1/cardinality default; this never fails.
func (s *Snapshot) Selectivity(projection, key string) float64 {
	total := float64(s.TotalEntities())
	if n, ok := s.EstimatedCount(projection, key); ok {
		f := float64(n) / total
		if f < 0 {
			return 0
		}
		if f > 1 {
			return 1
		}
		return f
	}

	card := s.stats.Cardinality[projection]
	if card < 1 {
		card = 1
	}
	f := 1 / float64(card)
	if f > 1 {
		return 1
	}
	return f
}

// IsHot reports whether the partition key's estimated size exceeds the hot
// threshold. Unknown values are not hot.
func (s *Snapshot) IsHot(projection, key string) bool {
	n, ok := s.EstimatedCount(projection, key)
	return ok && n > s.hotThreshold
}

// HotThreshold returns the configured hot-partition row threshold.
func (s *Snapshot) HotThreshold() int64 { return s.hotThreshold }

// Values returns up to limit known partition key values for a projection in
// lexical order. Used for search suggestions.
func (s *Snapshot) Values(projection string, limit int) []string {
	values, ok := s.stats.Counts[projection]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(values))
	for v := range values {
		out = append(out, v)
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
