package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutdex/scoutdex/catalog"
	"github.com/scoutdex/scoutdex/predicate"
)

func testSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	snap, err := catalog.NewSnapshot([]catalog.Projection{
		{Name: "players_by_position", BaseAttr: "position", ClusterBy: "name_lower"},
		{Name: "players_by_nationality", BaseAttr: "nationality", ClusterBy: "name_lower"},
		{Name: "players_search_index", Sentinel: "all", ClusterBy: "name_lower", Default: true},
	}, catalog.Stats{
		Counts: map[string]map[string]int64{
			"players_by_position":    {"A": 100, "B": 900},
			"players_by_nationality": {"X": 5, "Y": 4000, "Z": 100},
		},
		TotalEntities: 4005,
		Cardinality: map[string]int64{
			"players_by_position":    2,
			"players_by_nationality": 3,
		},
	})
	require.NoError(t, err)
	return snap
}

func TestSelectSinglePredicate(t *testing.T) {
	snap := testSnapshot(t)

	set := predicate.Set{predicate.Eq("position", predicate.String("A"))}
	plan, err := Select(snap, set, false, 3)
	require.NoError(t, err)

	assert.Equal(t, StrategySingle, plan.Strategy)
	require.Len(t, plan.Base, 1)
	assert.Equal(t, "players_by_position", plan.Base[0].Projection.Name)
	assert.Equal(t, "A", plan.Base[0].Key)
	assert.Empty(t, plan.Residual)
	assert.False(t, plan.Unbounded)
}

func TestSelectLowestSelectivity(t *testing.T) {
	snap := testSnapshot(t)

	set := predicate.Set{
		predicate.Eq("position", predicate.String("A")),
		predicate.Eq("nationality", predicate.String("Y")),
	}
	plan, err := Select(snap, set, false, 3)
	require.NoError(t, err)

	assert.Equal(t, StrategyLowestSelectivity, plan.Strategy)
	require.Len(t, plan.Base, 1)
	assert.Equal(t, "players_by_position", plan.Base[0].Projection.Name)
	assert.Equal(t, "A", plan.Base[0].Key)
	require.Len(t, plan.Residual, 1)
	assert.Equal(t, "nationality", plan.Residual[0].Attr)
}

// The base candidate's selectivity must never exceed any alternative's.
func TestSelectBaseIsMostRestrictive(t *testing.T) {
	snap := testSnapshot(t)

	sets := []predicate.Set{
		{predicate.Eq("position", predicate.String("B")), predicate.Eq("nationality", predicate.String("X"))},
		{predicate.Eq("nationality", predicate.String("Y")), predicate.Eq("position", predicate.String("A"))},
		{predicate.Eq("position", predicate.String("B")), predicate.Eq("nationality", predicate.String("Z"))},
	}
	for _, set := range sets {
		plan, err := Select(snap, set, false, 3)
		require.NoError(t, err)
		require.Len(t, plan.Base, 1)

		base := plan.Base[0]
		for _, proj := range snap.Projections() {
			for _, pr := range set {
				if !proj.Covers(pr) {
					continue
				}
				alt := snap.Selectivity(proj.Name, proj.PartitionKey(pr))
				assert.LessOrEqual(t, base.Selectivity, alt,
					"base %s must be at least as selective as %s", base.Projection.Name, proj.Name)
			}
		}
	}
}

func TestSelectSentinelCoversPrefix(t *testing.T) {
	snap := testSnapshot(t)

	set := predicate.Set{predicate.Prefix("name_lower", "mes")}
	plan, err := Select(snap, set, false, 3)
	require.NoError(t, err)

	assert.Equal(t, StrategySingle, plan.Strategy)
	require.Len(t, plan.Base, 1)
	assert.Equal(t, "players_search_index", plan.Base[0].Projection.Name)
	assert.Equal(t, "all", plan.Base[0].Key)
}

func TestSelectScanFallback(t *testing.T) {
	snap := testSnapshot(t)

	set := predicate.Set{predicate.Range("age", predicate.Int(20), predicate.Int(30))}
	plan, err := Select(snap, set, false, 3)
	require.NoError(t, err)

	assert.Equal(t, StrategyScan, plan.Strategy)
	assert.True(t, plan.Unbounded)
	require.Len(t, plan.Base, 1)
	assert.Equal(t, "players_search_index", plan.Base[0].Projection.Name)
	assert.Equal(t, "all", plan.Base[0].Key)
	assert.Len(t, plan.Residual, 1)
}

func TestSelectScanWithoutDefault(t *testing.T) {
	snap, err := catalog.NewSnapshot([]catalog.Projection{
		{Name: "players_by_position", BaseAttr: "position"},
	}, catalog.Stats{TotalEntities: 10})
	require.NoError(t, err)

	set := predicate.Set{predicate.Range("age", predicate.Int(20), predicate.Null())}
	_, err = Select(snap, set, false, 3)
	assert.ErrorIs(t, err, ErrNoProjection)
}

func TestSelectFanOut(t *testing.T) {
	snap := testSnapshot(t)

	set := predicate.Set{
		predicate.Eq("position", predicate.String("A")),
		predicate.Eq("nationality", predicate.String("Y")),
		predicate.Prefix("name_lower", "mes"),
	}
	plan, err := Select(snap, set, true, 2)
	require.NoError(t, err)

	assert.Equal(t, StrategyFanOut, plan.Strategy)
	require.Len(t, plan.Base, 2)
	// Ranked by selectivity: position A (100/4005) beats name prefix and
	// nationality Y.
	assert.Equal(t, "players_by_position", plan.Base[0].Projection.Name)
	// The full set stays residual under fan-out.
	assert.Equal(t, set.Canonical(), plan.Residual)
}

func TestSelectFanOutSingleCandidateDegradesToSingle(t *testing.T) {
	snap := testSnapshot(t)

	set := predicate.Set{predicate.Eq("position", predicate.String("A"))}
	plan, err := Select(snap, set, true, 3)
	require.NoError(t, err)
	assert.Equal(t, StrategySingle, plan.Strategy)
}

func TestSelectTieBreaks(t *testing.T) {
	// Two coverable predicates with identical counts. The hot one loses the
	// tie; with hotness equal, lexical projection name wins.
	mk := func(hotThreshold int64) *catalog.Snapshot {
		snap, err := catalog.NewSnapshot([]catalog.Projection{
			{Name: "by_club", BaseAttr: "club"},
			{Name: "by_league", BaseAttr: "league"},
		}, catalog.Stats{
			Counts: map[string]map[string]int64{
				"by_club":   {"c1": 500},
				"by_league": {"l1": 500},
			},
			TotalEntities: 1000,
		}, catalog.WithHotThreshold(hotThreshold))
		require.NoError(t, err)
		return snap
	}
	set := predicate.Set{
		predicate.Eq("league", predicate.String("l1")),
		predicate.Eq("club", predicate.String("c1")),
	}

	plan, err := Select(mk(10_000), set, false, 3)
	require.NoError(t, err)
	assert.Equal(t, "by_club", plan.Base[0].Projection.Name, "lexical tie-break")

	// Lower the threshold so both are hot: lexical order still decides.
	plan, err = Select(mk(100), set, false, 3)
	require.NoError(t, err)
	assert.Equal(t, "by_club", plan.Base[0].Projection.Name)
}

func TestSelectDeterministic(t *testing.T) {
	snap := testSnapshot(t)
	a := predicate.Set{
		predicate.Eq("position", predicate.String("A")),
		predicate.Eq("nationality", predicate.String("Y")),
	}
	b := predicate.Set{a[1], a[0]}

	pa, err := Select(snap, a, false, 3)
	require.NoError(t, err)
	pb, err := Select(snap, b, false, 3)
	require.NoError(t, err)

	assert.Equal(t, pa.Strategy, pb.Strategy)
	assert.Equal(t, pa.Projections(), pb.Projections())
	assert.Equal(t, pa.Residual, pb.Residual)
}

func TestStrategyString(t *testing.T) {
	assert.Equal(t, "single", StrategySingle.String())
	assert.Equal(t, "lowest_selectivity", StrategyLowestSelectivity.String())
	assert.Equal(t, "scan", StrategyScan.String())
	assert.Equal(t, "fan_out", StrategyFanOut.String())
	assert.Equal(t, "browse", StrategyBrowse.String())
	assert.True(t, StrategyFanOut.Valid())
	assert.False(t, Strategy(0).Valid())
	assert.False(t, Strategy(99).Valid())
}
