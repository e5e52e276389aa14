package scoutdex

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scoutdex/scoutdex/catalog"
	"github.com/scoutdex/scoutdex/model"
	"github.com/scoutdex/scoutdex/planner"
	"github.com/scoutdex/scoutdex/predicate"
	"github.com/scoutdex/scoutdex/store"
)

// TestReadBranchSkipSpansPages resumes a branch with a skip larger than the
// match count of the first replayed page. The remainder must carry into the
// following pages; resetting it would re-deliver already-returned matches.
func TestReadBranchSkipSpansPages(t *testing.T) {
	proj := catalog.Projection{Name: "players_by_position", BaseAttr: "position", ClusterBy: "name_lower"}
	snap, err := catalog.NewSnapshot([]catalog.Projection{proj}, catalog.Stats{})
	require.NoError(t, err)
	cat, err := catalog.New(snap)
	require.NoError(t, err)

	// 14 rows, one store page of 6 rows each at limit 2 with the default
	// over-fetch of 3. Matches sit at clustering positions 5, 11 and 13,
	// so page one holds a single match.
	rows := make([]model.Entity, 14)
	for i := range rows {
		nat := "Z"
		switch i {
		case 5, 11, 13:
			nat = "Q"
		}
		rows[i] = model.Entity{
			ID: fmt.Sprintf("m%02d", i),
			Fields: predicate.Document{
				"name_lower":  predicate.String(fmt.Sprintf("n%02d", i)),
				"position":    predicate.String("M"),
				"nationality": predicate.String(nat),
			},
		}
	}
	mem := store.NewMemoryStore()
	mem.LoadPartition(proj.Name, "M", "name_lower", false, rows)

	eng, err := New(cat, mem)
	require.NoError(t, err)

	cand := planner.Candidate{
		Projection: proj,
		Predicate:  predicate.Eq("position", predicate.String("M")),
		Key:        "M",
	}
	filter := predicate.Set{predicate.Eq("nationality", predicate.String("Q"))}

	items, next, err := eng.readBranch(context.Background(), cand, filter, 2, resume{skip: 2})
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "m13", items[0].ID)
	assert.True(t, next.done)
}
