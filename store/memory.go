package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/scoutdex/scoutdex/model"
	"github.com/scoutdex/scoutdex/predicate"
)

// MemoryStore is an in-memory Client backed by Go maps, suitable for tests
// and small embedded datasets. Rows within a partition are kept in clustering
// order; page state is a row offset.
type MemoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string][]model.Entity
	clusterBy  map[string]string
	descending map[string]bool

	failures map[string]error
	reads    []ReadRequest
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		partitions: make(map[string]map[string][]model.Entity),
		clusterBy:  make(map[string]string),
		descending: make(map[string]bool),
		failures:   make(map[string]error),
	}
}

// LoadPartition replaces one partition's rows, sorting them by the given
// clustering attribute (entity id tie-break), matching how the external
// store would return them.
func (m *MemoryStore) LoadPartition(projection, key, clusterAttr string, descending bool, rows []model.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := make([]model.Entity, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a := clusterString(sorted[i], clusterAttr)
		b := clusterString(sorted[j], clusterAttr)
		if a != b {
			if descending {
				return a > b
			}
			return a < b
		}
		return sorted[i].ID < sorted[j].ID
	})

	if m.partitions[projection] == nil {
		m.partitions[projection] = make(map[string][]model.Entity)
	}
	m.partitions[projection][key] = sorted
	m.clusterBy[projection] = clusterAttr
	m.descending[projection] = descending
}

// FailWith makes every read of the projection return err until cleared with
// a nil err. Used to simulate branch failures.
func (m *MemoryStore) FailWith(projection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, projection)
		return
	}
	m.failures[projection] = err
}

// Reads returns a copy of all requests seen so far, in order.
func (m *MemoryStore) Reads() []ReadRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ReadRequest, len(m.reads))
	copy(out, m.reads)
	return out
}

// ReadPartition implements Client.
func (m *MemoryStore) ReadPartition(ctx context.Context, req ReadRequest) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	m.mu.Lock()
	m.reads = append(m.reads, req)
	err := m.failures[req.Projection]
	m.mu.Unlock()
	if err != nil {
		return Page{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.partitions[req.Projection][req.Key]
	if req.Prefix != "" {
		clusterAttr := m.clusterBy[req.Projection]
		filtered := make([]model.Entity, 0, len(rows))
		for _, r := range rows {
			if strings.HasPrefix(strings.ToLower(rawString(r, clusterAttr)), strings.ToLower(req.Prefix)) {
				filtered = append(filtered, r)
			}
		}
		rows = filtered
	}

	offset := 0
	if len(req.PageState) > 0 {
		v, n := binary.Uvarint(req.PageState)
		if n <= 0 {
			return Page{}, fmt.Errorf("memory store: malformed page state")
		}
		offset = int(v)
	}
	if offset >= len(rows) {
		return Page{}, nil
	}

	pageSize := int(req.PageSize)
	if pageSize <= 0 {
		pageSize = len(rows) - offset
	}
	end := offset + pageSize
	if end > len(rows) {
		end = len(rows)
	}

	page := Page{Rows: append([]model.Entity(nil), rows[offset:end]...)}
	if end < len(rows) {
		page.PageState = binary.AppendUvarint(nil, uint64(end))
	}
	return page, nil
}

func clusterString(e model.Entity, attr string) string {
	if attr == "" {
		return e.ID
	}
	v, ok := e.Fields[attr]
	if !ok {
		return ""
	}
	return v.Repr()
}

// rawString returns the clustering value without the Repr type tag, for
// prefix comparison against caller-supplied strings.
func rawString(e model.Entity, attr string) string {
	if attr == "" {
		return e.ID
	}
	v, ok := e.Fields[attr]
	if !ok || v.Kind != predicate.KindString {
		return ""
	}
	return v.S
}

var _ Client = (*MemoryStore)(nil)
