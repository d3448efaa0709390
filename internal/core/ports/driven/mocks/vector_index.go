package mocks

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

var _ driven.VectorIndex = (*MockVectorIndex)(nil)

// Operation names used for call counting and failure injection
const (
	OpCreate   = "create"
	OpDescribe = "describe"
	OpUpsert   = "upsert"
	OpRetrieve = "retrieve"
	OpDelete   = "delete"
	OpSearch   = "search"
	OpHealth   = "health"
)

type mockCollection struct {
	schema  domain.Collection
	records map[string]domain.Record
}

// MockVectorIndex is an in-memory vector index with cosine scoring.
type MockVectorIndex struct {
	mu          sync.Mutex
	collections map[string]*mockCollection
	calls       map[string]int
	failures    map[string][]error
}

// NewMockVectorIndex creates a new MockVectorIndex
func NewMockVectorIndex() *MockVectorIndex {
	return &MockVectorIndex{
		collections: make(map[string]*mockCollection),
		calls:       make(map[string]int),
		failures:    make(map[string][]error),
	}
}

// record counts the call and pops a queued failure. Caller holds mu.
func (m *MockVectorIndex) record(op string) error {
	m.calls[op]++
	if q := m.failures[op]; len(q) > 0 {
		m.failures[op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *MockVectorIndex) CreateCollection(ctx context.Context, c domain.Collection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpCreate); err != nil {
		return err
	}
	if _, ok := m.collections[c.Name]; !ok {
		m.collections[c.Name] = &mockCollection{schema: c, records: make(map[string]domain.Record)}
	}
	return nil
}

func (m *MockVectorIndex) DescribeCollection(ctx context.Context, name string) (*domain.CollectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpDescribe); err != nil {
		return nil, err
	}
	c, ok := m.collections[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &domain.CollectionInfo{Collection: c.schema, PointCount: int64(len(c.records))}, nil
}

func (m *MockVectorIndex) Upsert(ctx context.Context, collection string, records []domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpUpsert); err != nil {
		return err
	}
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}
	for _, r := range records {
		if len(r.Vector) != c.schema.VectorSize {
			return &domain.SchemaMismatchError{Expected: c.schema.VectorSize, Got: len(r.Vector)}
		}
	}
	for _, r := range records {
		c.records[r.ID] = r
	}
	return nil
}

func (m *MockVectorIndex) Retrieve(ctx context.Context, collection string, ids []string) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpRetrieve); err != nil {
		return nil, err
	}
	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}
	var out []domain.Record
	for _, id := range ids {
		if r, ok := c.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockVectorIndex) Delete(ctx context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpDelete); err != nil {
		return err
	}
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}
	for _, id := range ids {
		delete(c.records, id)
	}
	return nil
}

func (m *MockVectorIndex) Search(ctx context.Context, collection string, vector []float32, limit int) ([]domain.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpSearch); err != nil {
		return nil, err
	}
	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s: %w", collection, domain.ErrNotFound)
	}

	results := make([]domain.SearchResult, 0, len(c.records))
	for _, r := range c.records {
		results = append(results, domain.SearchResult{
			ID:      r.ID,
			Score:   cosine(vector, r.Vector),
			Payload: r.Payload,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockVectorIndex) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record(OpHealth)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Helper methods for testing

// FailNext makes the next n calls of op return a transient error.
func (m *MockVectorIndex) FailNext(op string, n int) {
	for i := 0; i < n; i++ {
		m.FailWith(op, fmt.Errorf("%w: mock index %s failed", domain.ErrTransient, op))
	}
}

// FailWith queues err for the next call of op.
func (m *MockVectorIndex) FailWith(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = append(m.failures[op], err)
}

// Calls returns how many times op was invoked.
func (m *MockVectorIndex) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Records returns a copy of every record in a collection.
func (m *MockVectorIndex) Records(collection string) []domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil
	}
	out := make([]domain.Record, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Seed creates a collection directly, bypassing call counting.
func (m *MockVectorIndex) Seed(c domain.Collection, records ...domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.collections[c.Name]
	if !ok {
		mc = &mockCollection{schema: c, records: make(map[string]domain.Record)}
		m.collections[c.Name] = mc
	}
	for _, r := range records {
		mc.records[r.ID] = r
	}
}
