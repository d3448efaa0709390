package mocks

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

var _ driven.Embedder = (*MockEmbedder)(nil)

// MockEmbedder generates deterministic vectors from a text hash and records
// every call it receives.
type MockEmbedder struct {
	mu         sync.Mutex
	dimensions int
	model      string
	calls      [][]string
	purposes   []driven.EmbedPurpose
	failures   []error

	// EmbedFn, when set, replaces the default vector generation
	EmbedFn func(texts []string) ([][]float32, error)
}

// NewMockEmbedder creates a new MockEmbedder
func NewMockEmbedder(dimensions int) *MockEmbedder {
	return &MockEmbedder{
		dimensions: dimensions,
		model:      "mock-embedding-model",
	}
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string, purpose driven.EmbedPurpose) ([][]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	m.purposes = append(m.purposes, purpose)
	var fail error
	if len(m.failures) > 0 {
		fail = m.failures[0]
		m.failures = m.failures[1:]
	}
	fn := m.EmbedFn
	m.mu.Unlock()

	if fail != nil {
		return nil, fail
	}
	if fn != nil {
		return fn(texts)
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = m.Vector(text)
	}
	return result, nil
}

func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

func (m *MockEmbedder) Model() string {
	return m.model
}

func (m *MockEmbedder) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *MockEmbedder) Close() error {
	return nil
}

// Vector returns the deterministic embedding for text
func (m *MockEmbedder) Vector(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	embedding := make([]float32, m.dimensions)
	for i := range embedding {
		seed = seed*1103515245 + 12345
		embedding[i] = float32(seed%1000)/1000.0 + 0.001
	}
	return embedding
}

// Helper methods for testing

// FailNext makes the next n calls return a transient error.
func (m *MockEmbedder) FailNext(n int) {
	for i := 0; i < n; i++ {
		m.FailWith(fmt.Errorf("%w: mock embedder unavailable", domain.ErrTransient))
	}
}

// FailWith queues err to be returned by the next call.
func (m *MockEmbedder) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, err)
}

// Calls returns the texts of every Embed call, in order.
func (m *MockEmbedder) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// Purposes returns the purpose of every Embed call, in order.
func (m *MockEmbedder) Purposes() []driven.EmbedPurpose {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]driven.EmbedPurpose(nil), m.purposes...)
}

func (m *MockEmbedder) SetModel(model string) {
	m.model = model
}
