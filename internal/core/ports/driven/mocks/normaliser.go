package mocks

import (
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// MockNormaliser is a mock implementation of Normaliser for testing
type MockNormaliser struct {
	SupportedTypesFn func() []string
	PriorityFn       func() int
	NormaliseFn      func(content string, mimeType string) string
}

func NewMockNormaliser() *MockNormaliser {
	return &MockNormaliser{}
}

func (m *MockNormaliser) Normalise(content string, mimeType string) string {
	if m.NormaliseFn != nil {
		return m.NormaliseFn(content, mimeType)
	}
	return content
}

func (m *MockNormaliser) SupportedTypes() []string {
	if m.SupportedTypesFn != nil {
		return m.SupportedTypesFn()
	}
	return []string{"text/plain", "text/html"}
}

func (m *MockNormaliser) Priority() int {
	if m.PriorityFn != nil {
		return m.PriorityFn()
	}
	return 100
}

var _ driven.Normaliser = (*MockNormaliser)(nil)
