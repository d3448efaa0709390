package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

var _ driven.Fetcher = (*MockFetcher)(nil)

// MockFetcher serves canned pages from a URL map. Unknown URLs return a 404
// StatusError.
type MockFetcher struct {
	mu        sync.Mutex
	pages     map[string]*domain.Page
	errs      map[string]error
	redirects map[string]string
	fetched   []string
	starts    []time.Time
	ends      []time.Time

	// Latency is slept by every Fetch call
	Latency time.Duration
}

// NewMockFetcher creates an empty MockFetcher
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		pages:     make(map[string]*domain.Page),
		errs:      make(map[string]error),
		redirects: make(map[string]string),
	}
}

// AddHTML registers an HTML page
func (m *MockFetcher) AddHTML(url, body string) {
	m.Add(url, "text/html; charset=utf-8", body)
}

// Add registers a page with an explicit content type
func (m *MockFetcher) Add(url, contentType, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[url] = &domain.Page{URL: url, StatusCode: 200, ContentType: contentType, Body: body}
}

// Fail makes fetching url return err
func (m *MockFetcher) Fail(url string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[url] = err
}

// Redirect makes fetching from return the page registered at to
func (m *MockFetcher) Redirect(from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirects[from] = to
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*domain.Page, error) {
	m.mu.Lock()
	m.fetched = append(m.fetched, url)
	m.starts = append(m.starts, time.Now())
	latency := m.Latency
	m.mu.Unlock()

	time.Sleep(latency)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ends = append(m.ends, time.Now())

	if err, ok := m.errs[url]; ok {
		return nil, err
	}
	if to, ok := m.redirects[url]; ok {
		url = to
	}
	p, ok := m.pages[url]
	if !ok {
		return nil, &domain.StatusError{Service: "mock", StatusCode: 404}
	}
	cp := *p
	cp.FetchedAt = time.Now()
	return &cp, nil
}

// Timings returns the start and end time of every Fetch call, in order
func (m *MockFetcher) Timings() (starts, ends []time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.starts...), append([]time.Time(nil), m.ends...)
}

// Fetched returns every URL requested, in order
func (m *MockFetcher) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetched...)
}
