package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven/mocks"
)

func page(links ...string) string {
	body := "<html><body><p>content</p>"
	for _, l := range links {
		body += fmt.Sprintf(`<a href="%s">link</a>`, l)
	}
	return body + "</body></html>"
}

func newSite() *mocks.MockFetcher {
	f := mocks.NewMockFetcher()
	f.AddHTML("https://example.com/", page("/a", "/b", "https://other.com/x", "/logo.png"))
	f.AddHTML("https://example.com/a", page("/", "/c", "/a#top"))
	f.AddHTML("https://example.com/b", page("/c", "/d?x=1"))
	f.AddHTML("https://example.com/c", page("/b"))
	f.AddHTML("https://example.com/d", page())
	return f
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Delay = 0
	return cfg
}

func TestCrawler_BreadthFirstOrder(t *testing.T) {
	f := newSite()
	c := New(f, testConfig())

	var order []string
	stats, err := c.Crawl(context.Background(), "https://example.com", 100, func(ctx context.Context, p *domain.Page) error {
		order = append(order, p.URL)
		return nil
	})

	require.NoError(t, err)
	want := []string{
		"https://example.com/",
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/c",
		"https://example.com/d",
	}
	assert.Equal(t, want, stats.Visited)
	assert.Equal(t, want, order)
	assert.Equal(t, 5, stats.Fetched)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, want, f.Fetched(), "each URL fetched exactly once")
}

func TestCrawler_MaxPagesIsHardCap(t *testing.T) {
	for _, max := range []int{1, 2, 3, 5, 10} {
		t.Run(fmt.Sprint(max), func(t *testing.T) {
			f := newSite()
			c := New(f, testConfig())

			stats, err := c.Crawl(context.Background(), "https://example.com/", max, nil)
			require.NoError(t, err)

			assert.Len(t, stats.Visited, min(max, 5))
			assert.Len(t, f.Fetched(), min(max, 5))
		})
	}
}

func TestCrawler_FailedPagesAreSkipped(t *testing.T) {
	f := newSite()
	f.Fail("https://example.com/a", errors.New("connection reset"))
	c := New(f, testConfig())

	stats, err := c.Crawl(context.Background(), "https://example.com/", 100, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, stats.Failures, "https://example.com/a")
	assert.Contains(t, stats.Visited, "https://example.com/a")
	// /c is still reachable through /b
	assert.Contains(t, stats.Visited, "https://example.com/c")
}

func TestCrawler_FailedPageLinksNotFollowed(t *testing.T) {
	f := mocks.NewMockFetcher()
	f.AddHTML("https://example.com/", page("/broken"))
	f.AddHTML("https://example.com/only-from-broken", page())
	f.Fail("https://example.com/broken", &domain.StatusError{Service: "site", StatusCode: 500})
	c := New(f, testConfig())

	stats, err := c.Crawl(context.Background(), "https://example.com/", 100, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/", "https://example.com/broken"}, stats.Visited)
}

func TestCrawler_NonHTMLPagesNotParsedForLinks(t *testing.T) {
	f := mocks.NewMockFetcher()
	f.Add("https://example.com/", "text/plain", `<a href="/hidden">not a link</a>`)
	c := New(f, testConfig())

	stats, err := c.Crawl(context.Background(), "https://example.com/", 10, nil)

	require.NoError(t, err)
	assert.Len(t, stats.Visited, 1)
}

func TestCrawler_VisitorErrorStopsCrawl(t *testing.T) {
	f := newSite()
	c := New(f, testConfig())
	boom := errors.New("store down")

	stats, err := c.Crawl(context.Background(), "https://example.com/", 100, func(ctx context.Context, p *domain.Page) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Len(t, stats.Visited, 1)
}

func TestCrawler_InvalidSeed(t *testing.T) {
	c := New(newSite(), testConfig())

	for _, seed := range []string{"", "example.com", "ftp://example.com", "http://", "::bad"} {
		_, err := c.Crawl(context.Background(), seed, 10, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, seed)
	}
}

func TestCrawler_PolitenessDelay(t *testing.T) {
	cfg := testConfig()
	cfg.Delay = 30 * time.Millisecond
	c := New(newSite(), cfg)

	start := time.Now()
	_, err := c.Crawl(context.Background(), "https://example.com/", 3, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestCrawler_PolitenessDelayFollowsSlowFetches(t *testing.T) {
	f := newSite()
	f.Latency = 50 * time.Millisecond
	cfg := testConfig()
	cfg.Delay = 30 * time.Millisecond
	c := New(f, cfg)

	_, err := c.Crawl(context.Background(), "https://example.com/", 3, nil)
	returned := time.Now()
	require.NoError(t, err)

	starts, ends := f.Timings()
	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(ends[i-1]), 30*time.Millisecond, "gap before fetch %d", i+1)
	}
	// no delay after the final fetch
	assert.Less(t, returned.Sub(ends[2]), 25*time.Millisecond)
}

func TestCrawler_RedirectsToSamePageVisitedOnce(t *testing.T) {
	f := mocks.NewMockFetcher()
	f.AddHTML("https://example.com/", page("/old", "/legacy"))
	f.AddHTML("https://example.com/new", page())
	f.Redirect("https://example.com/old", "https://example.com/new")
	f.Redirect("https://example.com/legacy", "https://example.com/new")
	c := New(f, testConfig())

	var pages []string
	stats, err := c.Crawl(context.Background(), "https://example.com/", 10, func(ctx context.Context, p *domain.Page) error {
		pages = append(pages, p.URL)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/", "https://example.com/new"}, pages)
	assert.Equal(t, 2, stats.Fetched)
	assert.Len(t, stats.Visited, 3)
}

func TestCrawler_RedirectedSeedAdoptsFinalOrigin(t *testing.T) {
	f := mocks.NewMockFetcher()
	f.AddHTML("https://example.com/", page("/a", "http://example.com/b"))
	f.AddHTML("https://example.com/a", page())
	f.Redirect("http://example.com/", "https://example.com/")
	c := New(f, testConfig())

	stats, err := c.Crawl(context.Background(), "http://example.com/", 10, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/", "https://example.com/a"}, stats.Visited)
}

func TestCrawler_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(newSite(), testConfig())

	_, err := c.Crawl(ctx, "https://example.com/", 10, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCrawler_ConcurrentRunsAreIndependent(t *testing.T) {
	c := New(newSite(), testConfig())
	done := make(chan *domain.CrawlStats, 2)

	for i := 0; i < 2; i++ {
		go func() {
			stats, _ := c.Crawl(context.Background(), "https://example.com/", 100, nil)
			done <- stats
		}()
	}

	for i := 0; i < 2; i++ {
		stats := <-done
		require.NotNil(t, stats)
		assert.Len(t, stats.Visited, 5)
	}
}
