// Package crawler walks a single site breadth-first within a page budget.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-crawl/internal/retry"
)

// Config holds crawler configuration
type Config struct {
	// MaxPages is the default page budget when Crawl is given none
	MaxPages int

	// Delay is the politeness pause between the end of one fetch and the
	// start of the next
	Delay time.Duration

	// StripQuery treats URLs differing only by query string as one page
	StripQuery bool

	// Denylist of path extensions; nil uses DefaultDenylist
	Denylist []string

	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxPages:   100,
		Delay:      200 * time.Millisecond,
		StripQuery: true,
	}
}

// Visitor receives every successfully fetched page in visitation order.
// Returning an error stops the crawl.
type Visitor func(ctx context.Context, page *domain.Page) error

// Crawler performs bounded breadth-first traversals. It holds no per-run
// state, so one Crawler may serve concurrent Crawl calls.
type Crawler struct {
	fetcher driven.Fetcher
	links   *LinkExtractor
	config  Config
	logger  *slog.Logger
}

// New creates a Crawler
func New(fetcher driven.Fetcher, cfg Config) *Crawler {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultConfig().MaxPages
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		fetcher: fetcher,
		links:   NewLinkExtractor(cfg.Denylist, cfg.StripQuery),
		config:  cfg,
		logger:  logger,
	}
}

// run is the state of one traversal
type run struct {
	origin  string
	queue   []string
	seen    map[string]bool
	visited []string
}

func (r *run) enqueue(link string) {
	if r.seen[link] {
		return
	}
	r.seen[link] = true
	r.queue = append(r.queue, link)
}

// ValidateSeed checks that seed is an absolute http(s) URL with a host
func ValidateSeed(seed string) (*url.URL, error) {
	u, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed URL %q: %v", domain.ErrInvalidInput, seed, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return nil, fmt.Errorf("%w: URL must be absolute http(s): %q", domain.ErrInvalidInput, seed)
	}
	return u, nil
}

// Crawl visits at most maxPages same-origin pages starting at seed.
// maxPages <= 0 uses the configured default. Failed fetches count as visited,
// are logged and skipped; their links are never followed. A page reached
// through a redirect is handed to visit only once, under its final URL.
func (c *Crawler) Crawl(ctx context.Context, seed string, maxPages int, visit Visitor) (*domain.CrawlStats, error) {
	seedURL, err := ValidateSeed(seed)
	if err != nil {
		return nil, err
	}
	if maxPages <= 0 {
		maxPages = c.config.MaxPages
	}

	start := c.links.Normalize(nil, seedURL.String())
	r := &run{
		origin: Origin(seedURL),
		seen:   make(map[string]bool),
	}
	r.enqueue(start)

	stats := &domain.CrawlStats{Failures: make(map[string]string)}
	for len(r.queue) > 0 && len(r.visited) < maxPages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if len(r.visited) > 0 {
			if err := retry.Sleep(ctx, c.config.Delay); err != nil {
				return stats, err
			}
		}

		current := r.queue[0]
		r.queue = r.queue[1:]
		r.visited = append(r.visited, current)
		stats.Visited = r.visited

		c.logger.Info("fetching page", "url", current, "page", len(r.visited), "max_pages", maxPages)
		page, err := c.fetcher.Fetch(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			stats.Failures[current] = err.Error()
			c.logger.Warn("skipping page", "url", current, "error", err)
			continue
		}

		if final := c.links.Normalize(nil, page.URL); final != "" && final != current {
			if r.seen[final] {
				c.logger.Info("skipping redirect to known page", "url", current, "final_url", final)
				continue
			}
			r.seen[final] = true
			// a redirected seed (http to https, apex to www) defines the site
			if len(r.visited) == 1 {
				if u, perr := url.Parse(final); perr == nil {
					r.origin = Origin(u)
				}
			}
		}
		stats.Fetched++

		if page.IsHTML() {
			base := page.URL
			if base == "" {
				base = current
			}
			for _, link := range c.links.Extract(base, page.Body) {
				if c.links.Allowed(r.origin, link) {
					r.enqueue(link)
				}
			}
		}

		if visit != nil {
			if err := visit(ctx, page); err != nil {
				return stats, err
			}
		}
	}

	c.logger.Info("crawl finished",
		"seed", seed,
		"visited", len(r.visited),
		"fetched", stats.Fetched,
		"failed", stats.Failed)
	return stats, nil
}
