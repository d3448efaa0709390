// Package web provides the HTTP page fetcher used by the crawler.
package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Fetcher = (*Fetcher)(nil)

// DefaultUserAgent identifies the crawler to site operators
const DefaultUserAgent = "sercha-crawl/1.0 (+https://github.com/custodia-labs/sercha-crawl)"

// Config holds fetcher configuration
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
	MaxRedirects int
	Logger       *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		UserAgent:    DefaultUserAgent,
		Timeout:      10 * time.Second,
		MaxBodyBytes: 10 << 20,
		MaxRedirects: 5,
	}
}

// Fetcher retrieves pages over HTTP(S).
type Fetcher struct {
	client *http.Client
	config Config
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. Zero config fields take their defaults.
func NewFetcher(cfg Config) *Fetcher {
	def := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = def.MaxRedirects
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRedirects := cfg.MaxRedirects
	client := &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
	return &Fetcher{client: client, config: cfg, logger: logger}
}

// Fetch GETs url and returns the page. The returned URL is the final URL
// after redirects. Bodies beyond MaxBodyBytes are truncated.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*domain.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,text/markdown;q=0.9,*/*;q=0.1")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrTransient, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.StatusError{
			Service:    "fetch",
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrTransient, url, err)
	}

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	if final != url {
		f.logger.Debug("fetch redirected", "from", url, "to", final)
	}

	return &domain.Page{
		URL:         final,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
		FetchedAt:   time.Now().UTC(),
	}, nil
}
