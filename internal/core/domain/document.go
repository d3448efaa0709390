package domain

import (
	"strings"
	"time"
)

// Page is a fetched web page before normalisation
type Page struct {
	URL         string    `json:"url"`
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        string    `json:"-"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// IsHTML reports whether the page body is HTML markup
func (p *Page) IsHTML() bool {
	ct := strings.ToLower(p.ContentType)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}

// Document is the normalised text of one page
type Document struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Chunk is a contiguous, word-aligned slice of a normalised document.
// Chunks are immutable once created.
type Chunk struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Index     int    `json:"index"`
	WordCount int    `json:"word_count"`
	SourceURL string `json:"source_url,omitempty"`
}

// WithSource returns a copy of the chunk carrying its originating URL
func (c Chunk) WithSource(url string) Chunk {
	c.SourceURL = url
	return c
}

// CountWords returns the number of whitespace-delimited tokens in s
func CountWords(s string) int {
	return len(strings.Fields(s))
}
