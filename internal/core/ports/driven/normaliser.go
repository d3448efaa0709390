package driven

import "github.com/custodia-labs/sercha-crawl/internal/core/domain"

// Normaliser turns raw page content into plain text.
type Normaliser interface {
	// Normalise transforms raw content into whitespace-collapsed plain text.
	// Returns an empty string when the content carries no text.
	Normalise(content string, mimeType string) string

	// SupportedTypes returns MIME types this normaliser handles.
	// Can include wildcards like "text/*" or specific types like "text/markdown".
	SupportedTypes() []string

	// Priority returns the normaliser priority (higher = more specific).
	//   50-89:  Format-specific (Markdown, HTML)
	//   1-9:    Fallback (raw text)
	Priority() int
}

// NormaliserRegistry manages content normalisers.
// When multiple normalisers match a MIME type, the highest priority one is used.
type NormaliserRegistry interface {
	// Get retrieves the best-matching normaliser for a MIME type, or nil.
	Get(mimeType string) Normaliser

	// Register registers a normaliser.
	Register(normaliser Normaliser)

	// List returns all registered MIME types.
	List() []string
}

// Chunker splits normalised text into word-aligned chunks
type Chunker interface {
	// Validate reports whether text is long enough to chunk
	Validate(text string) bool

	// Chunk splits text into windows of size words. scope namespaces the
	// chunk ids so identical input in the same scope yields identical ids.
	// Fails with domain.ErrValidation when Validate(text) is false.
	Chunk(scope, text string, size int) ([]domain.Chunk, error)
}
