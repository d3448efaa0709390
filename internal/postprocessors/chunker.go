// Package postprocessors turns normalised document text into chunks.
package postprocessors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-crawl/internal/core/domain"
	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Chunker = (*Chunker)(nil)

// DefaultMinWords is the fewest words a document may have and still be chunked
const DefaultMinWords = 10

// DefaultChunkSize is the default window size in words
const DefaultChunkSize = 500

// ChunkConfig configures the chunker behavior.
type ChunkConfig struct {
	// MinWords is the validation threshold
	MinWords int

	// Namespace seeds deterministic chunk ids
	Namespace uuid.UUID
}

// DefaultChunkConfig returns sensible defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MinWords:  DefaultMinWords,
		Namespace: uuid.NameSpaceURL,
	}
}

// Chunker splits text into fixed-size word windows.
type Chunker struct {
	config ChunkConfig
}

// NewChunker creates a new chunker with the given config.
func NewChunker(config ChunkConfig) *Chunker {
	if config.MinWords <= 0 {
		config.MinWords = DefaultMinWords
	}
	if config.Namespace == uuid.Nil {
		config.Namespace = uuid.NameSpaceURL
	}
	return &Chunker{config: config}
}

// Validate reports whether text has at least MinWords words.
func (c *Chunker) Validate(text string) bool {
	return len(strings.Fields(text)) >= c.config.MinWords
}

// Chunk splits text into windows of size words. Ids are derived from
// (scope, index), so identical input in the same scope yields identical ids.
func (c *Chunker) Chunk(scope, text string, size int) ([]domain.Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, size)
	}
	words := strings.Fields(text)
	if len(words) < c.config.MinWords {
		return nil, fmt.Errorf("%w: text has %d words, need at least %d",
			domain.ErrValidation, len(words), c.config.MinWords)
	}

	windows := splitFields(words, size)
	chunks := make([]domain.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = domain.Chunk{
			ID:        c.ChunkID(scope, i),
			Text:      strings.Join(w, " "),
			Index:     i,
			WordCount: len(w),
		}
	}
	return chunks, nil
}

// ChunkID returns the deterministic id of chunk index within scope
func (c *Chunker) ChunkID(scope string, index int) string {
	return uuid.NewSHA1(c.config.Namespace, []byte(scope+"#"+strconv.Itoa(index))).String()
}

// SplitWords groups the whitespace-delimited words of text into windows of
// size words; the last window may be shorter. No validation is applied.
func SplitWords(text string, size int) []string {
	if size <= 0 {
		return nil
	}
	windows := splitFields(strings.Fields(text), size)
	out := make([]string, len(windows))
	for i, w := range windows {
		out[i] = strings.Join(w, " ")
	}
	return out
}

func splitFields(words []string, size int) [][]string {
	var windows [][]string
	for start := 0; start < len(words); start += size {
		end := min(start+size, len(words))
		windows = append(windows, words[start:end])
	}
	return windows
}
