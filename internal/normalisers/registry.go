package normalisers

import (
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-crawl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry implements NormaliserRegistry with priority-based selection.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty normaliser registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry creates a registry with the HTML, Markdown and plaintext
// normalisers. Plaintext is the catch-all fallback.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&PlaintextNormaliser{})
	r.Register(&MarkdownNormaliser{})
	r.Register(&HTMLNormaliser{})
	return r
}

// Register adds a normaliser. Registration order breaks priority ties.
func (r *Registry) Register(normaliser driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.normalisers = append(r.normalisers, normaliser)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// Get returns the highest-priority normaliser for mimeType, or nil.
func (r *Registry) Get(mimeType string) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.normalisers {
		if matchesMIMEType(n.SupportedTypes(), mimeType) {
			return n
		}
	}
	return nil
}

// List returns all registered MIME types, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var types []string
	for _, n := range r.normalisers {
		for _, t := range n.SupportedTypes() {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				types = append(types, t)
			}
		}
	}
	sort.Strings(types)
	return types
}

// matchesMIMEType checks mimeType against supported types, ignoring
// parameters such as charset. Supports "text/*" and "*/*".
func matchesMIMEType(supportedTypes []string, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.IndexByte(mimeType, ';'); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	for _, supported := range supportedTypes {
		supported = strings.ToLower(strings.TrimSpace(supported))
		switch {
		case supported == "*/*", supported == mimeType:
			return true
		case strings.HasSuffix(supported, "/*") &&
			strings.HasPrefix(mimeType, strings.TrimSuffix(supported, "*")):
			return true
		}
	}
	return false
}

// PlaintextNormaliser handles plain text and acts as the fallback.
type PlaintextNormaliser struct{}

func (n *PlaintextNormaliser) Normalise(content string, mimeType string) string {
	return CollapseWhitespace(content)
}

func (n *PlaintextNormaliser) SupportedTypes() []string {
	return []string{"text/plain", "text/*"}
}

func (n *PlaintextNormaliser) Priority() int {
	return 1
}

// MarkdownNormaliser strips the most common Markdown syntax.
type MarkdownNormaliser struct{}

func (n *MarkdownNormaliser) Normalise(content string, mimeType string) string {
	lines := strings.Split(Sanitize(content), "\n")
	inFence := false
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if !inFence {
			trimmed = strings.TrimLeft(trimmed, "#>")
			trimmed = strings.TrimPrefix(strings.TrimSpace(trimmed), "- ")
			trimmed = strings.TrimPrefix(trimmed, "* ")
			trimmed = markdownEmphasis.Replace(trimmed)
		}
		kept = append(kept, trimmed)
	}
	return CollapseWhitespace(strings.Join(kept, "\n"))
}

var markdownEmphasis = strings.NewReplacer("**", "", "__", "", "`", "")

func (n *MarkdownNormaliser) SupportedTypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (n *MarkdownNormaliser) Priority() int {
	return 50
}
