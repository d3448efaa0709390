package normalisers

import (
	"testing"
)

type stubNormaliser struct {
	name     string
	types    []string
	priority int
}

func (m *stubNormaliser) Normalise(content string, mimeType string) string {
	return content + "-" + m.name
}

func (m *stubNormaliser) SupportedTypes() []string {
	return m.types
}

func (m *stubNormaliser) Priority() int {
	return m.priority
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubNormaliser{name: "test", types: []string{"text/plain"}, priority: 50})

	if n := r.Get("text/plain"); n == nil {
		t.Fatal("expected to find normaliser")
	}
	if n := r.Get("application/json"); n != nil {
		t.Error("expected nil for unregistered type")
	}
}

func TestRegistry_Get_PrioritySelection(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubNormaliser{name: "low", types: []string{"text/plain"}, priority: 10})
	r.Register(&stubNormaliser{name: "high", types: []string{"text/plain"}, priority: 90})
	r.Register(&stubNormaliser{name: "medium", types: []string{"text/plain"}, priority: 50})

	n := r.Get("text/plain")
	if n == nil {
		t.Fatal("expected to find normaliser")
	}
	if got := n.Normalise("test", "text/plain"); got != "test-high" {
		t.Errorf("expected high priority normaliser, got %s", got)
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubNormaliser{name: "n1", types: []string{"text/plain", "text/csv"}, priority: 50})
	r.Register(&stubNormaliser{name: "n2", types: []string{"text/html", "text/plain"}, priority: 50})

	types := r.List()
	expected := []string{"text/csv", "text/html", "text/plain"}
	if len(types) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, types)
	}
	for i, exp := range expected {
		if types[i] != exp {
			t.Errorf("expected type %s at index %d, got %s", exp, i, types[i])
		}
	}
}

func TestMatchesMIMEType(t *testing.T) {
	tests := []struct {
		name      string
		supported []string
		mimeType  string
		expected  bool
	}{
		{"exact match", []string{"text/plain"}, "text/plain", true},
		{"case insensitive", []string{"TEXT/HTML"}, "text/html", true},
		{"with charset", []string{"text/html"}, "text/html; charset=utf-8", true},
		{"wildcard subtype", []string{"text/*"}, "text/csv", true},
		{"wildcard no match", []string{"text/*"}, "image/png", false},
		{"universal wildcard", []string{"*/*"}, "anything/here", true},
		{"no match", []string{"text/plain"}, "text/html", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesMIMEType(tt.supported, tt.mimeType); got != tt.expected {
				t.Errorf("matchesMIMEType(%v, %s) = %v, want %v",
					tt.supported, tt.mimeType, got, tt.expected)
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		mimeType string
		want     string
	}{
		{"text/html; charset=utf-8", "*normalisers.HTMLNormaliser"},
		{"application/xhtml+xml", "*normalisers.HTMLNormaliser"},
		{"text/markdown", "*normalisers.MarkdownNormaliser"},
		{"text/plain", "*normalisers.PlaintextNormaliser"},
		{"text/csv", "*normalisers.PlaintextNormaliser"},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			n := r.Get(tt.mimeType)
			if n == nil {
				t.Fatal("expected a normaliser")
			}
			if got := typeName(n); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}

	if n := r.Get("image/png"); n != nil {
		t.Error("binary types should have no normaliser")
	}
}

func TestPlaintextNormaliser(t *testing.T) {
	n := &PlaintextNormaliser{}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple text", "hello world", "hello world"},
		{"line endings", "hello\r\nworld", "hello world"},
		{"runs", "  hello \t\n\n world  ", "hello world"},
		{"control bytes", "hel\x00lo\x07 world", "hello world"},
		{"empty", "   \n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalise(tt.input, "text/plain"); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestMarkdownNormaliser(t *testing.T) {
	n := &MarkdownNormaliser{}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"heading", "# Hello\nWorld", "Hello World"},
		{"emphasis", "some **bold** and `code`", "some bold and code"},
		{"list", "- one\n- two", "one two"},
		{"fence", "intro\n```go\nx := 1\n```\noutro", "intro x := 1 outro"},
		{"quote", "> quoted text", "quoted text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalise(tt.input, "text/markdown"); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}
