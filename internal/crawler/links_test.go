package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func TestLinkExtractor_Normalize(t *testing.T) {
	base := mustParse(t, "https://example.com/docs/intro")

	tests := []struct {
		name   string
		strict bool
		raw    string
		want   string
	}{
		{"relative", true, "next", "https://example.com/docs/next"},
		{"root relative", true, "/about", "https://example.com/about"},
		{"fragment stripped", true, "/about#team", "https://example.com/about"},
		{"query stripped in strict mode", true, "/search?q=go", "https://example.com/search"},
		{"query kept in lenient mode", false, "/search?q=go#top", "https://example.com/search?q=go"},
		{"fragment only", true, "#section", ""},
		{"mailto", true, "mailto:me@example.com", ""},
		{"javascript", true, "javascript:void(0)", ""},
		{"default port dropped", true, "https://EXAMPLE.com:443/x", "https://example.com/x"},
		{"empty path", true, "https://example.com", "https://example.com/"},
		{"parent path", true, "../guide/", "https://example.com/guide/"},
		{"empty", true, "  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewLinkExtractor(nil, tt.strict)
			assert.Equal(t, tt.want, e.Normalize(base, tt.raw))
		})
	}
}

func TestLinkExtractor_Allowed(t *testing.T) {
	e := NewLinkExtractor(nil, true)
	origin := "https://example.com"

	tests := []struct {
		link string
		want bool
	}{
		{"https://example.com/page", true},
		{"https://example.com/guide/", true},
		{"https://other.com/page", false},
		{"http://example.com/page", false},
		{"https://example.com:8443/page", false},
		{"https://sub.example.com/page", false},
		{"https://example.com/file.pdf", false},
		{"https://example.com/img/logo.PNG", false},
		{"https://example.com/site.css", false},
		{"https://example.com/app.js", false},
		{"https://example.com/favicon.ico", false},
		{"https://example.com/icon.svg", false},
		{"https://example.com/dist.zip", false},
		{"https://example.com/setup.exe", false},
		{"https://example.com/page.html", true},
	}

	for _, tt := range tests {
		t.Run(tt.link, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Allowed(origin, tt.link))
		})
	}
}

func TestLinkExtractor_Extract(t *testing.T) {
	e := NewLinkExtractor(nil, true)
	body := `<html><head>
		<link rel="stylesheet" href="/style.css">
		<link rel="canonical" href="/docs/">
	</head><body>
		<a href="/docs/">Docs</a>
		<a href="/docs/#install">Install</a>
		<a href="guide?page=2">Guide</a>
		<a href="https://other.com/">Elsewhere</a>
		<a href="/paper.pdf">Paper</a>
		<a href="/private" rel="nofollow">Private</a>
		<a>No href</a>
		<a href="mailto:hi@example.com">Mail</a>
	</body></html>`

	links := e.Extract("https://example.com/start/", body)

	assert.Equal(t, []string{
		"https://example.com/docs/",
		"https://example.com/start/guide",
	}, links)
}

func TestLinkExtractor_Extract_BaseHref(t *testing.T) {
	e := NewLinkExtractor(nil, true)
	body := `<html><head><base href="/v2/"></head><body><a href="page">P</a></body></html>`

	links := e.Extract("https://example.com/v1/index.html", body)

	assert.Equal(t, []string{"https://example.com/v2/page"}, links)
}

func TestLinkExtractor_CustomDenylist(t *testing.T) {
	e := NewLinkExtractor([]string{"html"}, true)

	assert.False(t, e.Allowed("https://example.com", "https://example.com/a.html"))
	assert.True(t, e.Allowed("https://example.com", "https://example.com/a.pdf"))
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "http://example.com", Origin(mustParse(t, "http://Example.com:80/a")))
	assert.Equal(t, "https://example.com:8443", Origin(mustParse(t, "https://example.com:8443/")))
}
