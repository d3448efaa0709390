package crawler

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultDenylist holds path extensions that never carry crawlable text
var DefaultDenylist = []string{
	".pdf",
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff", ".ico", ".svg",
	".zip", ".tar", ".gz", ".tgz", ".rar", ".7z", ".exe", ".dmg",
	".css", ".js", ".mjs", ".map",
	".mp3", ".mp4", ".avi", ".mov", ".woff", ".woff2", ".ttf",
}

// LinkExtractor finds same-origin, content-bearing links in HTML pages.
type LinkExtractor struct {
	denylist   map[string]bool
	stripQuery bool
}

// NewLinkExtractor builds an extractor. A nil denylist uses DefaultDenylist.
// stripQuery drops query strings so URLs differing only by query are one
// crawl unit.
func NewLinkExtractor(denylist []string, stripQuery bool) *LinkExtractor {
	if denylist == nil {
		denylist = DefaultDenylist
	}
	deny := make(map[string]bool, len(denylist))
	for _, ext := range denylist {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		deny[ext] = true
	}
	return &LinkExtractor{denylist: deny, stripQuery: stripQuery}
}

// Normalize resolves raw against base and canonicalises it: fragment
// removed, query removed in strict mode, scheme and host lowercased,
// default ports dropped, empty path set to "/". Returns "" for URLs that
// cannot be crawled.
func (e *LinkExtractor) Normalize(base *url.URL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return e.canonical(u)
}

func (e *LinkExtractor) canonical(u *url.URL) string {
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return ""
	}
	u.Host = canonicalHost(u.Scheme, u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil
	if e.stripQuery {
		u.RawQuery = ""
		u.ForceQuery = false
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// Allowed reports whether a normalised link belongs to origin and does not
// point at a denylisted asset.
func (e *LinkExtractor) Allowed(origin string, link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	if Origin(u) != origin {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	return !e.denylist[ext]
}

// Extract returns the eligible links of an HTML page in document order,
// without duplicates. A <base href> overrides pageURL for resolution.
func (e *LinkExtractor) Extract(pageURL string, body string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	origin := Origin(base)

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var hrefs []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Base:
				if href := attr(n, "href"); href != "" {
					if b, err := base.Parse(href); err == nil {
						base = b
					}
				}
			case atom.A, atom.Link, atom.Area:
				if href := attr(n, "href"); href != "" && !strings.EqualFold(attr(n, "rel"), "nofollow") {
					hrefs = append(hrefs, href)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	seen := make(map[string]bool, len(hrefs))
	var links []string
	for _, href := range hrefs {
		link := e.Normalize(base, href)
		if link == "" || seen[link] || !e.Allowed(origin, link) {
			continue
		}
		seen[link] = true
		links = append(links, link)
	}
	return links
}

// Origin returns scheme://host[:port] with default ports removed
func Origin(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	return scheme + "://" + canonicalHost(scheme, u.Host)
}

func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	return host
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
