package normalisers

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// UntitledContent is the title used when a page has neither <title> nor <h1>
const UntitledContent = "Untitled Content"

const maxHeadingTitleRunes = 100

// nonContent lists subtrees whose text never reaches the output
var nonContent = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Form:     true,
}

// blockElements end a line of display text
var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Main: true, atom.Blockquote: true,
	atom.Pre: true, atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Dd: true, atom.Dt: true,
}

// HTMLNormaliser extracts visible text from HTML.
type HTMLNormaliser struct{}

func (n *HTMLNormaliser) Normalise(content string, mimeType string) string {
	return CollapseWhitespace(ExtractText(content))
}

func (n *HTMLNormaliser) SupportedTypes() []string {
	return []string{"text/html", "application/xhtml+xml"}
}

func (n *HTMLNormaliser) Priority() int {
	return 50
}

// ExtractText returns the display text of an HTML document with
// non-content subtrees removed. Block boundaries become newlines and the
// result is passed through Sanitize. Unparseable or empty input yields "".
func ExtractText(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if nonContent[n.DataAtom] {
				return
			}
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return Sanitize(b.String())
}

// ExtractTitle returns the page <title>, else the first <h1> truncated to
// 100 characters, else UntitledContent.
func ExtractTitle(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return UntitledContent
	}

	if t := CollapseWhitespace(textOf(findFirst(doc, atom.Title))); t != "" {
		return t
	}
	if h := CollapseWhitespace(textOf(findFirst(doc, atom.H1))); h != "" {
		if utf8.RuneCountInString(h) > maxHeadingTitleRunes {
			h = string([]rune(h)[:maxHeadingTitleRunes])
		}
		return h
	}
	return UntitledContent
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textOf(c))
		b.WriteByte(' ')
	}
	return b.String()
}
