package normalisers

import (
	"strings"
	"unicode"
)

// Sanitize cleans text for display: it strips NUL and other control
// characters, normalises line endings, collapses horizontal whitespace
// within lines and keeps at most two consecutive newlines.
func Sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	newlines := 0
	pendingSpace := false
	for _, r := range s {
		switch {
		case r == '\n':
			pendingSpace = false
			if newlines < 2 && b.Len() > 0 {
				b.WriteByte('\n')
			}
			newlines++
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			// dropped
		default:
			if pendingSpace && newlines == 0 && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			newlines = 0
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CollapseWhitespace strips control characters and joins all words with
// single spaces. This is the form used for word counting and chunking.
func CollapseWhitespace(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
