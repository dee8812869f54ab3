// Package htmltext reduces raw HTML to whitespace-collapsed plain text.
package htmltext

import (
	"strconv"
	"strings"
)

// Elements whose entire content is noise for knowledge extraction.
var skippedElements = []string{"script", "style", "nav", "footer", "header"}

// Normalize strips markup from an HTML document and returns a single-line,
// whitespace-collapsed plain-text string. Content of script, style, nav,
// footer and header elements is removed entirely; remaining tags are
// dropped and common entities decoded. Never fails; the worst case is an
// empty string.
func Normalize(html string) string {
	s := html
	for _, el := range skippedElements {
		s = removeElement(s, el)
	}
	s = stripTags(s)
	s = decodeEntities(s)
	return collapseWhitespace(s)
}

// removeElement drops every <el ...>...</el> block, including its content.
// Matching is case-insensitive and tolerates attributes on the opening tag.
func removeElement(s, el string) string {
	lower := strings.ToLower(s)
	open := "<" + el
	close := "</" + el + ">"

	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for {
		start := indexTagStart(lower, open, i)
		if start < 0 {
			b.WriteString(s[i:])
			return b.String()
		}
		b.WriteString(s[i:start])

		end := strings.Index(lower[start:], close)
		if end < 0 {
			// Unclosed block: everything after it is inside the element.
			return b.String()
		}
		i = start + end + len(close)
	}
}

// indexTagStart finds open ("<script") at or after i, requiring the next
// character to terminate the tag name so "<scriptx>" is not matched.
func indexTagStart(lower, open string, i int) int {
	for {
		idx := strings.Index(lower[i:], open)
		if idx < 0 {
			return -1
		}
		pos := i + idx
		next := pos + len(open)
		if next >= len(lower) {
			return -1
		}
		c := lower[next]
		if c == '>' || c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '/' {
			return pos
		}
		i = pos + 1
	}
}

// stripTags removes every <...> sequence, replacing it with a space so that
// adjacent text nodes do not run together.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
			b.WriteByte(' ')
		case '>':
			if depth > 0 {
				depth--
			}
		default:
			if depth == 0 {
				b.WriteByte(s[i])
			}
		}
	}
	return b.String()
}

// decodeEntities decodes the handful of entities that matter for extracted
// prose plus generic numeric references. Running after stripTags, a decoded
// &lt; or &gt; is author prose (a price comparison, a quoted snippet), not
// markup, so angle brackets from entities are kept in the output.
func decodeEntities(s string) string {
	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	s = replacer.Replace(s)
	return decodeNumericEntities(s)
}

func decodeNumericEntities(s string) string {
	if !strings.Contains(s, "&#") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] == '&' && i+2 < len(s) && s[i+1] == '#' {
			end := i + 2
			for end < len(s) && end-i < 10 && s[end] >= '0' && s[end] <= '9' {
				end++
			}
			if end < len(s) && s[end] == ';' && end > i+2 {
				if code, err := strconv.Atoi(s[i+2 : end]); err == nil {
					b.WriteRune(rune(code))
					i = end + 1
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
