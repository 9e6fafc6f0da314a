package extraction

import (
	"strings"

	"golang.org/x/net/html"
)

var markupHints = []string{"<html", "<body", "<br", "</div", "<p", "<table", "<tr", "<td"}

// LooksLikeMarkup reports whether s carries any of the tags alert templates use.
func LooksLikeMarkup(s string) bool {
	low := strings.ToLower(s)
	for _, hint := range markupHints {
		if strings.Contains(low, hint) {
			return true
		}
	}
	return false
}

// MarkupToText renders HTML as plain lines: line-breaking tags become newlines, other tags vanish,
// entities are decoded, horizontal whitespace is collapsed and blank lines are dropped.
func MarkupToText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))

	var b strings.Builder
	skip := 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}

		switch tt {
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br":
				b.WriteByte('\n')
			case "script", "style":
				if tt == html.StartTagToken {
					skip++
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "p", "div", "tr", "li", "table", "h1", "h2", "h3", "h4", "h5", "h6":
				b.WriteByte('\n')
			case "td", "th":
				b.WriteByte(' ')
			case "script", "style":
				if skip > 0 {
					skip--
				}
			}
		}
	}

	return collapseLines(b.String())
}

func collapseLines(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, isHorizontalSpace), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func isHorizontalSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\f' || r == '\v'
}
