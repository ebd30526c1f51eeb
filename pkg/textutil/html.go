// Package textutil converts message markup into plain text suitable for
// summarization and embedding.
package textutil

import (
	"strings"

	"golang.org/x/net/html"
)

// StripHTML converts an HTML body to plain text. Script and style content is
// dropped entirely; block-level boundaries become newlines so sentence
// structure survives for the summarizer.
func StripHTML(input string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(input))

	var b strings.Builder
	skipDepth := 0
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return CollapseWhitespace(b.String())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" || tag == "head" {
				skipDepth++
			}
			if isBlockTag(tag) {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "script" || tag == "style" || tag == "head" {
				if skipDepth > 0 {
					skipDepth--
				}
			}
			if isBlockTag(tag) {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

// CollapseWhitespace trims runs of blanks and blank lines down to single
// separators.
func CollapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Snippet returns the first n runes of text on a single line.
func Snippet(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= n {
		return flat
	}
	return string(runes[:n])
}

func isBlockTag(tag string) bool {
	switch tag {
	case "p", "div", "br", "tr", "li", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "table":
		return true
	}
	return false
}
