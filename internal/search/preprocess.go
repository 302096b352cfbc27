package search

import (
	"regexp"
	"strings"
)

// SearchableText flattens a card into the single blob the tokenizer sees:
// title, caption, and keywords, whitespace-normalized.
func SearchableText(d Doc) string {
	parts := make([]string, 0, 2+len(d.Keywords))
	if t := strings.TrimSpace(d.Title); t != "" {
		parts = append(parts, t)
	}
	if c := strings.TrimSpace(d.Caption); c != "" {
		parts = append(parts, c)
	}
	for _, kw := range d.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			parts = append(parts, kw)
		}
	}
	return normalizeWhitespace(strings.Join(parts, " "))
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// tokenize lowercases s and extracts its unique word tokens, dropping any
// that appear in stop.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
