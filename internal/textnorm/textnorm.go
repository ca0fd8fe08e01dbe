// Package textnorm holds the text normalization shared by near-duplicate
// suppression and document import: keyword extraction, title normalization
// and keyword-set overlap. All functions are deterministic and
// side-effect-free so duplicate policy can be evaluated anywhere.
package textnorm

import (
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`\b[a-z0-9]{3,}\b`)

// stopWords are dropped from keyword sets; mostly glue words plus the
// rule-phrasing vocabulary that appears in nearly every imported rule.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "use": true, "when": true,
	"with": true, "should": true, "from": true, "that": true, "this": true,
	"have": true, "will": true, "your": true, "prefer": true,
	"default": true, "instead": true, "always": true, "never": true,
	"avoid": true, "suggest": true, "not": true, "are": true, "was": true,
}

// Keywords extracts the significant lowercase keywords of text, in first-
// seen order, without duplicates.
func Keywords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// NormalizeTitle reduces a title to its sorted keyword set joined by
// spaces. Two titles that normalize identically are treated as the same
// rule.
func NormalizeTitle(title string) string {
	kw := Keywords(title)
	sort.Strings(kw)
	return strings.Join(kw, " ")
}

// Truncate shortens s to at most max runes, never splitting a multi-byte
// character.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Jaccard returns |a∩b| / |a∪b| over two keyword slices, 0 when both are
// empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := map[string]int{}
	for _, w := range a {
		set[w] |= 1
	}
	for _, w := range b {
		set[w] |= 2
	}
	inter, union := 0, 0
	for _, bits := range set {
		union++
		if bits == 3 {
			inter++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
