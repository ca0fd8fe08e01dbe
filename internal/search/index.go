// Package search is the inverted-index retrieval engine: terms and tags in
// separate namespaces, multi-factor ranking multiplied by confidence, and
// a sqlite artifact that persists the index as a disposable cache.
package search

import (
	"regexp"
	"strings"
	"time"

	"github.com/engramdev/engram/pkg/models"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9][a-z0-9./@_-]*`)

// Tokenize lowercases text and splits it into index terms.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// Index maps normalized terms and tags to memory IDs with term
// frequencies. It is rebuilt deterministically from the memory store and
// never used to reconstruct a memory, only to look one up.
type Index struct {
	Terms   map[string]map[string]int
	Tags    map[string]map[string]int
	BuiltAt time.Time
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		Terms: map[string]map[string]int{},
		Tags:  map[string]map[string]int{},
	}
}

func (idx *Index) add(ns map[string]map[string]int, term, id string) {
	byID := ns[term]
	if byID == nil {
		byID = map[string]int{}
		ns[term] = byID
	}
	byID[id]++
}

// Build constructs a complete index over every non-archived memory.
func Build(memories []models.Memory, builtAt time.Time) *Index {
	idx := NewIndex()
	idx.BuiltAt = builtAt
	for i := range memories {
		m := &memories[i]
		if m.Metadata.Status == models.StatusArchived {
			continue
		}
		texts := []string{m.Content.Title, m.Content.Description, m.Content.Action}
		texts = append(texts, m.Content.Examples...)
		for _, t := range texts {
			for _, term := range Tokenize(t) {
				idx.add(idx.Terms, term, m.ID)
			}
		}
		for _, kw := range m.Triggers.Keywords {
			for _, term := range Tokenize(kw) {
				idx.add(idx.Terms, term, m.ID)
			}
		}
		for _, tag := range m.Tags {
			idx.add(idx.Tags, strings.ToLower(tag), m.ID)
		}
	}
	return idx
}

// TermFrequency returns the tf of term for a memory, 0 when unindexed.
func (idx *Index) TermFrequency(term, memoryID string) int {
	if byID, ok := idx.Terms[term]; ok {
		return byID[memoryID]
	}
	return 0
}

// Candidates returns the IDs of memories matching any of the query tokens
// in either namespace.
func (idx *Index) Candidates(tokens []string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range tokens {
		for id := range idx.Terms[tok] {
			out[id] = true
		}
		for id := range idx.Tags[tok] {
			out[id] = true
		}
	}
	return out
}
