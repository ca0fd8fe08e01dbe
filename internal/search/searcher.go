package search

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/pkg/models"
)

// Ranking weights, additive over matched signals; the sum is multiplied by
// the memory's current confidence.
const (
	weightStructuredField = 0.4
	weightContent         = 0.3
	weightTagOverlap      = 0.2
	weightTriggerPattern  = 0.5
	weightProjectBoost    = 0.3
)

// Query is one search request.
type Query struct {
	Text        string
	ProjectHash string // project context of the caller, "" when none
	Filter      models.Filter
}

// Result pairs a memory with its ranking score.
type Result struct {
	Memory models.Memory
	Score  float64
}

// Searcher runs ranked queries over the memory store using the index
// artifact, rebuilding it on demand when missing.
type Searcher struct {
	dir   string
	store *store.Store
	lg    *slog.Logger
	now   func() time.Time
}

// NewSearcher returns a Searcher for one state root.
func NewSearcher(dir string, st *store.Store, lg *slog.Logger) *Searcher {
	return &Searcher{dir: dir, store: st, lg: lg, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *Searcher) SetClock(now func() time.Time) { s.now = now }

// Rebuild regenerates the index artifact from the memory store.
func (s *Searcher) Rebuild() error {
	memories, err := s.store.All()
	if err != nil {
		return err
	}
	idx := Build(memories, s.now())
	return SaveArtifact(s.dir, idx)
}

// index loads the artifact, falling back to a direct build when the
// artifact is missing or unreadable. A stale or missing cache must never
// fail a query.
func (s *Searcher) index() *Index {
	idx, err := LoadArtifact(s.dir)
	if err == nil {
		return idx
	}
	memories, merr := s.store.All()
	if merr != nil {
		s.lg.Warn("index fallback scan failed", "error", merr)
		return NewIndex()
	}
	return Build(memories, s.now())
}

// Search returns matching memories ordered by descending score, ties
// broken by more recent last access. Every returned memory has its access
// count incremented and last_accessed updated: a read has a side effect,
// by contract.
func (s *Searcher) Search(q Query) ([]Result, error) {
	memories, err := s.store.List(models.Filter{
		Scope:         q.Filter.Scope,
		Type:          q.Filter.Type,
		Tag:           q.Filter.Tag,
		MinConfidence: q.Filter.MinConfidence,
		Status:        q.Filter.Status,
	})
	if err != nil {
		return nil, err
	}

	idx := s.index()
	tokens := Tokenize(q.Text)

	// Candidate selection via the index covers every token-based signal.
	// Memories with trigger patterns are scored regardless, since a regex
	// can match query text that shares no terms with the memory.
	candidates := idx.Candidates(tokens)

	var results []Result
	for i := range memories {
		m := &memories[i]
		if !candidates[m.ID] && len(m.Triggers.Patterns) == 0 {
			continue
		}
		score := s.score(m, q, tokens, idx)
		if score <= 0 {
			continue
		}
		results = append(results, Result{Memory: *m, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.Metadata.LastAccessed.After(results[j].Memory.Metadata.LastAccessed)
	})
	if q.Filter.Limit > 0 && len(results) > q.Filter.Limit {
		results = results[:q.Filter.Limit]
	}

	now := s.now()
	for i := range results {
		id := results[i].Memory.ID
		updated, err := s.store.Update(id, func(mem *models.Memory) {
			mem.Metadata.AccessCount++
			mem.Metadata.LastAccessed = now
		})
		if err != nil {
			s.lg.Warn("recording access failed", "memory", id, "error", err)
			continue
		}
		results[i].Memory = *updated
	}
	return results, nil
}

func (s *Searcher) score(m *models.Memory, q Query, tokens []string, idx *Index) float64 {
	if len(tokens) == 0 {
		return 0
	}
	score := 0.0

	// Structured fields: title, action, trigger keywords. Each distinct
	// field with a keyword hit contributes once.
	if fieldMatches(m.Content.Title, tokens) {
		score += weightStructuredField
	}
	if fieldMatches(m.Content.Action, tokens) {
		score += weightStructuredField
	}
	if keywordMatches(m.Triggers.Keywords, tokens) {
		score += weightStructuredField
	}

	// Free-text content via the terms namespace.
	for _, tok := range tokens {
		if idx.TermFrequency(tok, m.ID) > 0 {
			score += weightContent
			break
		}
	}

	// Tag overlap, per overlapping tag.
	tokenSet := map[string]bool{}
	for _, tok := range tokens {
		tokenSet[tok] = true
	}
	for _, tag := range m.Tags {
		if tokenSet[strings.ToLower(tag)] {
			score += weightTagOverlap
		}
	}

	// Regex trigger patterns run against the raw query text.
	for _, pattern := range m.Triggers.Patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		if re.MatchString(q.Text) {
			score += weightTriggerPattern
			break
		}
	}

	// Project boost when the caller's project equals the memory's scope.
	if q.ProjectHash != "" && m.Scope.ProjectHash == q.ProjectHash {
		score += weightProjectBoost
	}

	return score * m.Metadata.Confidence
}

func fieldMatches(field string, tokens []string) bool {
	if field == "" {
		return false
	}
	fieldTokens := map[string]bool{}
	for _, t := range Tokenize(field) {
		fieldTokens[t] = true
	}
	for _, tok := range tokens {
		if fieldTokens[tok] {
			return true
		}
	}
	return false
}

func keywordMatches(keywords, tokens []string) bool {
	if len(keywords) == 0 {
		return false
	}
	set := map[string]bool{}
	for _, kw := range keywords {
		for _, t := range Tokenize(kw) {
			set[t] = true
		}
	}
	for _, tok := range tokens {
		if set[tok] {
			return true
		}
	}
	return false
}
