package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/logging"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/pkg/models"
)

func newSearcher(t *testing.T) (*Searcher, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(dir, logging.Discard())
	return NewSearcher(dir, st, logging.Discard()), st
}

func seed(t *testing.T, st *store.Store, m *models.Memory) *models.Memory {
	t.Helper()
	if m.Type == "" {
		m.Type = models.MemoryTypePreference
	}
	if m.Scope.Type == "" {
		m.Scope = models.GlobalScope()
	}
	if len(m.Evidence) == 0 {
		m.Evidence = []models.Evidence{{Timestamp: time.Now(), Description: "seen"}}
	}
	if m.Metadata.Source == "" {
		m.Metadata.Source = "analysis"
	}
	require.NoError(t, st.Create(m))
	return m
}

func TestSearchScoresStructuredFieldsAboveContent(t *testing.T) {
	s, st := newSearcher(t)

	titled := seed(t, st, &models.Memory{
		Content: models.Content{
			Title:       "Prefer pnpm",
			Description: "chosen repeatedly",
		},
		Metadata: models.Metadata{Confidence: 0.8},
	})
	buried := seed(t, st, &models.Memory{
		Content: models.Content{
			Title:       "Node project setup",
			Description: "install dependencies with pnpm before running anything",
		},
		Metadata: models.Metadata{Confidence: 0.8},
	})

	results, err := s.Search(Query{Text: "pnpm"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, titled.ID, results[0].Memory.ID)
	require.Equal(t, buried.ID, results[1].Memory.ID)
	// Title + content hit vs content hit alone.
	require.InDelta(t, (0.4+0.3)*0.8, results[0].Score, 1e-9)
	require.InDelta(t, 0.3*0.8, results[1].Score, 1e-9)
}

func TestSearchIsDeterministic(t *testing.T) {
	s, st := newSearcher(t)
	for _, title := range []string{"Docker compose tips", "Docker build cache", "Docker registry auth"} {
		seed(t, st, &models.Memory{
			Content:  models.Content{Title: title, Description: "notes"},
			Metadata: models.Metadata{Confidence: 0.6},
		})
	}

	first, err := s.Search(Query{Text: "docker"})
	require.NoError(t, err)
	second, err := s.Search(Query{Text: "docker"})
	require.NoError(t, err)
	require.Len(t, second, len(first))
	for i := range first {
		require.Equal(t, first[i].Memory.ID, second[i].Memory.ID)
	}
}

func TestSearchBreaksTiesByLastAccessed(t *testing.T) {
	s, st := newSearcher(t)

	older := seed(t, st, &models.Memory{
		Content:  models.Content{Title: "Vim keybindings", Description: "a"},
		Metadata: models.Metadata{Confidence: 0.5},
	})
	recent := seed(t, st, &models.Memory{
		Content:  models.Content{Title: "Vim plugins", Description: "b"},
		Metadata: models.Metadata{Confidence: 0.5},
	})
	_, err := st.Update(recent.ID, func(m *models.Memory) {
		m.Metadata.LastAccessed = time.Now().Add(time.Hour)
	})
	require.NoError(t, err)

	results, err := s.Search(Query{Text: "vim"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, recent.ID, results[0].Memory.ID)
	require.Equal(t, older.ID, results[1].Memory.ID)
}

func TestSearchRecordsAccess(t *testing.T) {
	s, st := newSearcher(t)
	m := seed(t, st, &models.Memory{
		Content:  models.Content{Title: "Use ripgrep", Description: "faster"},
		Metadata: models.Metadata{Confidence: 1.0},
	})

	results, err := s.Search(Query{Text: "ripgrep"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, 1, results[0].Memory.Metadata.AccessCount)

	got, err := st.Get(m.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Metadata.AccessCount)
}

func TestSearchSkipsMemoriesOutsideCandidateSet(t *testing.T) {
	s, st := newSearcher(t)
	seed(t, st, &models.Memory{
		Scope:    models.ProjectScope("/tmp/app", "abc123abc123"),
		Content:  models.Content{Title: "Tab indentation", Description: "editor config"},
		Metadata: models.Metadata{Confidence: 0.9},
	})

	// A project match alone, with no term, tag, or trigger relation to the
	// query, is not a result.
	results, err := s.Search(Query{Text: "kubernetes", ProjectHash: "abc123abc123"})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSearchTriggerPattern(t *testing.T) {
	s, st := newSearcher(t)
	m := seed(t, st, &models.Memory{
		Content:  models.Content{Title: "Release checklist", Description: "steps before a release"},
		Triggers: models.Triggers{Patterns: []string{`(?i)deploy.*prod`}},
		Metadata: models.Metadata{Confidence: 1.0},
	})

	results, err := s.Search(Query{Text: "deploy this to prod"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, m.ID, results[0].Memory.ID)
	require.InDelta(t, 0.5, results[0].Score, 1e-9)
}

func TestSearchProjectBoost(t *testing.T) {
	s, st := newSearcher(t)

	global := seed(t, st, &models.Memory{
		Content:  models.Content{Title: "Makefile layout", Description: "x"},
		Metadata: models.Metadata{Confidence: 1.0},
	})
	scoped := seed(t, st, &models.Memory{
		Scope:    models.ProjectScope("/tmp/app", "abc123abc123"),
		Content:  models.Content{Title: "Makefile targets", Description: "y"},
		Metadata: models.Metadata{Confidence: 1.0},
	})

	results, err := s.Search(Query{Text: "makefile", ProjectHash: "abc123abc123"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, scoped.ID, results[0].Memory.ID)
	require.Equal(t, global.ID, results[1].Memory.ID)
	require.InDelta(t, 0.3, results[0].Score-results[1].Score, 1e-9)
}

func TestSearchHonorsFilter(t *testing.T) {
	s, st := newSearcher(t)
	seed(t, st, &models.Memory{
		Content:  models.Content{Title: "Weak terraform hint", Description: "x"},
		Metadata: models.Metadata{Confidence: 0.2},
	})
	strong := seed(t, st, &models.Memory{
		Content:  models.Content{Title: "Terraform workspaces", Description: "y"},
		Metadata: models.Metadata{Confidence: 0.9},
	})

	results, err := s.Search(Query{Text: "terraform", Filter: models.Filter{MinConfidence: 0.5}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, strong.ID, results[0].Memory.ID)
}

func TestSearchEmptyQuery(t *testing.T) {
	s, st := newSearcher(t)
	seed(t, st, &models.Memory{
		Content:  models.Content{Title: "Anything", Description: "x"},
		Metadata: models.Metadata{Confidence: 0.9},
	})

	results, err := s.Search(Query{Text: ""})
	require.NoError(t, err)
	require.Empty(t, results)
}
