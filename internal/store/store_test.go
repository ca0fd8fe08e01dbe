package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/logging"
	"github.com/engramdev/engram/pkg/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir(), logging.Discard())
}

func validMemory(title string) *models.Memory {
	return &models.Memory{
		Type:  models.MemoryTypePreference,
		Scope: models.GlobalScope(),
		Content: models.Content{
			Title:       title,
			Description: "a description of " + title,
		},
		Metadata: models.Metadata{Confidence: 0.7, Source: "manual"},
		Evidence: []models.Evidence{{Timestamp: time.Now(), Description: "seen"}},
	}
}

func TestCreateAssignsIDAndDefaults(t *testing.T) {
	s := newStore(t)
	s.SetClock(func() time.Time { return time.Date(2026, 4, 5, 14, 30, 0, 0, time.UTC) })

	m := validMemory("Prefer pnpm over npm")
	require.NoError(t, s.Create(m))
	require.Equal(t, "20260405-143000-prefer-pnpm-over-npm", m.ID)
	require.Equal(t, models.StatusActive, m.Metadata.Status)
	require.False(t, m.Metadata.CreatedAt.IsZero())
	require.Equal(t, m.Metadata.CreatedAt, m.Metadata.LastAccessed)
}

func TestCreateCollisionGetsSuffix(t *testing.T) {
	s := newStore(t)
	fixed := time.Date(2026, 4, 5, 14, 30, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return fixed })

	first := validMemory("Same title")
	second := validMemory("Same title")
	require.NoError(t, s.Create(first))
	require.NoError(t, s.Create(second))
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, first.ID+"-2", second.ID)
}

func TestCreateRejectsInvalid(t *testing.T) {
	s := newStore(t)

	m := validMemory("No evidence")
	m.Evidence = nil
	err := s.Create(m)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "evidence", ve.Field)

	m = validMemory("Bad regex")
	m.Triggers.Patterns = []string{"("}
	require.ErrorAs(t, s.Create(m), &ve)
	require.Equal(t, "triggers.patterns", ve.Field)

	m = validMemory("Bad confidence")
	m.Metadata.Confidence = 1.5
	require.ErrorAs(t, s.Create(m), &ve)
	require.Equal(t, "metadata.confidence", ve.Field)
}

func TestGetSearchesAllPartitions(t *testing.T) {
	s := newStore(t)

	global := validMemory("Global one")
	require.NoError(t, s.Create(global))

	project := validMemory("Project one")
	project.Scope = models.ProjectScope("/tmp/app", "abcdef123456")
	require.NoError(t, s.Create(project))

	got, err := s.Get(project.ID)
	require.NoError(t, err)
	require.Equal(t, "abcdef123456", got.Scope.ProjectHash)

	_, err = s.Get("20990101-000000-missing")
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestUpdateFreezesImmutableFields(t *testing.T) {
	s := newStore(t)
	m := validMemory("Immutable check")
	require.NoError(t, s.Create(m))

	updated, err := s.Update(m.ID, func(mm *models.Memory) {
		mm.ID = "hijacked"
		mm.Metadata.CreatedAt = time.Time{}
		mm.Metadata.Source = "import"
		mm.Scope = models.ProjectScope("/x", "ffffffffffff")
		mm.Metadata.Confidence = 2.0
		mm.Content.Description = "updated description"
	})
	require.NoError(t, err)
	require.Equal(t, m.ID, updated.ID)
	require.True(t, m.Metadata.CreatedAt.Equal(updated.Metadata.CreatedAt))
	require.Equal(t, "manual", updated.Metadata.Source)
	require.True(t, updated.Scope.Global())
	require.Equal(t, 1.0, updated.Metadata.Confidence)
	require.Equal(t, "updated description", updated.Content.Description)
}

func TestListFiltersAndOrders(t *testing.T) {
	s := newStore(t)
	base := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	older := validMemory("Older pattern")
	older.Type = models.MemoryTypePattern
	older.Metadata.CreatedAt = base
	older.Tags = []string{"testing"}
	require.NoError(t, s.Create(older))

	newer := validMemory("Newer preference")
	newer.Metadata.CreatedAt = base.Add(time.Hour)
	require.NoError(t, s.Create(newer))

	archived := validMemory("Archived one")
	archived.Metadata.CreatedAt = base.Add(2 * time.Hour)
	archived.Metadata.Status = models.StatusArchived
	require.NoError(t, s.Create(archived))

	// Default filter hides archived and orders newest first.
	got, err := s.List(models.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, newer.ID, got[0].ID)
	require.Equal(t, older.ID, got[1].ID)

	got, err = s.List(models.Filter{Type: models.MemoryTypePattern})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, older.ID, got[0].ID)

	got, err = s.List(models.Filter{Tag: "testing"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.List(models.Filter{Status: models.StatusArchived})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, archived.ID, got[0].ID)

	got, err = s.List(models.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, newer.ID, got[0].ID)
}

func TestRebuildIndexReportsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, logging.Discard())

	kept := validMemory("Kept memory")
	removed := validMemory("Removed memory")
	require.NoError(t, s.Create(kept))
	require.NoError(t, s.Create(removed))

	// Delete the file behind the index's back.
	require.NoError(t, os.Remove(filepath.Join(dir, "memories", "global", removed.ID+".json")))

	warnings, err := s.RebuildIndex()
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Detail, removed.ID)

	entries, err := s.Index()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, kept.ID, entries[0].ID)
}
