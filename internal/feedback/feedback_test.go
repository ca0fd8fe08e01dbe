package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/logging"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/pkg/models"
)

func newEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(dir, logging.Discard())
	return New(dir, st, logging.Discard()), st
}

func seedMemory(t *testing.T, st *store.Store, confidence float64, status models.MemoryStatus) *models.Memory {
	t.Helper()
	m := &models.Memory{
		Type:  models.MemoryTypePreference,
		Scope: models.GlobalScope(),
		Content: models.Content{
			Title:       "Prefer short flags",
			Description: "Short flags were chosen repeatedly.",
		},
		Metadata: models.Metadata{
			Confidence: confidence,
			Status:     status,
			Source:     "analysis",
		},
		Evidence: []models.Evidence{{Timestamp: time.Now(), Description: "seen"}},
	}
	require.NoError(t, st.Create(m))
	return m
}

func TestRejectedDropsToUnderReview(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.35, models.StatusActive)

	got, err := e.Apply(m.ID, OutcomeRejected, 0)
	require.NoError(t, err)
	require.InDelta(t, 0.15, got.Metadata.Confidence, 1e-9)
	require.Equal(t, models.StatusUnderReview, got.Metadata.Status)
	require.Equal(t, 1, got.Metadata.NegativeCount)
	require.Equal(t, 1, got.Metadata.AccessCount)
}

func TestRejectedFloorsAtZeroAndArchives(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.05, models.StatusActive)

	got, err := e.Apply(m.ID, OutcomeRejected, 0)
	require.NoError(t, err)
	require.Equal(t, 0.0, got.Metadata.Confidence)
	require.Equal(t, models.StatusArchived, got.Metadata.Status)
}

func TestAcceptedCapsAtOne(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.95, models.StatusActive)

	got, err := e.Apply(m.ID, OutcomeAccepted, 0)
	require.NoError(t, err)
	require.Equal(t, 1.0, got.Metadata.Confidence)
	require.Equal(t, 1, got.Metadata.PositiveCount)
}

func TestAcceptedPromotesOutOfReview(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.25, models.StatusUnderReview)

	got, err := e.Apply(m.ID, OutcomeAccepted, 0)
	require.NoError(t, err)
	require.InDelta(t, 0.35, got.Metadata.Confidence, 1e-9)
	require.Equal(t, models.StatusActive, got.Metadata.Status)
}

func TestAcceptedReopensArchived(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.0, models.StatusArchived)

	got, err := e.Apply(m.ID, OutcomeAccepted, 0)
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, got.Metadata.Status)
	require.InDelta(t, 0.1, got.Metadata.Confidence, 1e-9)
}

func TestApplyRejectsUnknownOutcome(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.5, models.StatusActive)

	_, err := e.Apply(m.ID, Outcome("maybe"), 0)
	var ve *models.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestCorrectCreatesCorrectionMemory(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.6, models.StatusActive)

	got, correctionID, err := e.Correct(m.ID, "the flag was renamed", "use --force-with-lease")
	require.NoError(t, err)
	require.InDelta(t, 0.4, got.Metadata.Confidence, 1e-9)
	require.NotEmpty(t, correctionID)

	c, err := st.Get(correctionID)
	require.NoError(t, err)
	require.Equal(t, models.MemoryTypeCorrection, c.Type)
	require.Equal(t, "correction", c.Metadata.Source)
	require.Equal(t, 0.7, c.Metadata.Confidence)
	require.Equal(t, "use --force-with-lease", c.Content.Action)
	require.Equal(t, []string{m.ID}, c.Relationships.RelatedIDs)
}

func TestCorrectWithoutActionSkipsCorrection(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.6, models.StatusActive)

	_, correctionID, err := e.Correct(m.ID, "just wrong", "")
	require.NoError(t, err)
	require.Empty(t, correctionID)
}

func TestProcessPendingAppliesOnceAndAdvancesWatermark(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.5, models.StatusActive)

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, e.Record(Entry{Timestamp: base, MemoryID: m.ID, Outcome: OutcomeAccepted}))
	require.NoError(t, e.Record(Entry{Timestamp: base.Add(time.Minute), MemoryID: m.ID, Outcome: OutcomeAccepted}))

	stats, err := e.ProcessPending()
	require.NoError(t, err)
	require.Equal(t, 2, stats["processed"])

	got, err := st.Get(m.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.7, got.Metadata.Confidence, 1e-9)
	require.Equal(t, 2, got.Metadata.PositiveCount)

	// Re-running finds nothing behind the watermark.
	stats, err = e.ProcessPending()
	require.NoError(t, err)
	require.Zero(t, stats["processed"])
}

func TestProcessPendingSkipsAppliedEntries(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.5, models.StatusActive)

	// Reinforce applies immediately and writes an applied audit line.
	_, err := e.Reinforce(m.ID)
	require.NoError(t, err)

	stats, err := e.ProcessPending()
	require.NoError(t, err)
	require.Zero(t, stats["processed"])

	got, err := st.Get(m.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.6, got.Metadata.Confidence, 1e-9)
	require.Equal(t, 1, got.Metadata.PositiveCount)
}

func TestProcessPendingCreatesCorrections(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.8, models.StatusActive)

	require.NoError(t, e.Record(Entry{
		MemoryID:      m.ID,
		Outcome:       OutcomeRejected,
		Feedback:      "wrong default",
		CorrectAction: "use the project config",
	}))

	stats, err := e.ProcessPending()
	require.NoError(t, err)
	require.Equal(t, 1, stats["processed"])
	require.Equal(t, 1, stats["corrections"])
}

func TestSupersededSetsStatus(t *testing.T) {
	e, st := newEngine(t)
	m := seedMemory(t, st, 0.6, models.StatusActive)

	got, err := e.Apply(m.ID, OutcomeSuperseded, 0)
	require.NoError(t, err)
	require.Equal(t, models.StatusSuperseded, got.Metadata.Status)
	require.InDelta(t, 0.6, got.Metadata.Confidence, 1e-9)
}
