package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/engramdev/engram/internal/eventlog"
	"github.com/engramdev/engram/internal/logging"
	"github.com/engramdev/engram/pkg/models"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	dir := t.TempDir()
	return New(dir, eventlog.New(dir), logging.Discard())
}

func TestStartEndLifecycle(t *testing.T) {
	tr := newTracker(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return base })

	s, err := tr.Start(t.TempDir())
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, s.ID, tr.ActiveID())

	tr.SetClock(func() time.Time { return base.Add(35 * time.Minute) })
	summary, err := tr.End(s.ID)
	require.NoError(t, err)
	require.Equal(t, 35, summary.DurationMinutes)
	require.False(t, summary.Recovered)
	require.Empty(t, tr.ActiveID())
}

func TestEndUnknownSession(t *testing.T) {
	tr := newTracker(t)
	_, err := tr.End("no-such-session")
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRecoverOrphanUsesLastObservation(t *testing.T) {
	dir := t.TempDir()
	log := eventlog.New(dir)
	tr := New(dir, log, logging.Discard())

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, log.Append(&models.Observation{
		Timestamp: start,
		SessionID: "orphan",
		Type:      models.ObservationSessionStart,
		Data:      map[string]any{"projectPath": "/tmp/p", "projectHash": "abc123"},
	}))
	require.NoError(t, log.Append(&models.Observation{
		Timestamp: start.Add(42 * time.Minute),
		SessionID: "orphan",
		Type:      models.ObservationToolUse,
		Data:      map[string]any{"command": "go test"},
	}))

	recovered, err := tr.Recover()
	require.NoError(t, err)
	require.Equal(t, []string{"orphan"}, recovered)

	all, err := log.All()
	require.NoError(t, err)
	end := all[len(all)-1]
	require.Equal(t, models.ObservationSessionEnd, end.Type)
	require.Equal(t, "orphan", end.SessionID)
	require.True(t, end.DataBool("recovered"))
	require.True(t, end.Timestamp.Equal(start.Add(42*time.Minute)))
	require.EqualValues(t, 42, end.Data["durationMinutes"])
}

func TestRecoverIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	log := eventlog.New(dir)
	tr := New(dir, log, logging.Discard())

	require.NoError(t, log.Append(&models.Observation{
		Timestamp: time.Now().Add(-time.Hour),
		SessionID: "orphan",
		Type:      models.ObservationSessionStart,
	}))

	first, err := tr.Recover()
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := tr.Recover()
	require.NoError(t, err)
	require.Empty(t, second)
}

func TestRecoverSkipsActiveSession(t *testing.T) {
	tr := newTracker(t)

	s, err := tr.Start(t.TempDir())
	require.NoError(t, err)

	recovered, err := tr.Recover()
	require.NoError(t, err)
	require.Empty(t, recovered)
	require.Equal(t, s.ID, tr.ActiveID())
}

func TestStartRecoversPreviousOrphan(t *testing.T) {
	dir := t.TempDir()
	log := eventlog.New(dir)
	tr := New(dir, log, logging.Discard())

	require.NoError(t, log.Append(&models.Observation{
		Timestamp: time.Now().Add(-2 * time.Hour),
		SessionID: "stale",
		Type:      models.ObservationSessionStart,
	}))

	s, err := tr.Start(t.TempDir())
	require.NoError(t, err)

	// The orphan got a synthetic end before the new session opened.
	list, err := tr.List()
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, sess := range list {
		ids[sess.ID] = true
		if sess.ID == "stale" {
			require.True(t, sess.Recovered)
			require.NotNil(t, sess.EndedAt)
		}
	}
	require.True(t, ids["stale"])
	require.True(t, ids[s.ID])
}

func TestWholeMinutesClampsNegative(t *testing.T) {
	now := time.Now()
	require.Equal(t, 0, wholeMinutes(now, now.Add(-time.Minute)))
	require.Equal(t, 1, wholeMinutes(now, now.Add(90*time.Second)))
}
