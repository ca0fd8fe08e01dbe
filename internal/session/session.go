// Package session tracks session boundaries over the event log and
// recovers sessions left dangling by a hard process kill. The active-
// session marker file is the single source of truth for which session is
// open; it is written only by Start, End and recovery.
package session

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/engramdev/engram/internal/eventlog"
	"github.com/engramdev/engram/internal/fsx"
	"github.com/engramdev/engram/pkg/models"
)

const (
	markerFile = "active-session.json"
	indexFile  = "sessions.json"
)

// marker is the durable "current session" record.
type marker struct {
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
}

// Tracker manages the session state machine for one state root.
type Tracker struct {
	dir string
	log *eventlog.Log
	lg  *slog.Logger
	now func() time.Time
}

// New returns a Tracker over the given log.
func New(dir string, log *eventlog.Log, lg *slog.Logger) *Tracker {
	return &Tracker{dir: dir, log: log, lg: lg, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func (t *Tracker) markerPath() string { return filepath.Join(t.dir, markerFile) }
func (t *Tracker) indexPath() string  { return filepath.Join(t.dir, indexFile) }

// ActiveID returns the session ID recorded in the marker, "" when none.
func (t *Tracker) ActiveID() string {
	var m marker
	if err := fsx.ReadJSON(t.markerPath(), &m); err != nil {
		return ""
	}
	return m.SessionID
}

// Start recovers any orphaned sessions, then opens a new session for the
// given project path and records it as active.
func (t *Tracker) Start(projectPath string) (*models.Session, error) {
	if _, err := t.Recover(); err != nil {
		// Recovery failure must not block a new session; boundaries are
		// re-derivable from the log on the next pass.
		t.lg.Warn("session recovery failed", "error", err)
	}

	root := ResolveProjectRoot(projectPath)
	now := t.now()
	s := &models.Session{
		ID:          uuid.NewString(),
		ProjectPath: root,
		ProjectHash: ProjectHash(root),
		StartedAt:   now,
	}

	if err := fsx.WriteJSON(t.markerPath(), marker{SessionID: s.ID, StartedAt: now}); err != nil {
		return nil, err
	}
	err := t.log.Append(&models.Observation{
		Timestamp: now,
		SessionID: s.ID,
		Type:      models.ObservationSessionStart,
		Data: map[string]any{
			"projectPath": root,
			"projectHash": s.ProjectHash,
		},
	})
	if err != nil {
		return nil, err
	}
	// Index update is best-effort: the log already holds the boundary.
	if err := t.upsertIndex(s); err != nil {
		t.lg.Warn("session index update failed", "error", err)
	}
	return s, nil
}

// End closes the session: appends session_end, updates the index and
// clears the active marker.
func (t *Tracker) End(sessionID string) (*models.SessionSummary, error) {
	s, err := t.fromLog(sessionID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, &models.NotFoundError{Kind: "session", ID: sessionID}
	}

	now := t.now()
	duration := wholeMinutes(s.StartedAt, now)
	err = t.log.Append(&models.Observation{
		Timestamp: now,
		SessionID: sessionID,
		Type:      models.ObservationSessionEnd,
		Data:      map[string]any{"durationMinutes": duration},
	})
	if err != nil {
		return nil, err
	}

	s.EndedAt = &now
	s.DurationMinutes = duration
	if err := t.upsertIndex(s); err != nil {
		t.lg.Warn("session index update failed", "error", err)
	}
	if t.ActiveID() == sessionID {
		if err := os.Remove(t.markerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.lg.Warn("clearing active marker failed", "error", err)
		}
	}
	return &models.SessionSummary{
		SessionID:        sessionID,
		ProjectPath:      s.ProjectPath,
		DurationMinutes:  duration,
		ObservationCount: s.ObservationCount,
		Recovered:        s.Recovered,
	}, nil
}

// Recover finds sessions with a start but no end that are not the
// currently-marked-active session, and closes them with a synthetic
// session_end flagged recovered. Idempotent: with no orphans it is a
// no-op. Returns the IDs of recovered sessions.
func (t *Tracker) Recover() ([]string, error) {
	observations, err := t.allObservations()
	if err != nil {
		return nil, err
	}

	type open struct {
		session *models.Session
		lastAt  time.Time
		count   int
	}
	opens := map[string]*open{}
	var order []string
	for i := range observations {
		o := &observations[i]
		switch o.Type {
		case models.ObservationSessionStart:
			opens[o.SessionID] = &open{
				session: &models.Session{
					ID:          o.SessionID,
					ProjectPath: o.DataString("projectPath"),
					ProjectHash: o.DataString("projectHash"),
					StartedAt:   o.Timestamp,
				},
				lastAt: o.Timestamp,
			}
			order = append(order, o.SessionID)
		case models.ObservationSessionEnd:
			delete(opens, o.SessionID)
		default:
			if st, ok := opens[o.SessionID]; ok && o.SessionID != "" {
				st.lastAt = o.Timestamp
				st.count++
			}
		}
	}

	active := t.ActiveID()
	var recovered []string
	for _, id := range order {
		st, ok := opens[id]
		if !ok || id == active {
			continue
		}
		end := st.lastAt
		if st.count == 0 {
			end = t.now()
		}
		duration := wholeMinutes(st.session.StartedAt, end)
		err := t.log.Append(&models.Observation{
			Timestamp: end,
			SessionID: id,
			Type:      models.ObservationSessionEnd,
			Data: map[string]any{
				"durationMinutes": duration,
				"recovered":       true,
			},
		})
		if err != nil {
			return recovered, err
		}
		st.session.EndedAt = &end
		st.session.DurationMinutes = duration
		st.session.ObservationCount = st.count
		st.session.Recovered = true
		if err := t.upsertIndex(st.session); err != nil {
			t.lg.Warn("session index update failed", "error", err)
		}
		recovered = append(recovered, id)
		t.lg.Info("recovered orphaned session", "session", id, "durationMinutes", duration)
	}

	// The marker can point at a session the log shows no open start for
	// (never started, or already ended). Clear it so a stale marker does
	// not shield future orphans.
	if active != "" {
		if _, open := opens[active]; !open {
			if err := os.Remove(t.markerPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
				t.lg.Warn("clearing stale marker failed", "error", err)
			}
		}
	}
	return recovered, nil
}

// List returns the session index, most recent first.
func (t *Tracker) List() ([]models.Session, error) {
	var sessions []models.Session
	if err := fsx.ReadJSON(t.indexPath(), &sessions); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
	return sessions, nil
}

// fromLog reconstructs a session's current shape from the event log.
func (t *Tracker) fromLog(sessionID string) (*models.Session, error) {
	observations, err := t.allObservations()
	if err != nil {
		return nil, err
	}
	var s *models.Session
	for i := range observations {
		o := &observations[i]
		if o.SessionID != sessionID {
			continue
		}
		switch o.Type {
		case models.ObservationSessionStart:
			s = &models.Session{
				ID:          sessionID,
				ProjectPath: o.DataString("projectPath"),
				ProjectHash: o.DataString("projectHash"),
				StartedAt:   o.Timestamp,
			}
		case models.ObservationSessionEnd:
			if s != nil {
				ts := o.Timestamp
				s.EndedAt = &ts
				s.Recovered = o.DataBool("recovered")
			}
		default:
			if s != nil {
				s.ObservationCount++
			}
		}
	}
	return s, nil
}

func (t *Tracker) allObservations() ([]models.Observation, error) {
	archived, err := t.log.Archived()
	if err != nil {
		return nil, err
	}
	live, err := t.log.All()
	if err != nil {
		return nil, err
	}
	return append(archived, live...), nil
}

func (t *Tracker) upsertIndex(s *models.Session) error {
	var sessions []models.Session
	if err := fsx.ReadJSON(t.indexPath(), &sessions); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	replaced := false
	for i := range sessions {
		if sessions[i].ID == s.ID {
			sessions[i] = *s
			replaced = true
			break
		}
	}
	if !replaced {
		sessions = append(sessions, *s)
	}
	return fsx.WriteJSON(t.indexPath(), sessions)
}

// wholeMinutes returns the elapsed whole minutes between two times,
// clamped to >= 0.
func wholeMinutes(start, end time.Time) int {
	m := int(end.Sub(start).Minutes())
	if m < 0 {
		return 0
	}
	return m
}
