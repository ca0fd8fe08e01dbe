// Package feedback adjusts memory confidence on explicit user signal and
// ages memories over time. Feedback arrives either directly (reinforce,
// correct) or through the append-only feedback log, which external
// surfaces write and maintenance drains.
package feedback

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/engramdev/engram/internal/fsx"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/internal/textnorm"
	"github.com/engramdev/engram/pkg/models"
)

const (
	feedbackFile      = "feedback.jsonl"
	feedbackStateFile = "feedback-state.json"

	acceptedBoost    = 0.1
	rejectedPenalty  = 0.2
	reviewThreshold  = 0.3
	archiveThreshold = 0.1
)

// Outcome is an explicit feedback verdict.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeRejected   Outcome = "rejected"
	OutcomeSuperseded Outcome = "superseded"
)

// Entry is one line of the feedback log.
type Entry struct {
	Timestamp     time.Time `json:"timestamp"`
	MemoryID      string    `json:"memoryId"`
	Outcome       Outcome   `json:"outcome"`
	Feedback      string    `json:"feedback,omitempty"`
	CorrectAction string    `json:"correctAction,omitempty"`
	SessionID     string    `json:"sessionId,omitempty"`
	Delta         float64   `json:"delta,omitempty"`
	// Applied marks entries already applied at record time; maintenance
	// skips them so direct feedback is never double-counted.
	Applied bool `json:"applied,omitempty"`
}

// feedbackState is the processed-entry watermark.
type feedbackState struct {
	LastProcessed time.Time `json:"lastProcessed"`
}

// Engine applies feedback and decay for one state root.
type Engine struct {
	dir   string
	store *store.Store
	lg    *slog.Logger
	now   func() time.Time
}

// New returns an Engine over the given store.
func New(dir string, st *store.Store, lg *slog.Logger) *Engine {
	return &Engine{dir: dir, store: st, lg: lg, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func (e *Engine) logPath() string   { return filepath.Join(e.dir, feedbackFile) }
func (e *Engine) statePath() string { return filepath.Join(e.dir, feedbackStateFile) }

// Record appends an entry to the feedback log without applying it. Used by
// external capture surfaces; the entry is applied on the next maintenance
// run.
func (e *Engine) Record(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.now()
	}
	return fsx.AppendLine(e.logPath(), entry)
}

// Apply adjusts a memory for one feedback outcome and returns the updated
// memory.
func (e *Engine) Apply(memoryID string, outcome Outcome, delta float64) (*models.Memory, error) {
	switch outcome {
	case OutcomeAccepted, OutcomeRejected, OutcomeSuperseded:
	default:
		return nil, &models.ValidationError{Field: "outcome", Reason: fmt.Sprintf("unknown outcome %q", outcome)}
	}
	now := e.now()
	return e.store.Update(memoryID, func(m *models.Memory) {
		meta := &m.Metadata
		switch outcome {
		case OutcomeAccepted:
			meta.Confidence = models.ClampConfidence(meta.Confidence + acceptedBoost)
			meta.PositiveCount++
			if meta.Status == models.StatusArchived {
				// Explicit reinforcement is the one path out of archived.
				meta.Status = models.StatusActive
			}
			if meta.Status == models.StatusUnderReview && meta.Confidence >= reviewThreshold {
				meta.Status = models.StatusActive
			}
		case OutcomeRejected:
			meta.Confidence = models.ClampConfidence(meta.Confidence - rejectedPenalty)
			meta.NegativeCount++
			if meta.Confidence < archiveThreshold {
				meta.Status = models.StatusArchived
			} else if meta.Confidence < reviewThreshold {
				meta.Status = models.StatusUnderReview
			}
		case OutcomeSuperseded:
			meta.Status = models.StatusSuperseded
		}
		if delta != 0 {
			meta.Confidence = models.ClampConfidence(meta.Confidence + delta)
		}
		meta.LastAccessed = now
		meta.AccessCount++
	})
}

// Reinforce applies accepted feedback immediately and records it for
// audit.
func (e *Engine) Reinforce(memoryID string) (*models.Memory, error) {
	m, err := e.Apply(memoryID, OutcomeAccepted, 0)
	if err != nil {
		return nil, err
	}
	e.audit(Entry{MemoryID: memoryID, Outcome: OutcomeAccepted})
	return m, nil
}

// Correct applies rejected feedback immediately. When correctAction names
// the right behavior, a correction memory is created referencing the
// corrected one.
func (e *Engine) Correct(memoryID, feedbackText, correctAction string) (*models.Memory, string, error) {
	m, err := e.Apply(memoryID, OutcomeRejected, 0)
	if err != nil {
		return nil, "", err
	}
	e.audit(Entry{MemoryID: memoryID, Outcome: OutcomeRejected, Feedback: feedbackText, CorrectAction: correctAction})

	correctionID := ""
	if correctAction != "" {
		correctionID, err = e.createCorrection(m, feedbackText, correctAction)
		if err != nil {
			e.lg.Warn("creating correction memory failed", "memory", memoryID, "error", err)
			err = nil
		}
	}
	return m, correctionID, nil
}

// AddEvidence appends an evidence entry with an optional small confidence
// nudge, without changing status.
func (e *Engine) AddEvidence(memoryID string, ev models.Evidence, nudge float64) (*models.Memory, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	return e.store.Update(memoryID, func(m *models.Memory) {
		m.Evidence = append(m.Evidence, ev)
		if nudge != 0 {
			m.Metadata.Confidence = models.ClampConfidence(m.Metadata.Confidence + nudge)
		}
	})
}

// createCorrection materializes a correction memory superseding nothing
// but pointing back at the corrected memory.
func (e *Engine) createCorrection(corrected *models.Memory, feedbackText, correctAction string) (string, error) {
	title := textnorm.Truncate(correctAction, 60)
	m := &models.Memory{
		Type:  models.MemoryTypeCorrection,
		Scope: corrected.Scope,
		Content: models.Content{
			Title:       "Correction: " + title,
			Description: feedbackText,
			Action:      correctAction,
		},
		Metadata: models.Metadata{
			Confidence: 0.7,
			Source:     "correction",
			Status:     models.StatusActive,
		},
		Evidence: []models.Evidence{{
			Timestamp:   e.now(),
			Description: "correction of " + corrected.ID + ": " + feedbackText,
			Source:      "feedback",
		}},
		Tags:          []string{"correction"},
		Relationships: models.Relationships{RelatedIDs: []string{corrected.ID}},
	}
	if m.Content.Description == "" {
		m.Content.Description = correctAction
	}
	if err := e.store.Create(m); err != nil {
		return "", err
	}
	return m.ID, nil
}

// ProcessPending applies every unapplied feedback entry recorded after the
// watermark. Returns counts of processed entries and errors.
func (e *Engine) ProcessPending() (map[string]int, error) {
	stats := map[string]int{"processed": 0, "corrections": 0, "errors": 0}

	var st feedbackState
	if err := fsx.ReadJSON(e.statePath(), &st); err != nil && !errors.Is(err, os.ErrNotExist) {
		return stats, err
	}

	var pending []Entry
	if err := fsx.EachLine(e.logPath(), func(entry Entry) error {
		if entry.Applied || !entry.Timestamp.After(st.LastProcessed) {
			return nil
		}
		pending = append(pending, entry)
		return nil
	}); err != nil {
		return stats, err
	}
	if len(pending) == 0 {
		return stats, nil
	}

	last := st.LastProcessed
	for _, entry := range pending {
		if entry.Timestamp.After(last) {
			last = entry.Timestamp
		}
		m, err := e.Apply(entry.MemoryID, entry.Outcome, entry.Delta)
		if err != nil {
			e.lg.Warn("applying feedback failed", "memory", entry.MemoryID, "error", err)
			stats["errors"]++
			continue
		}
		stats["processed"]++
		if entry.Outcome == OutcomeRejected && entry.CorrectAction != "" {
			if _, err := e.createCorrection(m, entry.Feedback, entry.CorrectAction); err != nil {
				e.lg.Warn("creating correction memory failed", "memory", entry.MemoryID, "error", err)
			} else {
				stats["corrections"]++
			}
		}
	}
	if err := fsx.WriteJSON(e.statePath(), feedbackState{LastProcessed: last}); err != nil {
		return stats, err
	}
	return stats, nil
}

func (e *Engine) audit(entry Entry) {
	entry.Timestamp = e.now()
	entry.Applied = true
	if err := fsx.AppendLine(e.logPath(), entry); err != nil {
		e.lg.Warn("feedback audit append failed", "error", err)
	}
}
