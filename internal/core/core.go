// Package core wires the components together and exposes the external
// interface consumed by the CLI and other surrounding surfaces. Two
// philosophies apply: the capture path absorbs every failure and reports
// success, and the maintenance path runs every step even when an earlier
// one fails, aggregating errors into the report.
package core

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/engramdev/engram/internal/config"
	"github.com/engramdev/engram/internal/detect"
	"github.com/engramdev/engram/internal/eventlog"
	"github.com/engramdev/engram/internal/feedback"
	"github.com/engramdev/engram/internal/search"
	"github.com/engramdev/engram/internal/session"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/internal/syncdoc"
	"github.com/engramdev/engram/pkg/models"
)

// Core is the assembled memory system for one state root.
type Core struct {
	Dir      string
	Config   *config.Config
	Log      *eventlog.Log
	Sessions *session.Tracker
	Store    *store.Store
	Detector *detect.Detector
	Feedback *feedback.Engine
	Searcher *search.Searcher
	Merger   *syncdoc.Merger

	lg  *slog.Logger
	now func() time.Time
}

// Open assembles a Core over the state root dir.
func Open(dir string, cfg *config.Config, lg *slog.Logger) *Core {
	log := eventlog.New(dir)
	st := store.New(dir, lg)
	return &Core{
		Dir:      dir,
		Config:   cfg,
		Log:      log,
		Sessions: session.New(dir, log, lg),
		Store:    st,
		Detector: detect.New(dir, log, st, cfg.Analysis.MinConfidence, lg),
		Feedback: feedback.New(dir, st, lg),
		Searcher: search.NewSearcher(dir, st, lg),
		Merger: syncdoc.New(st, syncdoc.Options{
			PromoteThreshold: cfg.Sync.PromoteThreshold,
			MinPositiveRatio: cfg.Sync.MinPositiveRatio,
			ImportConfidence: cfg.Sync.ImportConfidence,
		}, lg),
		lg:  lg,
		now: time.Now,
	}
}

// Logger exposes the core's logger to consumers that feed it, such as the
// file watcher.
func (c *Core) Logger() *slog.Logger { return c.lg }

// RecordObservation captures one event. It never returns an error: any
// failure downstream of "observation accepted" is logged and absorbed so
// the interactive session is never blocked by a memory-system fault.
func (c *Core) RecordObservation(obsType string, data map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			c.lg.Error("capture panicked", "panic", r)
		}
	}()
	obs := &models.Observation{
		Timestamp: c.now(),
		SessionID: c.Sessions.ActiveID(),
		Type:      models.ObservationType(obsType),
		Data:      data,
	}
	if err := c.Log.Append(obs); err != nil {
		c.lg.Error("capture append failed", "error", err)
	}
}

// StartSession recovers orphans and opens a new session.
func (c *Core) StartSession(projectPath string) (*models.Session, error) {
	return c.Sessions.Start(projectPath)
}

// EndSession closes a session and returns its summary.
func (c *Core) EndSession(sessionID string) (*models.SessionSummary, error) {
	return c.Sessions.End(sessionID)
}

// RunAnalysis runs one pattern-detection pass and rebuilds the search
// index when memories were created.
func (c *Core) RunAnalysis() ([]string, error) {
	created, err := c.Detector.Run()
	if err != nil {
		return created, err
	}
	if len(created) > 0 {
		if rerr := c.Searcher.Rebuild(); rerr != nil {
			c.lg.Warn("index rebuild after analysis failed", "error", rerr)
		}
	}
	return created, nil
}

// AnalysisDue reports whether the unprocessed-observation count has
// crossed the configured threshold.
func (c *Core) AnalysisDue() bool {
	pending, err := c.Detector.Pending()
	if err != nil {
		return false
	}
	return pending >= c.Config.Analysis.Threshold
}

// RunMaintenance runs feedback processing, decay, archival and index
// rebuild, in that fixed order. A failing step is recorded in the report
// and never prevents the following steps from running.
func (c *Core) RunMaintenance() *models.MaintenanceReport {
	report := &models.MaintenanceReport{RanAt: c.now()}

	step := func(name models.MaintenanceStep, run func() (map[string]int, error)) {
		details, err := run()
		res := models.StepResult{Step: name, Details: details}
		if err != nil {
			res.Error = err.Error()
			c.lg.Warn("maintenance step failed", "step", name, "error", err)
		}
		report.Steps = append(report.Steps, res)
	}

	step(models.StepFeedback, c.Feedback.ProcessPending)
	step(models.StepDecay, func() (map[string]int, error) {
		return c.Feedback.DecayAll(c.Config.Decay.Base, c.Config.Decay.ArchiveBelow)
	})
	step(models.StepArchival, func() (map[string]int, error) {
		return c.Feedback.ArchiveSweep(c.Config.Decay.ArchiveBelow)
	})
	step(models.StepIndex, func() (map[string]int, error) {
		warnings, err := c.Store.RebuildIndex()
		for _, w := range warnings {
			c.lg.Warn("index consistency", "detail", w.Detail)
		}
		if err != nil {
			return nil, err
		}
		if err := c.Searcher.Rebuild(); err != nil {
			return nil, err
		}
		return map[string]int{"warnings": len(warnings)}, nil
	})
	return report
}

// Search runs a ranked query.
func (c *Core) Search(query string, projectHash string, filter models.Filter) ([]search.Result, error) {
	return c.Searcher.Search(search.Query{Text: query, ProjectHash: projectHash, Filter: filter})
}

// GetMemory loads one memory by ID.
func (c *Core) GetMemory(id string) (*models.Memory, error) {
	return c.Store.Get(id)
}

// ListMemories lists memories matching the filter.
func (c *Core) ListMemories(filter models.Filter) ([]models.Memory, error) {
	return c.Store.List(filter)
}

// Reinforce applies positive feedback to a memory.
func (c *Core) Reinforce(id string) (*models.Memory, error) {
	return c.Feedback.Reinforce(id)
}

// Correct applies negative feedback, optionally creating a correction
// memory describing the right behavior.
func (c *Core) Correct(id, feedbackText, correctAction string) (*models.Memory, string, error) {
	return c.Feedback.Correct(id, feedbackText, correctAction)
}

// Archive moves a memory to the terminal archived state. The record file
// is retained for audit.
func (c *Core) Archive(id string) (*models.Memory, error) {
	return c.Store.Update(id, func(m *models.Memory) {
		m.Metadata.Status = models.StatusArchived
	})
}

// SyncDocument merges memories with a preference document.
func (c *Core) SyncDocument(mode string, docPath string, scope models.Scope) (*models.SyncReport, error) {
	var m syncdoc.Mode
	switch syncdoc.Mode(mode) {
	case syncdoc.ModePromote, syncdoc.ModeImport, syncdoc.ModeBoth:
		m = syncdoc.Mode(mode)
	default:
		return nil, fmt.Errorf("unknown sync mode %q", mode)
	}
	return c.Merger.Sync(m, docPath, scope)
}
