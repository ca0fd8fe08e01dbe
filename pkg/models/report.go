package models

import "time"

// MaintenanceStep names one phase of a maintenance run.
type MaintenanceStep string

const (
	StepFeedback MaintenanceStep = "feedback"
	StepDecay    MaintenanceStep = "decay"
	StepArchival MaintenanceStep = "archival"
	StepIndex    MaintenanceStep = "index"
)

// StepResult reports one maintenance step. A failing step never prevents
// later steps from running; its error is carried here instead.
type StepResult struct {
	Step    MaintenanceStep `json:"step"`
	Error   string          `json:"error,omitempty"`
	Details map[string]int  `json:"details,omitempty"`
}

// MaintenanceReport aggregates the per-step results of one maintenance run.
type MaintenanceReport struct {
	RanAt time.Time    `json:"ranAt"`
	Steps []StepResult `json:"steps"`
}

// Failed reports whether any step recorded an error.
func (r *MaintenanceReport) Failed() bool {
	for _, s := range r.Steps {
		if s.Error != "" {
			return true
		}
	}
	return false
}

// SyncReport describes the outcome of a document sync.
type SyncReport struct {
	DocumentPath string   `json:"documentPath"`
	Imported     []string `json:"imported,omitempty"` // created memory IDs
	Promoted     []string `json:"promoted,omitempty"` // promoted memory IDs
	Skipped      int      `json:"skipped"`            // import candidates suppressed as duplicates
	Changed      bool     `json:"changed"`            // document bytes were rewritten
}
