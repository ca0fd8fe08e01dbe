package models

import "time"

// Session is a logical grouping of observations between a session_start and
// a session_end (real or synthetic).
type Session struct {
	ID               string     `json:"id"`
	ProjectPath      string     `json:"projectPath"`
	ProjectHash      string     `json:"projectHash"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	DurationMinutes  int        `json:"durationMinutes"`
	ObservationCount int        `json:"observationCount"`
	Recovered        bool       `json:"recovered"`
}

// Active reports whether the session has a start but no end.
func (s *Session) Active() bool {
	return s.EndedAt == nil
}

// SessionSummary is returned to the caller when a session ends.
type SessionSummary struct {
	SessionID        string `json:"sessionId"`
	ProjectPath      string `json:"projectPath"`
	DurationMinutes  int    `json:"durationMinutes"`
	ObservationCount int    `json:"observationCount"`
	Recovered        bool   `json:"recovered"`
}
