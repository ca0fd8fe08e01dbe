package models

import "time"

// ObservationType represents the kind of captured event
type ObservationType string

const (
	ObservationPrompt       ObservationType = "prompt"
	ObservationToolUse      ObservationType = "tool_use"
	ObservationFileModified ObservationType = "file_modified"
	ObservationSessionStart ObservationType = "session_start"
	ObservationSessionEnd   ObservationType = "session_end"
)

// maxPayloadBytes caps the size of a single observation payload value.
const maxPayloadBytes = 4096

// Observation is one immutable captured event. Once appended to the log it
// is never mutated, only moved to the archive.
type Observation struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	Sequence  int             `json:"sequence"`
	Type      ObservationType `json:"type"`
	Data      map[string]any  `json:"data,omitempty"`
}

// validTypes is the closed set of observation types accepted by capture.
var validObservationTypes = map[ObservationType]bool{
	ObservationPrompt:       true,
	ObservationToolUse:      true,
	ObservationFileModified: true,
	ObservationSessionStart: true,
	ObservationSessionEnd:   true,
}

// Normalize repairs malformed fields in place rather than rejecting them.
// Capture must never block the interactive session on bad input, so an
// unknown type becomes tool_use, oversized payload values are truncated and
// a zero timestamp is replaced with now.
func (o *Observation) Normalize(now time.Time) {
	if !validObservationTypes[o.Type] {
		o.Type = ObservationToolUse
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = now
	}
	for k, v := range o.Data {
		if s, ok := v.(string); ok && len(s) > maxPayloadBytes {
			o.Data[k] = s[:maxPayloadBytes]
		}
	}
}

// DataString returns a string payload field, or "" when absent or not a
// string.
func (o *Observation) DataString(key string) string {
	if o.Data == nil {
		return ""
	}
	s, _ := o.Data[key].(string)
	return s
}

// DataBool returns a bool payload field, false when absent.
func (o *Observation) DataBool(key string) bool {
	if o.Data == nil {
		return false
	}
	b, _ := o.Data[key].(bool)
	return b
}
