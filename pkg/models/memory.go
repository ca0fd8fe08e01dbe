package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MemoryType represents the category of a memory
type MemoryType string

const (
	MemoryTypePreference MemoryType = "preference"
	MemoryTypePattern    MemoryType = "pattern"
	MemoryTypeCorrection MemoryType = "correction"
	MemoryTypeProject    MemoryType = "project"
	MemoryTypeNegative   MemoryType = "negative"
	MemoryTypeWorkflow   MemoryType = "workflow"
)

// ValidMemoryType reports whether t is one of the known memory types.
func ValidMemoryType(t MemoryType) bool {
	switch t {
	case MemoryTypePreference, MemoryTypePattern, MemoryTypeCorrection,
		MemoryTypeProject, MemoryTypeNegative, MemoryTypeWorkflow:
		return true
	}
	return false
}

// MemoryStatus represents the lifecycle state of a memory
type MemoryStatus string

const (
	StatusActive      MemoryStatus = "active"
	StatusUnderReview MemoryStatus = "under_review"
	StatusSuperseded  MemoryStatus = "superseded"
	StatusArchived    MemoryStatus = "archived"
)

// ScopeGlobal marks a memory that applies everywhere; anything else is a
// project scope identified by the project hash.
const ScopeGlobal = "global"

// Scope identifies where a memory applies. Immutable after creation.
type Scope struct {
	Type        string `json:"type"` // "global" or "project"
	ProjectHash string `json:"projectHash,omitempty"`
	ProjectPath string `json:"projectPath,omitempty"`
}

// Global reports whether the scope is the global partition.
func (s Scope) Global() bool { return s.Type != "project" }

// GlobalScope returns the global scope value.
func GlobalScope() Scope { return Scope{Type: ScopeGlobal} }

// ProjectScope returns a project scope for the given root path and hash.
func ProjectScope(path, hash string) Scope {
	return Scope{Type: "project", ProjectPath: path, ProjectHash: hash}
}

// Content is the human-facing body of a memory.
type Content struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Action      string   `json:"action,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

// Triggers describe when a memory should surface.
type Triggers struct {
	Keywords []string `json:"keywords,omitempty"`
	Patterns []string `json:"patterns,omitempty"` // regex source strings
	Files    []string `json:"files,omitempty"`
}

// Metadata tracks the belief and lifecycle state of a memory.
type Metadata struct {
	Confidence    float64      `json:"confidence"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastAccessed  time.Time    `json:"lastAccessed"`
	LastDecayed   time.Time    `json:"lastDecayed,omitzero"`
	AccessCount   int          `json:"accessCount"`
	PositiveCount int          `json:"positiveCount"`
	NegativeCount int          `json:"negativeCount"`
	Source        string       `json:"source"` // "analysis", "manual", "import", "correction"
	Status        MemoryStatus `json:"status"`
}

// PositiveRatio returns positive/(positive+negative), defined as 1.0 when
// no feedback exists so decay is unmodified absent signal.
func (m *Metadata) PositiveRatio() float64 {
	total := m.PositiveCount + m.NegativeCount
	if total == 0 {
		return 1.0
	}
	return float64(m.PositiveCount) / float64(total)
}

// Evidence ties a memory back to the observations that justified it.
type Evidence struct {
	Timestamp     time.Time `json:"timestamp"`
	Description   string    `json:"description"`
	SessionID     string    `json:"sessionId,omitempty"`
	ObservationID string    `json:"observationId,omitempty"`
	Source        string    `json:"source,omitempty"`
}

// Relationships link a memory to its relatives and successors.
type Relationships struct {
	RelatedIDs   []string `json:"relatedIds,omitempty"`
	Supersedes   string   `json:"supersedes,omitempty"`
	SupersededBy string   `json:"supersededBy,omitempty"`
}

// Memory is the durable learned unit.
type Memory struct {
	ID            string        `json:"id"`
	Type          MemoryType    `json:"type"`
	Scope         Scope         `json:"scope"`
	Content       Content       `json:"content"`
	Triggers      Triggers      `json:"triggers"`
	Metadata      Metadata      `json:"metadata"`
	Evidence      []Evidence    `json:"evidence"`
	Tags          []string      `json:"tags,omitempty"`
	Relationships Relationships `json:"relationships,omitzero"`
}

// Validate checks the construction-time invariants. Returns a
// *ValidationError describing the first violation.
func (m *Memory) Validate() error {
	if m.ID == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if !ValidMemoryType(m.Type) {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown type %q", m.Type)}
	}
	if strings.TrimSpace(m.Content.Title) == "" {
		return &ValidationError{Field: "content.title", Reason: "required"}
	}
	if strings.TrimSpace(m.Content.Description) == "" {
		return &ValidationError{Field: "content.description", Reason: "required"}
	}
	if m.Metadata.Confidence < 0 || m.Metadata.Confidence > 1 {
		return &ValidationError{Field: "metadata.confidence", Reason: "must be in [0,1]"}
	}
	if len(m.Evidence) == 0 {
		return &ValidationError{Field: "evidence", Reason: "at least one entry required"}
	}
	for _, p := range m.Triggers.Patterns {
		if _, err := regexp.Compile(p); err != nil {
			return &ValidationError{Field: "triggers.patterns", Reason: fmt.Sprintf("invalid regex %q", p)}
		}
	}
	return nil
}

// ClampConfidence forces confidence back into [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// slugPattern strips everything that is not a lowercase word character.
var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug converts a title into a short id-safe fragment.
func Slug(title string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "memory"
	}
	return s
}

// NewMemoryID derives a globally-unique memory ID from the creation time
// and a slug of the title.
func NewMemoryID(createdAt time.Time, title string) string {
	return createdAt.UTC().Format("20060102-150405") + "-" + Slug(title)
}

// Filter selects memories in list and search operations.
type Filter struct {
	Scope         string // "", "global" or a project hash
	Type          MemoryType
	Tag           string
	MinConfidence float64
	Status        MemoryStatus
	Limit         int
}

// Matches reports whether m passes the filter. Status "" matches every
// status except archived, mirroring the retrieval default.
func (f Filter) Matches(m *Memory) bool {
	if f.Scope == ScopeGlobal && !m.Scope.Global() {
		return false
	}
	if f.Scope != "" && f.Scope != ScopeGlobal && m.Scope.ProjectHash != f.Scope {
		return false
	}
	if f.Type != "" && m.Type != f.Type {
		return false
	}
	if m.Metadata.Confidence < f.MinConfidence {
		return false
	}
	if f.Status == "" {
		if m.Metadata.Status == StatusArchived {
			return false
		}
	} else if m.Metadata.Status != f.Status {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range m.Tags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
