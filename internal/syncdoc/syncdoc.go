// Package syncdoc performs the bidirectional marker-based merge between
// high-confidence memories and a user-editable preference document.
// Everything outside the marker block is untouched byte-for-byte; promote
// is a pure text transform and re-running it with no confidence changes
// yields identical output.
package syncdoc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/engramdev/engram/internal/fsx"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/internal/textnorm"
	"github.com/engramdev/engram/pkg/models"
)

const (
	markerStart = "<!-- memory-sync: start -->"
	markerEnd   = "<!-- memory-sync: end -->"

	minRuleLength = 10
	maxKeywords   = 5
	maxExamples   = 3
)

var blockPattern = regexp.MustCompile(`(?s)<!--\s*memory-sync:\s*start\s*-->.*?<!--\s*memory-sync:\s*end\s*-->`)

// Mode selects the sync direction.
type Mode string

const (
	ModePromote Mode = "promote"
	ModeImport  Mode = "import"
	ModeBoth    Mode = "both"
)

// Options tune the merge.
type Options struct {
	PromoteThreshold float64 // minimum confidence for promotion
	MinPositiveRatio float64 // feedback-quality gate, no-feedback ratio is 1.0
	ImportConfidence float64 // initial confidence of imported rules
}

// Merger syncs one memory store against preference documents.
type Merger struct {
	store *store.Store
	opts  Options
	lg    *slog.Logger
	now   func() time.Time
}

// New returns a Merger.
func New(st *store.Store, opts Options, lg *slog.Logger) *Merger {
	return &Merger{store: st, opts: opts, lg: lg, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (g *Merger) SetClock(now func() time.Time) { g.now = now }

// Sync runs the requested directions against the document. Both runs
// import first, so freshly imported rules are eligible for the same
// promotion pass.
func (g *Merger) Sync(mode Mode, docPath string, scope models.Scope) (*models.SyncReport, error) {
	report := &models.SyncReport{DocumentPath: docPath}

	if mode == ModeImport || mode == ModeBoth {
		created, skipped, err := g.Import(docPath, scope)
		if err != nil {
			return report, err
		}
		report.Imported = created
		report.Skipped = skipped
	}
	if mode == ModePromote || mode == ModeBoth {
		promoted, changed, err := g.Promote(docPath, scope)
		if err != nil {
			return report, err
		}
		report.Promoted = promoted
		report.Changed = changed
	}
	return report, nil
}

// Promote renders the qualifying memories into the marker block of the
// document, appending a new block at the end when no markers exist.
// Returns the promoted IDs and whether the document bytes changed.
func (g *Merger) Promote(docPath string, scope models.Scope) ([]string, bool, error) {
	promoted, err := g.candidates(scope)
	if err != nil {
		return nil, false, err
	}

	var original string
	data, err := os.ReadFile(docPath)
	switch {
	case err == nil:
		original = string(data)
	case errors.Is(err, os.ErrNotExist):
		original = ""
	default:
		return nil, false, fmt.Errorf("read document: %w", err)
	}

	block := renderBlock(promoted)
	var updated string
	if blockPattern.MatchString(original) {
		replacedOnce := false
		updated = blockPattern.ReplaceAllStringFunc(original, func(old string) string {
			if replacedOnce {
				return old
			}
			replacedOnce = true
			return block
		})
	} else if original == "" {
		updated = block + "\n"
	} else {
		updated = strings.TrimRight(original, "\n") + "\n\n" + block + "\n"
	}

	changed := updated != original
	if changed {
		if err := fsx.WriteAtomic(docPath, []byte(updated), 0o644); err != nil {
			return nil, false, err
		}
	}

	ids := make([]string, 0, len(promoted))
	for i := range promoted {
		ids = append(ids, promoted[i].ID)
	}
	return ids, changed, nil
}

// candidates selects memories eligible for promotion, ordered
// deterministically.
func (g *Merger) candidates(scope models.Scope) ([]models.Memory, error) {
	filter := models.Filter{
		MinConfidence: g.opts.PromoteThreshold,
		Status:        models.StatusActive,
	}
	if scope.Global() {
		filter.Scope = models.ScopeGlobal
	} else {
		filter.Scope = scope.ProjectHash
	}
	memories, err := g.store.List(filter)
	if err != nil {
		return nil, err
	}
	var out []models.Memory
	for i := range memories {
		if memories[i].Metadata.PositiveRatio() < g.opts.MinPositiveRatio {
			continue
		}
		out = append(out, memories[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// typeOrder fixes the section order of the rendered block.
var typeOrder = []models.MemoryType{
	models.MemoryTypePreference,
	models.MemoryTypePattern,
	models.MemoryTypeWorkflow,
	models.MemoryTypeProject,
	models.MemoryTypeCorrection,
	models.MemoryTypeNegative,
}

var typeTitles = map[models.MemoryType]string{
	models.MemoryTypePreference: "Preferences",
	models.MemoryTypePattern:    "Patterns & Conventions",
	models.MemoryTypeWorkflow:   "Workflows",
	models.MemoryTypeProject:    "Project-Specific",
	models.MemoryTypeCorrection: "Learned Corrections",
	models.MemoryTypeNegative:   "Avoid",
}

func renderBlock(memories []models.Memory) string {
	var b strings.Builder
	b.WriteString(markerStart + "\n")
	b.WriteString("<!-- Auto-updated from high-confidence memories. Edit outside this block; correct via feedback. -->\n")

	byType := map[models.MemoryType][]models.Memory{}
	for i := range memories {
		byType[memories[i].Type] = append(byType[memories[i].Type], memories[i])
	}
	for _, t := range typeOrder {
		group := byType[t]
		if len(group) == 0 {
			continue
		}
		b.WriteString("\n### " + typeTitles[t] + "\n\n")
		for i := range group {
			b.WriteString(renderEntry(&group[i]))
		}
	}
	b.WriteString(markerEnd)
	return b.String()
}

func renderEntry(m *models.Memory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- source: %s, confidence: %.2f -->\n", m.ID, m.Metadata.Confidence)
	fmt.Fprintf(&b, "- **%s**\n", m.Content.Title)
	fmt.Fprintf(&b, "  - %s\n", m.Content.Description)
	if m.Content.Action != "" {
		fmt.Fprintf(&b, "  - %s\n", m.Content.Action)
	}
	for i, ex := range m.Content.Examples {
		if i >= maxExamples {
			break
		}
		fmt.Fprintf(&b, "  - Example: `%s`\n", ex)
	}
	return b.String()
}

var rulePattern = regexp.MustCompile(`(?m)^\s*[-*]\s+(.+)$`)

// Import parses manually-authored bullet rules outside the marker block
// and creates memories from them at a fixed low initial confidence,
// skipping rules whose normalized title matches an existing memory.
func (g *Merger) Import(docPath string, scope models.Scope) ([]string, int, error) {
	data, err := os.ReadFile(docPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read document: %w", err)
	}
	manual := blockPattern.ReplaceAllString(string(data), "")

	existing, err := g.store.All()
	if err != nil {
		return nil, 0, err
	}
	known := map[string]bool{}
	for i := range existing {
		known[textnorm.NormalizeTitle(existing[i].Content.Title)] = true
	}

	var created []string
	skipped := 0
	for _, match := range rulePattern.FindAllStringSubmatch(manual, -1) {
		rule := strings.TrimSpace(match[1])
		rule = strings.Trim(rule, "*")
		if len(rule) < minRuleLength {
			continue
		}
		title := rule
		if truncated := textnorm.Truncate(title, 60); truncated != title {
			title = truncated + "..."
		}
		norm := textnorm.NormalizeTitle(title)
		if norm == "" || known[norm] {
			skipped++
			continue
		}

		keywords := textnorm.Keywords(rule)
		if len(keywords) > maxKeywords {
			keywords = keywords[:maxKeywords]
		}
		action := rule
		if len(action) > 100 {
			action = action[:100]
		}
		m := &models.Memory{
			Type:  inferType(rule),
			Scope: scope,
			Content: models.Content{
				Title:       title,
				Description: rule,
				Action:      "Follow this rule: " + action,
			},
			Triggers: models.Triggers{Keywords: keywords},
			Metadata: models.Metadata{
				Confidence: g.opts.ImportConfidence,
				Source:     "import",
				Status:     models.StatusActive,
			},
			Evidence: []models.Evidence{{
				Timestamp:   g.now(),
				Description: "Imported from " + docPath,
				Source:      "import",
			}},
			Tags: []string{"imported", string(inferType(rule))},
		}
		if err := g.store.Create(m); err != nil {
			g.lg.Warn("importing rule failed", "rule", title, "error", err)
			continue
		}
		known[norm] = true
		created = append(created, m.ID)
	}
	return created, skipped, nil
}

// inferType guesses the memory type of a manual rule from its phrasing.
func inferType(rule string) models.MemoryType {
	lower := strings.ToLower(rule)
	contains := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case contains("prefer", "always use", "never use"):
		return models.MemoryTypePreference
	case contains("pattern", "convention", "style"):
		return models.MemoryTypePattern
	case contains("before", "after", "workflow", "process"):
		return models.MemoryTypeWorkflow
	case contains("never", "avoid", "don't", "do not"):
		return models.MemoryTypeNegative
	default:
		return models.MemoryTypeProject
	}
}
