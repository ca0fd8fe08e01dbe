// Package detect is the batch pattern detector: it scans observations
// recorded after the last analysis watermark, groups them into candidate
// patterns, scores each candidate and materializes the survivors as
// memories.
package detect

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/engramdev/engram/internal/eventlog"
	"github.com/engramdev/engram/internal/fsx"
	"github.com/engramdev/engram/internal/store"
	"github.com/engramdev/engram/internal/textnorm"
	"github.com/engramdev/engram/pkg/models"
)

const stateFile = "analysis-state.json"

// Detection thresholds per pattern class.
const (
	minToolUses      = 3
	minWeakSignals   = 2
	minWorkflowRuns  = 3
	minOrganizeFiles = 5
	workflowLength   = 3
	recentEvidence   = 7 * 24 * time.Hour
	duplicateOverlap = 0.7
)

// state is the durable analysis watermark.
type state struct {
	LastAnalyzed time.Time `json:"lastAnalyzed"`
}

// Detector runs detection passes for one state root.
type Detector struct {
	dir        string
	log        *eventlog.Log
	store      *store.Store
	classifier SignalClassifier
	minConf    float64
	lg         *slog.Logger
	now        func() time.Time
}

// New returns a Detector using the regex signal classifier.
func New(dir string, log *eventlog.Log, st *store.Store, minConfidence float64, lg *slog.Logger) *Detector {
	return &Detector{
		dir:        dir,
		log:        log,
		store:      st,
		classifier: RegexClassifier{},
		minConf:    minConfidence,
		lg:         lg,
		now:        time.Now,
	}
}

// SetClassifier swaps the signal classification strategy.
func (d *Detector) SetClassifier(c SignalClassifier) { d.classifier = c }

// SetClock replaces the time source. Tests only.
func (d *Detector) SetClock(now func() time.Time) { d.now = now }

func (d *Detector) statePath() string { return filepath.Join(d.dir, stateFile) }

// Watermark returns the timestamp of the last analyzed observation.
func (d *Detector) Watermark() time.Time {
	var st state
	if err := fsx.ReadJSON(d.statePath(), &st); err != nil {
		return time.Time{}
	}
	return st.LastAnalyzed
}

// Pending returns the number of observations recorded after the watermark.
func (d *Detector) Pending() (int, error) {
	obs, err := d.log.After(d.Watermark())
	if err != nil {
		return 0, err
	}
	return len(obs), nil
}

// candidate is a detected pattern that has not yet been materialized.
type candidate struct {
	memType      models.MemoryType
	title        string
	description  string
	action       string
	examples     []string
	keywords     []string
	files        []string
	tags         []string
	occurrences  int
	contradicted bool
	lastEvidence time.Time
	explicit     bool
	evidence     []models.Evidence
	scope        models.Scope
}

// confidence applies the scoring formula for a newly detected pattern.
func (c *candidate) confidence(now time.Time) float64 {
	occ := float64(c.occurrences) / 5.0
	if occ > 1 {
		occ = 1
	}
	score := 0.4 * occ
	if !c.contradicted {
		score += 0.3
	}
	if now.Sub(c.lastEvidence) <= recentEvidence {
		score += 0.2
	}
	if c.explicit {
		score += 0.1
	}
	return models.ClampConfidence(score)
}

// Run performs one detection pass: observations after the watermark are
// grouped, scored and materialized, then the watermark advances and the
// processed observations move to the archive. Returns created memory IDs.
func (d *Detector) Run() ([]string, error) {
	watermark := d.Watermark()
	observations, err := d.log.After(watermark)
	if err != nil {
		return nil, fmt.Errorf("scan observations: %w", err)
	}
	if len(observations) == 0 {
		return nil, nil
	}

	scopes, err := d.sessionScopes()
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	candidates = append(candidates, d.toolPreferences(observations, scopes)...)
	candidates = append(candidates, d.corrections(observations, scopes)...)
	candidates = append(candidates, d.workflows(observations, scopes)...)
	candidates = append(candidates, d.fileOrganization(observations, scopes)...)

	existing, err := d.store.List(models.Filter{Status: models.StatusActive})
	if err != nil {
		return nil, fmt.Errorf("list active memories: %w", err)
	}

	now := d.now()
	var created []string
	for i := range candidates {
		c := &candidates[i]
		conf := c.confidence(now)
		if conf < d.minConf {
			continue
		}
		if d.isDuplicate(c, existing) {
			d.lg.Debug("suppressed near-duplicate candidate", "title", c.title)
			continue
		}
		m := &models.Memory{
			Type:  c.memType,
			Scope: c.scope,
			Content: models.Content{
				Title:       c.title,
				Description: c.description,
				Action:      c.action,
				Examples:    c.examples,
			},
			Triggers: models.Triggers{Keywords: c.keywords, Files: c.files},
			Metadata: models.Metadata{
				Confidence: conf,
				Source:     "analysis",
				Status:     models.StatusActive,
			},
			Evidence: c.evidence,
			Tags:     c.tags,
		}
		if err := d.store.Create(m); err != nil {
			d.lg.Warn("materializing candidate failed", "title", c.title, "error", err)
			continue
		}
		existing = append(existing, *m)
		created = append(created, m.ID)
		d.lg.Info("created memory", "memory", m.ID, "type", m.Type, "confidence", conf)
	}

	last := observations[len(observations)-1]
	maxSeq := 0
	for i := range observations {
		if observations[i].Sequence > maxSeq {
			maxSeq = observations[i].Sequence
		}
	}
	if err := fsx.WriteJSON(d.statePath(), state{LastAnalyzed: last.Timestamp}); err != nil {
		return created, err
	}
	if err := d.log.Archive(maxSeq + 1); err != nil {
		return created, fmt.Errorf("archive processed observations: %w", err)
	}
	return created, nil
}

// sessionScopes maps session IDs to project scopes using session_start
// observations across the whole log (archive included).
func (d *Detector) sessionScopes() (map[string]models.Scope, error) {
	scopes := map[string]models.Scope{}
	collect := func(o models.Observation) {
		if o.Type != models.ObservationSessionStart {
			return
		}
		hash := o.DataString("projectHash")
		if hash == "" {
			return
		}
		scopes[o.SessionID] = models.ProjectScope(o.DataString("projectPath"), hash)
	}
	archived, err := d.log.Archived()
	if err != nil {
		return nil, err
	}
	live, err := d.log.All()
	if err != nil {
		return nil, err
	}
	for _, o := range archived {
		collect(o)
	}
	for _, o := range live {
		collect(o)
	}
	return scopes, nil
}

// alternativeGroups lists interchangeable tools; choosing one member while
// another from the same group appears in the batch counts as contradicting
// evidence.
var alternativeGroups = [][]string{
	{"pnpm", "npm", "yarn", "bun"},
	{"vitest", "jest", "mocha"},
	{"rg", "grep", "ack"},
	{"fd", "find"},
	{"uv", "pip", "poetry", "pipenv"},
	{"curl", "wget"},
	{"docker", "podman"},
}

func alternativesOf(tool string) []string {
	for _, group := range alternativeGroups {
		for _, member := range group {
			if member == tool {
				return group
			}
		}
	}
	return nil
}

func commandToken(o *models.Observation) string {
	cmd := o.DataString("command")
	if cmd == "" {
		cmd = o.DataString("tool")
	}
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

func (d *Detector) toolPreferences(observations []models.Observation, scopes map[string]models.Scope) []candidate {
	type usage struct {
		count    int
		sessions map[string]bool
		lastAt   time.Time
		examples []string
		evidence []models.Evidence
	}
	byTool := map[string]*usage{}
	seen := map[string]bool{}
	var order []string
	for i := range observations {
		o := &observations[i]
		if o.Type != models.ObservationToolUse {
			continue
		}
		tool := commandToken(o)
		if tool == "" {
			continue
		}
		seen[tool] = true
		u := byTool[tool]
		if u == nil {
			u = &usage{sessions: map[string]bool{}}
			byTool[tool] = u
			order = append(order, tool)
		}
		u.count++
		u.sessions[o.SessionID] = true
		if o.Timestamp.After(u.lastAt) {
			u.lastAt = o.Timestamp
		}
		if cmd := o.DataString("command"); cmd != "" && len(u.examples) < 3 {
			u.examples = append(u.examples, cmd)
		}
		u.evidence = append(u.evidence, models.Evidence{
			Timestamp:     o.Timestamp,
			Description:   "tool use: " + o.DataString("command"),
			SessionID:     o.SessionID,
			ObservationID: o.ID,
			Source:        "observation",
		})
	}

	var out []candidate
	for _, tool := range order {
		u := byTool[tool]
		if u.count < minToolUses {
			continue
		}
		contradicted := false
		for _, alt := range alternativesOf(tool) {
			if alt != tool && seen[alt] {
				contradicted = true
				break
			}
		}
		out = append(out, candidate{
			memType:      models.MemoryTypePreference,
			title:        "Prefer " + tool,
			description:  fmt.Sprintf("Command %q was used %d times across %d recent sessions.", tool, u.count, len(u.sessions)),
			action:       fmt.Sprintf("Use %s by default.", tool),
			examples:     u.examples,
			keywords:     []string{tool},
			tags:         []string{"tool", tool},
			occurrences:  u.count,
			contradicted: contradicted,
			lastEvidence: u.lastAt,
			evidence:     u.evidence,
			scope:        dominantScope(u.evidence, scopes),
		})
	}
	return out
}

func (d *Detector) corrections(observations []models.Observation, scopes map[string]models.Scope) []candidate {
	type corr struct {
		strong   int
		weak     int
		lastAt   time.Time
		texts    []string
		evidence []models.Evidence
	}
	byTarget := map[string]*corr{}
	var order []string
	for i := range observations {
		o := &observations[i]
		if o.Type != models.ObservationPrompt {
			continue
		}
		text := o.DataString("text")
		sig := d.classifier.Classify(text)
		if !sig.Correction() {
			continue
		}
		target := preferredAlternative(text)
		if target == "" {
			kws := textnorm.Keywords(text)
			if len(kws) == 0 {
				continue
			}
			target = kws[0]
		}
		c := byTarget[target]
		if c == nil {
			c = &corr{}
			byTarget[target] = c
			order = append(order, target)
		}
		if sig == SignalCorrectionStrong {
			c.strong++
		} else {
			c.weak++
		}
		if o.Timestamp.After(c.lastAt) {
			c.lastAt = o.Timestamp
		}
		if len(c.texts) < 3 {
			c.texts = append(c.texts, text)
		}
		c.evidence = append(c.evidence, models.Evidence{
			Timestamp:     o.Timestamp,
			Description:   "correction: " + text,
			SessionID:     o.SessionID,
			ObservationID: o.ID,
			Source:        "observation",
		})
	}

	var out []candidate
	for _, target := range order {
		c := byTarget[target]
		if c.strong == 0 && c.weak < minWeakSignals {
			continue
		}
		out = append(out, candidate{
			memType:      models.MemoryTypeCorrection,
			title:        "Correction: use " + target,
			description:  fmt.Sprintf("User corrected the assistant toward %q (%d strong, %d weak signals).", target, c.strong, c.weak),
			action:       fmt.Sprintf("Apply %s without being asked.", target),
			examples:     c.texts,
			keywords:     []string{target},
			tags:         []string{"correction"},
			occurrences:  c.strong + c.weak,
			lastEvidence: c.lastAt,
			explicit:     true,
			evidence:     c.evidence,
			scope:        dominantScope(c.evidence, scopes),
		})
	}
	return out
}

func (d *Detector) workflows(observations []models.Observation, scopes map[string]models.Scope) []candidate {
	type run struct {
		count    int
		lastAt   time.Time
		evidence []models.Evidence
	}
	perSession := map[string][]*models.Observation{}
	var sessionOrder []string
	for i := range observations {
		o := &observations[i]
		if o.Type != models.ObservationToolUse || commandToken(o) == "" {
			continue
		}
		if _, ok := perSession[o.SessionID]; !ok {
			sessionOrder = append(sessionOrder, o.SessionID)
		}
		perSession[o.SessionID] = append(perSession[o.SessionID], o)
	}

	sequences := map[string]*run{}
	var seqOrder []string
	for _, sid := range sessionOrder {
		seq := perSession[sid]
		for i := 0; i+workflowLength <= len(seq); i++ {
			tokens := make([]string, workflowLength)
			for j := 0; j < workflowLength; j++ {
				tokens[j] = commandToken(seq[i+j])
			}
			key := strings.Join(tokens, ", ")
			r := sequences[key]
			if r == nil {
				r = &run{}
				sequences[key] = r
				seqOrder = append(seqOrder, key)
			}
			r.count++
			last := seq[i+workflowLength-1]
			if last.Timestamp.After(r.lastAt) {
				r.lastAt = last.Timestamp
			}
			r.evidence = append(r.evidence, models.Evidence{
				Timestamp:     last.Timestamp,
				Description:   "tool sequence: " + key,
				SessionID:     sid,
				ObservationID: last.ID,
				Source:        "observation",
			})
		}
	}

	var out []candidate
	for _, key := range seqOrder {
		r := sequences[key]
		if r.count < minWorkflowRuns {
			continue
		}
		out = append(out, candidate{
			memType:      models.MemoryTypeWorkflow,
			title:        "Workflow: " + key,
			description:  fmt.Sprintf("The sequence %s was repeated %d times.", key, r.count),
			action:       "Follow this sequence when the first step appears.",
			keywords:     strings.Split(key, ", "),
			tags:         []string{"workflow"},
			occurrences:  r.count,
			lastEvidence: r.lastAt,
			evidence:     r.evidence,
			scope:        dominantScope(r.evidence, scopes),
		})
	}
	return out
}

func (d *Detector) fileOrganization(observations []models.Observation, scopes map[string]models.Scope) []candidate {
	type group struct {
		files    map[string]bool
		lastAt   time.Time
		evidence []models.Evidence
	}
	byConvention := map[string]*group{}
	var order []string
	for i := range observations {
		o := &observations[i]
		if o.Type != models.ObservationFileModified {
			continue
		}
		path := o.DataString("path")
		if path == "" {
			continue
		}
		dir := filepath.Base(filepath.Dir(path))
		ext := strings.ToLower(filepath.Ext(path))
		if dir == "." || dir == "/" || ext == "" {
			continue
		}
		key := dir + "/*" + ext
		g := byConvention[key]
		if g == nil {
			g = &group{files: map[string]bool{}}
			byConvention[key] = g
			order = append(order, key)
		}
		if !g.files[path] {
			g.files[path] = true
			g.evidence = append(g.evidence, models.Evidence{
				Timestamp:     o.Timestamp,
				Description:   "file modified: " + path,
				SessionID:     o.SessionID,
				ObservationID: o.ID,
				Source:        "observation",
			})
		}
		if o.Timestamp.After(g.lastAt) {
			g.lastAt = o.Timestamp
		}
	}

	var out []candidate
	for _, key := range order {
		g := byConvention[key]
		if len(g.files) < minOrganizeFiles {
			continue
		}
		files := make([]string, 0, len(g.files))
		for f := range g.files {
			files = append(files, f)
		}
		sort.Strings(files)
		out = append(out, candidate{
			memType:      models.MemoryTypePattern,
			title:        "Files follow " + key,
			description:  fmt.Sprintf("%d files follow the %s convention.", len(g.files), key),
			action:       "Place new files of this kind under the same convention.",
			files:        files[:min(len(files), 5)],
			keywords:     textnorm.Keywords(key),
			tags:         []string{"file-organization"},
			occurrences:  len(g.files),
			lastEvidence: g.lastAt,
			evidence:     g.evidence,
			scope:        dominantScope(g.evidence, scopes),
		})
	}
	return out
}

// dominantScope returns the project scope shared by every evidence entry's
// session, or the global scope when evidence spans projects or sessions
// with unknown projects.
func dominantScope(evidence []models.Evidence, scopes map[string]models.Scope) models.Scope {
	var found *models.Scope
	for _, e := range evidence {
		sc, ok := scopes[e.SessionID]
		if !ok {
			return models.GlobalScope()
		}
		if found == nil {
			found = &sc
			continue
		}
		if found.ProjectHash != sc.ProjectHash {
			return models.GlobalScope()
		}
	}
	if found == nil {
		return models.GlobalScope()
	}
	return *found
}

// isDuplicate applies the deterministic near-duplicate policy: normalized
// titles compare equal, or keyword overlap of title+description exceeds
// the threshold.
func (d *Detector) isDuplicate(c *candidate, existing []models.Memory) bool {
	normTitle := textnorm.NormalizeTitle(c.title)
	candKeywords := textnorm.Keywords(c.title + " " + c.description)
	for i := range existing {
		m := &existing[i]
		if textnorm.NormalizeTitle(m.Content.Title) == normTitle {
			return true
		}
		memKeywords := textnorm.Keywords(m.Content.Title + " " + m.Content.Description)
		if textnorm.Jaccard(candKeywords, memKeywords) > duplicateOverlap {
			return true
		}
	}
	return false
}

// ClearState removes the watermark. Used by init --reset.
func (d *Detector) ClearState() error {
	err := os.Remove(d.statePath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
