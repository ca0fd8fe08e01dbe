// Package store owns memory records: JSON files partitioned by scope under
// memories/, plus a master index that is maintained best-effort and can be
// rebuilt by scanning the partition directories.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/engramdev/engram/internal/fsx"
	"github.com/engramdev/engram/pkg/models"
)

const (
	memoriesDir = "memories"
	globalDir   = "global"
	projectsDir = "projects"
	indexFile   = "index.json"
)

// Store is the memory CRUD layer for one state root.
type Store struct {
	dir string
	lg  *slog.Logger
	now func() time.Time
}

// New returns a Store rooted at dir.
func New(dir string, lg *slog.Logger) *Store {
	return &Store{dir: dir, lg: lg, now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) indexPath() string { return filepath.Join(s.dir, indexFile) }

func (s *Store) partition(scope models.Scope) string {
	if scope.Global() {
		return filepath.Join(s.dir, memoriesDir, globalDir)
	}
	return filepath.Join(s.dir, memoriesDir, projectsDir, scope.ProjectHash)
}

func (s *Store) path(m *models.Memory) string {
	return filepath.Join(s.partition(m.Scope), m.ID+".json")
}

// Create validates and persists a new memory. The ID is derived from the
// creation time and title unless already set; collisions get a numeric
// suffix.
func (s *Store) Create(m *models.Memory) error {
	now := s.now()
	if m.Metadata.CreatedAt.IsZero() {
		m.Metadata.CreatedAt = now
	}
	if m.Metadata.LastAccessed.IsZero() {
		m.Metadata.LastAccessed = m.Metadata.CreatedAt
	}
	if m.Metadata.Status == "" {
		m.Metadata.Status = models.StatusActive
	}
	if m.ID == "" {
		m.ID = s.uniqueID(m)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if err := fsx.WriteJSON(s.path(m), m); err != nil {
		return err
	}
	if err := s.upsertIndex(m); err != nil {
		s.lg.Warn("memory index update failed", "memory", m.ID, "error", err)
	}
	return nil
}

func (s *Store) uniqueID(m *models.Memory) string {
	base := models.NewMemoryID(m.Metadata.CreatedAt, m.Content.Title)
	id := base
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(s.partition(m.Scope), id+".json")); errors.Is(err, os.ErrNotExist) {
			return id
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}
}

// Get loads a memory by ID, searching the global partition and then every
// project partition.
func (s *Store) Get(id string) (*models.Memory, error) {
	for _, dir := range s.partitions() {
		path := filepath.Join(dir, id+".json")
		var m models.Memory
		if err := fsx.ReadJSON(path, &m); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		return &m, nil
	}
	return nil, &models.NotFoundError{Kind: "memory", ID: id}
}

// Update applies a mutation to a memory. The mutation cannot change id,
// created_at, source or scope; those fields are restored before persisting.
func (s *Store) Update(id string, mutate func(*models.Memory)) (*models.Memory, error) {
	m, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	frozenID := m.ID
	frozenCreated := m.Metadata.CreatedAt
	frozenSource := m.Metadata.Source
	frozenScope := m.Scope

	mutate(m)

	m.ID = frozenID
	m.Metadata.CreatedAt = frozenCreated
	m.Metadata.Source = frozenSource
	m.Scope = frozenScope
	m.Metadata.Confidence = models.ClampConfidence(m.Metadata.Confidence)

	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := fsx.WriteJSON(s.path(m), m); err != nil {
		return nil, err
	}
	if err := s.upsertIndex(m); err != nil {
		s.lg.Warn("memory index update failed", "memory", m.ID, "error", err)
	}
	return m, nil
}

// List returns memories matching the filter, newest first.
func (s *Store) List(f models.Filter) ([]models.Memory, error) {
	all, err := s.scan()
	if err != nil {
		return nil, err
	}
	var out []models.Memory
	for i := range all {
		if f.Matches(&all[i]) {
			out = append(out, all[i])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata.CreatedAt.After(out[j].Metadata.CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// All returns every memory in every partition, archived included.
func (s *Store) All() ([]models.Memory, error) {
	return s.scan()
}

func (s *Store) partitions() []string {
	dirs := []string{filepath.Join(s.dir, memoriesDir, globalDir)}
	projects := filepath.Join(s.dir, memoriesDir, projectsDir)
	entries, err := os.ReadDir(projects)
	if err != nil {
		return dirs
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(projects, e.Name()))
		}
	}
	return dirs
}

func (s *Store) scan() ([]models.Memory, error) {
	var out []models.Memory
	for _, dir := range s.partitions() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			var m models.Memory
			if err := fsx.ReadJSON(filepath.Join(dir, e.Name()), &m); err != nil {
				s.lg.Warn("skipping unreadable memory file", "file", e.Name(), "error", err)
				continue
			}
			out = append(out, m)
		}
	}
	return out, nil
}
