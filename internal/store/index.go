package store

import (
	"errors"
	"os"

	"github.com/engramdev/engram/internal/fsx"
	"github.com/engramdev/engram/pkg/models"
)

// IndexEntry is one row of the master index: a lookup summary, never the
// source of truth for a memory.
type IndexEntry struct {
	ID         string              `json:"id"`
	Type       models.MemoryType   `json:"type"`
	Scope      string              `json:"scope"` // "global" or project hash
	Title      string              `json:"title"`
	Confidence float64             `json:"confidence"`
	Status     models.MemoryStatus `json:"status"`
	Tags       []string            `json:"tags,omitempty"`
}

func entryFor(m *models.Memory) IndexEntry {
	scope := models.ScopeGlobal
	if !m.Scope.Global() {
		scope = m.Scope.ProjectHash
	}
	return IndexEntry{
		ID:         m.ID,
		Type:       m.Type,
		Scope:      scope,
		Title:      m.Content.Title,
		Confidence: m.Metadata.Confidence,
		Status:     m.Metadata.Status,
		Tags:       m.Tags,
	}
}

// Index returns the master index entries.
func (s *Store) Index() ([]IndexEntry, error) {
	var entries []IndexEntry
	if err := fsx.ReadJSON(s.indexPath(), &entries); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

func (s *Store) upsertIndex(m *models.Memory) error {
	entries, err := s.Index()
	if err != nil {
		return err
	}
	entry := entryFor(m)
	replaced := false
	for i := range entries {
		if entries[i].ID == m.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return fsx.WriteJSON(s.indexPath(), entries)
}

// RebuildIndex regenerates the master index from the memory files and
// returns warnings for entries that referenced a missing file. Rebuilding
// is the self-heal path for consistency warnings.
func (s *Store) RebuildIndex() ([]models.ConsistencyWarning, error) {
	old, err := s.Index()
	if err != nil {
		old = nil
	}
	memories, err := s.scan()
	if err != nil {
		return nil, err
	}
	byID := map[string]bool{}
	entries := make([]IndexEntry, 0, len(memories))
	for i := range memories {
		entries = append(entries, entryFor(&memories[i]))
		byID[memories[i].ID] = true
	}
	var warnings []models.ConsistencyWarning
	for _, e := range old {
		if !byID[e.ID] {
			warnings = append(warnings, models.ConsistencyWarning{
				Detail: "index referenced missing memory " + e.ID,
			})
		}
	}
	if err := fsx.WriteJSON(s.indexPath(), entries); err != nil {
		return warnings, err
	}
	return warnings, nil
}
