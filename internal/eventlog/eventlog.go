// Package eventlog is the append-only store of timestamped observations.
// The log and its archive are JSONL files under the state root. Entries
// are immutable once appended; archival moves them, never deletes them.
package eventlog

import (
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/engramdev/engram/internal/fsx"
	"github.com/engramdev/engram/pkg/models"
)

const (
	logFile     = "observations.jsonl"
	archiveFile = "observations.archive.jsonl"
)

// Log is an append-only observation log rooted at a state directory.
type Log struct {
	path        string
	archivePath string
}

// New returns a Log for the given state root.
func New(dir string) *Log {
	return &Log{
		path:        filepath.Join(dir, logFile),
		archivePath: filepath.Join(dir, archiveFile),
	}
}

// Append normalizes and appends an observation. Sequences keep counting
// across archival (live count + archived count + 1) so an entry moved to
// the archive never shares a number with a later append. Assignment is
// advisory under concurrent writers: two captures racing on the count may
// take the same number. That is accepted rather than paying for cross-
// process locking, since capture must never stall the interactive path.
func (l *Log) Append(obs *models.Observation) error {
	obs.Normalize(time.Now())
	if obs.ID == "" {
		obs.ID = ulid.Make().String()
	}
	count, err := fsx.CountLines(l.path)
	if err != nil {
		count = 0
	}
	archived, err := fsx.CountLines(l.archivePath)
	if err != nil {
		archived = 0
	}
	obs.Sequence = count + archived + 1
	return fsx.AppendLine(l.path, obs)
}

// All returns every observation currently in the live log, in stored order.
func (l *Log) All() ([]models.Observation, error) {
	var out []models.Observation
	err := fsx.EachLine(l.path, func(o models.Observation) error {
		out = append(out, o)
		return nil
	})
	return out, err
}

// After returns observations with a timestamp strictly after t.
func (l *Log) After(t time.Time) ([]models.Observation, error) {
	var out []models.Observation
	err := fsx.EachLine(l.path, func(o models.Observation) error {
		if o.Timestamp.After(t) {
			out = append(out, o)
		}
		return nil
	})
	return out, err
}

// Count returns the number of entries in the live log.
func (l *Log) Count() (int, error) {
	return fsx.CountLines(l.path)
}

// Archived returns every archived observation, deduplicated by sequence
// against the live log so a reader combining both files never counts an
// entry twice during an interrupted archive.
func (l *Log) Archived() ([]models.Observation, error) {
	live := map[int]bool{}
	if err := fsx.EachLine(l.path, func(o models.Observation) error {
		live[o.Sequence] = true
		return nil
	}); err != nil {
		return nil, err
	}
	var out []models.Observation
	err := fsx.EachLine(l.archivePath, func(o models.Observation) error {
		if !live[o.Sequence] {
			out = append(out, o)
		}
		return nil
	})
	return out, err
}

// Archive moves all entries with sequence < beforeSequence into the archive
// file. The archive is rewritten first and the trimmed log second, each via
// temp+rename; a crash between the two leaves an entry visible in both
// files (healed by sequence dedupe on read), never in neither.
func (l *Log) Archive(beforeSequence int) error {
	var keep, move []models.Observation
	if err := fsx.EachLine(l.path, func(o models.Observation) error {
		if o.Sequence < beforeSequence {
			move = append(move, o)
		} else {
			keep = append(keep, o)
		}
		return nil
	}); err != nil {
		return err
	}
	if len(move) == 0 {
		return nil
	}

	archived := make(map[int]bool)
	var combined []models.Observation
	if err := fsx.EachLine(l.archivePath, func(o models.Observation) error {
		if !archived[o.Sequence] {
			archived[o.Sequence] = true
			combined = append(combined, o)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, o := range move {
		if !archived[o.Sequence] {
			archived[o.Sequence] = true
			combined = append(combined, o)
		}
	}

	if err := writeJSONL(l.archivePath, combined); err != nil {
		return err
	}
	return writeJSONL(l.path, keep)
}

func writeJSONL(path string, entries []models.Observation) error {
	var buf []byte
	for i := range entries {
		line, err := json.Marshal(&entries[i])
		if err != nil {
			return err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return fsx.WriteAtomic(path, buf, 0o644)
}
