package search

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ArtifactFile is the on-disk index artifact under the state root. It is a
// disposable cache: deleting it only forces the next rebuild.
const ArtifactFile = "search-index.db"

const artifactSchema = `
CREATE TABLE IF NOT EXISTS entries (
	namespace TEXT NOT NULL CHECK (namespace IN ('term','tag')),
	term      TEXT NOT NULL,
	memory_id TEXT NOT NULL,
	tf        INTEGER NOT NULL,
	PRIMARY KEY (namespace, term, memory_id)
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_term ON entries(namespace, term);
`

// SaveArtifact writes the index to a fresh sqlite database built at a
// temporary path, then renames it over the artifact. Readers therefore see
// either the old or the new complete index, never a partial one.
func SaveArtifact(dir string, idx *Index) error {
	final := filepath.Join(dir, ArtifactFile)
	tmp := final + fmt.Sprintf(".tmp-%d", os.Getpid())
	defer os.Remove(tmp)

	db, err := sql.Open("sqlite3", tmp)
	if err != nil {
		return fmt.Errorf("open index artifact: %w", err)
	}
	if err := writeArtifact(db, idx); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close index artifact: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("swap index artifact: %w", err)
	}
	return nil
}

func writeArtifact(db *sql.DB, idx *Index) error {
	if _, err := db.Exec(artifactSchema); err != nil {
		return fmt.Errorf("migrate index artifact: %w", err)
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO entries (namespace, term, memory_id, tf) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for term, byID := range idx.Terms {
		for id, tf := range byID {
			if _, err := stmt.Exec("term", term, id, tf); err != nil {
				return err
			}
		}
	}
	for tag, byID := range idx.Tags {
		for id, tf := range byID {
			if _, err := stmt.Exec("tag", tag, id, tf); err != nil {
				return err
			}
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES ('built_at', ?)`,
		idx.BuiltAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadArtifact reads the artifact back into an in-memory index. Returns
// os.ErrNotExist (wrapped) when no artifact has been built yet.
func LoadArtifact(dir string) (*Index, error) {
	path := filepath.Join(dir, ArtifactFile)
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open index artifact: %w", err)
	}
	defer db.Close()

	idx := NewIndex()
	rows, err := db.Query(`SELECT namespace, term, memory_id, tf FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("read index artifact: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ns, term, id string
		var tf int
		if err := rows.Scan(&ns, &term, &id, &tf); err != nil {
			return nil, err
		}
		switch ns {
		case "tag":
			idx.Tags[term] = setTF(idx.Tags[term], id, tf)
		default:
			idx.Terms[term] = setTF(idx.Terms[term], id, tf)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var builtAt string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'built_at'`).Scan(&builtAt); err == nil {
		if t, perr := time.Parse(time.RFC3339Nano, builtAt); perr == nil {
			idx.BuiltAt = t
		}
	}
	return idx, nil
}

func setTF(byID map[string]int, id string, tf int) map[string]int {
	if byID == nil {
		byID = map[string]int{}
	}
	byID[id] = tf
	return byID
}
