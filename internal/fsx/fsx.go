// Package fsx provides the atomic file-write pattern shared by every
// mutating operation on a JSON document: write to a temporary file in the
// same directory, then rename into place, so a reader never observes a
// partially-written file.
package fsx

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/engramdev/engram/pkg/models"
)

// WriteAtomic writes data to path via a temp file and rename.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &models.WriteError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &models.WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	return nil
}

// WriteJSON marshals v with indentation and writes it atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteAtomic(path, append(data, '\n'), 0o644)
}

// ReadJSON unmarshals the file at path into v. Returns os.ErrNotExist
// wrapped when the file is absent.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// AppendLine appends one line to a JSONL file, creating it if needed. The
// append is a single write syscall so concurrent appenders interleave at
// line granularity.
func AppendLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return &models.WriteError{Path: path, Err: err}
	}
	return nil
}

// CountLines returns the number of newline-terminated lines in the file,
// 0 when the file does not exist.
func CountLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}

// EachLine calls fn for every non-empty line in a JSONL file. Lines that
// fail to parse are skipped, not fatal: a torn concurrent append must not
// poison every later read.
func EachLine[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			continue
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return scanner.Err()
}
