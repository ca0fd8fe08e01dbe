package fsx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAtomicCreatesParents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "file.json")

	require.NoError(t, WriteAtomic(path, []byte("hello"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestWriteAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.json")

	require.NoError(t, WriteAtomic(path, []byte("one"), 0o644))
	require.NoError(t, WriteAtomic(path, []byte("two"), 0o644))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, _ := os.ReadFile(path)
	require.Equal(t, "two", string(data))
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	in := map[string]int{"a": 1, "b": 2}

	require.NoError(t, WriteJSON(path, in))

	var out map[string]int
	require.NoError(t, ReadJSON(path, &out))
	require.Equal(t, in, out)
}

func TestAppendLineAndCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")

	n, err := CountLines(path)
	require.NoError(t, err)
	require.Zero(t, n)

	type row struct {
		N int `json:"n"`
	}
	for i := 1; i <= 3; i++ {
		require.NoError(t, AppendLine(path, row{N: i}))
	}

	n, err = CountLines(path)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	var got []int
	require.NoError(t, EachLine(path, func(r row) error {
		got = append(got, r.N)
		return nil
	}))
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestEachLineSkipsTornLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"n\":1}\n{\"n\":\n{\"n\":3}\n"), 0o644))

	type row struct {
		N int `json:"n"`
	}
	var got []int
	require.NoError(t, EachLine(path, func(r row) error {
		got = append(got, r.N)
		return nil
	}))
	require.Equal(t, []int{1, 3}, got)
}
