package textnorm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestKeywordsDropStopWordsAndShortWords(t *testing.T) {
	kw := Keywords("Always use pnpm for JS package installs")
	require.Equal(t, []string{"pnpm", "package", "installs"}, kw)
}

func TestKeywordsDeduplicateInOrder(t *testing.T) {
	kw := Keywords("tests tests before tests commit")
	require.Equal(t, []string{"tests", "before", "commit"}, kw)
}

func TestNormalizeTitleIsOrderInsensitive(t *testing.T) {
	a := NormalizeTitle("Prefer pnpm over npm")
	b := NormalizeTitle("npm over pnpm")
	require.Equal(t, a, b)
	require.Equal(t, "npm over pnpm", a)
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 60))
	require.Equal(t, "hé", Truncate("héllo", 2))
	require.Equal(t, "", Truncate("anything", 0))

	long := strings.Repeat("é", 80)
	got := Truncate(long, 60)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, 60, utf8.RuneCountInString(got))
}

func TestJaccard(t *testing.T) {
	require.Equal(t, 1.0, Jaccard([]string{"one", "two"}, []string{"two", "one"}))
	require.Equal(t, 0.0, Jaccard([]string{"one"}, []string{"two"}))
	require.Equal(t, 0.0, Jaccard(nil, nil))
	require.InDelta(t, 1.0/3.0, Jaccard([]string{"one", "two"}, []string{"two", "three"}), 1e-9)
}
