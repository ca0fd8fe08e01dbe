package session

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

// ResolveProjectRoot resolves a path to its project root: the nearest
// ancestor containing a version-control directory, else the path itself.
// An empty path resolves from the working directory.
func ResolveProjectRoot(path string) string {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		path = wd
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	dir := abs
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		dir = parent
	}
}

// ProjectHash returns a stable short digest of a resolved project root.
func ProjectHash(root string) string {
	sum := sha256.Sum256([]byte(root))
	return hex.EncodeToString(sum[:])[:12]
}
