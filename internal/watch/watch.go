// Package watch is an optional capture source: it watches one project
// tree and records debounced file_modified observations through the
// capture API. Capture failures are absorbed, never surfaced.
package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Recorder is the capture entry point the watcher feeds. It never returns
// an error by contract.
type Recorder interface {
	RecordObservation(obsType string, data map[string]any)
}

// Watcher watches a project directory for file changes.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   map[string]bool
	recorder Recorder
	lg       *slog.Logger

	watcher    *fsnotify.Watcher
	pending    map[string]time.Time
	pendingMux sync.Mutex
	wg         sync.WaitGroup
}

// New returns a Watcher over root. Directory names in ignore are never
// descended into.
func New(root string, debounce time.Duration, ignore []string, recorder Recorder, lg *slog.Logger) *Watcher {
	ig := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		ig[name] = true
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		ignore:   ig,
		recorder: recorder,
		lg:       lg,
		pending:  map[string]time.Time{},
	}
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	defer watcher.Close()

	w.addDirRecursive(w.root)

	w.wg.Add(2)
	go w.consume(ctx)
	go w.flushLoop(ctx)
	w.wg.Wait()
	return nil
}

func (w *Watcher) addDirRecursive(root string) {
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if w.ignore[info.Name()] {
				return filepath.SkipDir
			}
			if err := w.watcher.Add(path); err != nil {
				w.lg.Debug("watch add failed", "path", path, "error", err)
			}
		}
		return nil
	})
}

func (w *Watcher) consume(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if event.Op&fsnotify.Create != 0 && !w.ignore[filepath.Base(event.Name)] {
					w.addDirRecursive(event.Name)
				}
				continue
			}
			w.pendingMux.Lock()
			w.pending[event.Name] = time.Now()
			w.pendingMux.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.lg.Debug("watch error", "error", err)
		}
	}
}

// flushLoop emits pending paths once they have been quiet for the
// debounce window, coalescing editor save bursts into one observation.
func (w *Watcher) flushLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-w.debounce)
			w.pendingMux.Lock()
			var ready []string
			for path, at := range w.pending {
				if at.Before(cutoff) {
					ready = append(ready, path)
					delete(w.pending, path)
				}
			}
			w.pendingMux.Unlock()
			for _, path := range ready {
				rel, err := filepath.Rel(w.root, path)
				if err != nil {
					rel = path
				}
				w.recorder.RecordObservation("file_modified", map[string]any{"path": rel})
			}
		}
	}
}
