package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/folio/internal/indexer"
)

// DebounceInterval is how long the watcher waits for the tree to settle
// before asking for a reconciliation pass.
var DebounceInterval = 200 * time.Millisecond

// ReconcileFunc is called after a burst of relevant file system events.
type ReconcileFunc func(ctx context.Context)

// Watch starts an fsnotify watcher on the library root and its field
// directories and calls reconcile (debounced) whenever an eligible file or
// a field directory appears, changes, or disappears. It blocks until ctx is
// cancelled.
//
// Field directories created at runtime are automatically added to the watch
// list. Reconciliation itself is left to the caller so that it can be
// serialized with other index mutations.
func Watch(ctx context.Context, root string, logger *slog.Logger, reconcile ReconcileFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root, err = filepath.Abs(root)
	if err != nil {
		return err
	}
	if err := addFieldDirs(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	// reconcileTimer is used to debounce bursts of events.
	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(DebounceInterval)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(DebounceInterval)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ctx)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			depth, isField := classify(root, ev.Name)
			switch {
			case depth == 1:
				// A field directory (or a stray root file) changed.
				if ev.Op&fsnotify.Create != 0 {
					if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
						if addErr := w.Add(ev.Name); addErr != nil {
							logger.Warn("watcher: add new dir failed",
								slog.String("path", ev.Name),
								slog.String("error", addErr.Error()))
							continue
						}
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
						scheduleReconcile()
						continue
					}
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
					// Could have been a field directory; let reconciliation decide.
					scheduleReconcile()
				}

			case depth == 2 && isField:
				if !indexer.Eligible(ev.Name) {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
					scheduleReconcile()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// classify returns how many path elements name lies below root, and whether
// its parent is a field directory (depth 2).
func classify(root, name string) (int, bool) {
	rel, err := filepath.Rel(root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return 0, false
	}
	depth := len(strings.Split(filepath.ToSlash(rel), "/"))
	return depth, depth == 2
}

// addFieldDirs adds root and each of its immediate subdirectories to the watcher.
func addFieldDirs(w *fsnotify.Watcher, root string) error {
	if err := w.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		full := filepath.Join(root, e.Name())
		info, err := os.Stat(full)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := w.Add(full); err != nil {
			return err
		}
	}
	return nil
}
