package project

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 100 * time.Millisecond

// Watcher reports project roots whose marker files were created, removed or
// renamed. Only the root directory is watched, not subdirectories.
type Watcher struct {
	watcher  *fsnotify.Watcher
	onChange func(dir string)

	mu   sync.Mutex
	dirs map[string]bool
}

// NewWatcher returns a watcher calling onChange once per burst of marker
// events in a root.
func NewWatcher(onChange func(dir string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{watcher: fw, onChange: onChange, dirs: make(map[string]bool)}, nil
}

// Add starts watching dir. Roots on 9p or sshfs mounts are refused with
// ErrWatchUnsupported.
func (w *Watcher) Add(dir string) error {
	dir = filepath.Clean(dir)
	warning, err := watchSupport(dir)
	if err != nil {
		return err
	}
	if warning != "" {
		projectLog.Warn("project_watch_unreliable", slog.String("path", dir), slog.String("reason", warning))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dirs[dir] {
		return nil
	}
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

// Remove stops watching dir.
func (w *Watcher) Remove(dir string) {
	dir = filepath.Clean(dir)
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[dir] {
		return
	}
	delete(w.dirs, dir)
	_ = w.watcher.Remove(dir)
}

// Run delivers events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var debounceTimer *time.Timer
	pending := make(map[string]bool)
	var pendingMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			pendingMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			pendingMu.Unlock()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsMarker(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			dir := filepath.Dir(event.Name)

			pendingMu.Lock()
			pending[dir] = true
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				pendingMu.Lock()
				dirs := make([]string, 0, len(pending))
				for d := range pending {
					dirs = append(dirs, d)
				}
				pending = make(map[string]bool)
				pendingMu.Unlock()

				for _, d := range dirs {
					projectLog.Debug("project_markers_changed", slog.String("dir", d))
					w.onChange(d)
				}
			})
			pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			projectLog.Warn("project_watcher_error", slog.String("error", err.Error()))
		}
	}
}
