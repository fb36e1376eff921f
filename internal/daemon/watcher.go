package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alexjbarnes/adb-sync/internal/config"
	apperrors "github.com/alexjbarnes/adb-sync/internal/errors"
	"github.com/alexjbarnes/adb-sync/internal/scheduler"
	"github.com/fsnotify/fsnotify"
)

// minWatchTick bounds how often pending changes are checked.
const minWatchTick = 50 * time.Millisecond

type watchRoot struct {
	dir      string
	pipeline string
}

// Watcher monitors the local roots of auto-sync pipelines and enqueues a
// pipeline once its tree has been quiet for the debounce interval.
type Watcher struct {
	queue     Queue
	connected func() bool
	debounce  time.Duration
	logger    *slog.Logger
	watcher   *fsnotify.Watcher

	mu      sync.Mutex
	roots   []watchRoot
	started bool
}

// NewWatcher creates a watcher. connected reports whether a device is
// attached; changes seen while it returns false are dropped, since the
// next attachment triggers the same pipelines anyway.
func NewWatcher(queue Queue, connected func() bool, debounce time.Duration, logger *slog.Logger) *Watcher {
	return &Watcher{
		queue:     queue,
		connected: connected,
		debounce:  debounce,
		logger:    logger,
	}
}

// Watch starts watching the local roots of the enabled auto-sync
// pipelines. It blocks until the context is cancelled. Pipelines whose
// local root is missing are skipped with a warning.
func (w *Watcher) Watch(ctx context.Context, pipelines []config.Pipeline) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}

	w.watcher = watcher
	defer watcher.Close()

	for _, p := range pipelines {
		if !p.IsEnabled() || !p.AutoSync {
			continue
		}

		dir, err := filepath.Abs(p.Local)
		if err != nil {
			w.logger.Warn("resolving local root", slog.String("pipeline", p.Name), slog.String("error", err.Error()))
			continue
		}

		if err := w.addRecursive(dir); err != nil {
			w.logger.Warn("watching local root",
				slog.String("pipeline", p.Name),
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)

			continue
		}

		w.mu.Lock()
		w.roots = append(w.roots, watchRoot{dir: dir, pipeline: p.Name})
		w.mu.Unlock()

		w.logger.Info("watching local root", slog.String("pipeline", p.Name), slog.String("dir", dir))
	}

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	// pending maps a pipeline to the time of its latest change.
	pending := make(map[string]time.Time)

	ticker := time.NewTicker(max(w.debounce/4, minWatchTick))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("fsnotify events channel closed unexpectedly")
			}

			if shouldIgnore(event.Name) {
				continue
			}

			// New directories are watched too. Lstat keeps symlinks out.
			if event.Has(fsnotify.Create) {
				info, err := os.Lstat(event.Name)
				if err == nil && info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
					_ = w.addRecursive(event.Name)
				}
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				_ = watcher.Remove(event.Name)
			}

			now := time.Now()
			for _, name := range w.owners(event.Name) {
				pending[name] = now
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("fsnotify errors channel closed unexpectedly")
			}

			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) < w.debounce {
					continue
				}

				delete(pending, name)
				w.trigger(name)
			}
		}
	}
}

func (w *Watcher) trigger(name string) {
	logger := w.logger.With(slog.String("pipeline", name))

	if !w.connected() {
		logger.Debug("local change ignored, no device")
		return
	}

	// Writes made by the pipeline's own pull land here too.
	if w.queue.Running() == name {
		logger.Debug("local change ignored, pipeline running")
		return
	}

	_, err := w.queue.Submit(scheduler.Request{Pipeline: name, Trigger: scheduler.TriggerWatcher}, nil)
	switch {
	case errors.Is(err, apperrors.ErrAlreadyQueued):
		logger.Debug("local change, pipeline already queued")
	case err != nil:
		logger.Warn("queueing after local change", slog.String("error", err.Error()))
	default:
		logger.Info("local change, sync queued")
	}
}

// owners returns the pipelines whose local root contains path.
func (w *Watcher) owners(path string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var names []string

	for _, r := range w.roots {
		if path == r.dir || strings.HasPrefix(path, r.dir+string(filepath.Separator)) {
			names = append(names, r.pipeline)
		}
	}

	return names
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != dir && shouldIgnore(path) {
			return filepath.SkipDir
		}

		if d.Type()&os.ModeSymlink != 0 {
			return filepath.SkipDir
		}

		return w.watcher.Add(path)
	})
}

// shouldIgnore skips hidden entries and editor scratch files.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)

	if strings.HasPrefix(base, ".") {
		return true
	}

	return strings.HasSuffix(base, "~") || strings.HasSuffix(base, ".swp")
}
