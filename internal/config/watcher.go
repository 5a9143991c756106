package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of file events (editors often write,
// truncate, and rename in quick succession) into one invalidation.
const watchDebounce = 200 * time.Millisecond

// Watcher invalidates a Loader's cache when the config file changes on
// disk. Watching is best-effort: setup errors disable it and the TTL
// cache still picks up changes.
type Watcher struct {
	loader  *Loader
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a watcher bound to the loader.
func NewWatcher(loader *Loader, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{loader: loader, logger: logger}
}

// Start begins watching the config directory until ctx is cancelled.
// The directory is watched rather than the file so that creation and
// rename of config.yaml are observed.
func (w *Watcher) Start(ctx context.Context) error {
	path, err := w.loader.ConfigPath()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err != nil {
		// No .taskorchestrator directory yet; nothing to watch.
		w.logger.Debug("config directory absent, watch disabled", "dir", dir)
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	go w.run(ctx, filepath.Base(path))
	w.logger.Debug("watching workflow config", "dir", dir)
	return nil
}

func (w *Watcher) run(ctx context.Context, filename string) {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.loader.Invalidate()
			w.logger.Info("workflow config changed, cache invalidated")

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}
