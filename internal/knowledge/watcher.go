package knowledge

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 400 * time.Millisecond

// Watcher hot-reloads a Base when its themes file changes. Editors often
// write files with a rename-and-replace dance, so the file's directory is
// watched and events are debounced.
type Watcher struct {
	base    *Base
	logger  *zap.Logger
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for the base's themes file.
func NewWatcher(b *Base, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{base: b, logger: logger}
}

// Start begins watching. It runs until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if w.base.path == "" {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fsw
	if err := fsw.Add(filepath.Dir(w.base.path)); err != nil {
		_ = fsw.Close()
		return err
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()
	target := filepath.Clean(w.base.path)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("knowledge watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, func() {
		if err := w.base.Reload(); err != nil {
			w.logger.Warn("knowledge reload failed", zap.Error(err))
		}
	})
}
