// Package watch triggers a callback when a file changes on disk.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/noajax/internal/log"
)

// DefaultDebounce coalesces the burst of events editors produce on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher calls OnChange after the watched file is written, created,
// renamed or removed.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(context.Context) error
	fsw      *fsnotify.Watcher
}

// New watches path. The parent directory is watched so that editors which
// replace the file by rename are still seen.
func New(path string, debounce time.Duration, onChange func(context.Context) error) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{path: abs, debounce: debounce, onChange: onChange, fsw: fsw}, nil
}

// Run delivers change notifications until ctx is cancelled, then releases
// the underlying watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer func() { _ = w.fsw.Close() }()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			log.Debug(log.CatWatch, "file event", "path", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatch, "watcher error", err)

		case <-fire:
			fire = nil
			if err := w.onChange(ctx); err != nil {
				log.ErrorErr(log.CatWatch, "change handler failed", err, "path", w.path)
			}
		}
	}
}
