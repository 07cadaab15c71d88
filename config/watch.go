package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 100 * time.Millisecond

// Watcher reloads a layout file when it changes.
type Watcher struct {
	Path    string
	watcher *fsnotify.Watcher
}

// NewWatcher watches the directory containing path, so editors that replace the file are noticed too.
func NewWatcher(path string) (*Watcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{Path: path, watcher: fw}, nil
}

// Run calls reload with the new layout each time the file settles after a change, until ctx is done.
// Layouts that fail to parse are logged and skipped.
func (w *Watcher) Run(ctx context.Context, reload func(*Layout)) error {
	defer w.watcher.Close()
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.Path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				fire = time.After(watchDebounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			zap.S().Warnw("watch error", "path", w.Path, "err", err)
		case <-fire:
			fire = nil
			l, err := ReadLayout(w.Path)
			if err != nil {
				zap.S().Warnw("ignoring broken layout", "path", w.Path, "err", err)
				continue
			}
			zap.S().Infow("layout changed", "path", w.Path, "rails", len(l.Rails))
			reload(l)
		}
	}
}
