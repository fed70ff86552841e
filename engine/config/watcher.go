package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/anima-cgi/engine/core"
)

// Watcher re-reads a configuration file whenever it changes on disk.
// The parent directory is watched rather than the file itself, since most
// editors save by renaming a temporary file over the original.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	updates  chan *Config
}

func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, core.WrapRecoverable(err, "resolving %s", path)
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, core.WrapFatal(err, "creating file watcher")
	}
	if err := fsWatch.Add(filepath.Dir(abs)); err != nil {
		_ = fsWatch.Close()
		return nil, core.WrapRecoverable(err, "watching %s", filepath.Dir(abs))
	}
	return &Watcher{
		path:     abs,
		fsnotify: fsWatch,
		updates:  make(chan *Config, 1),
	}, nil
}

// Updates delivers every successfully parsed new configuration. It is
// closed when Run returns.
func (w *Watcher) Updates() <-chan *Config {
	return w.updates
}

// Run blocks until ctx is done. Files that fail to parse are logged and
// skipped, the last good configuration stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.updates)
	defer w.fsnotify.Close()

	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != w.path {
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				core.LogWarn("configuration reload skipped: %v", err)
				continue
			}
			// Only the newest configuration matters to a slow reader.
			select {
			case <-w.updates:
			default:
			}
			w.updates <- cfg

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return nil
			}
			core.LogError("configuration watcher: %v", err)

		case <-ctx.Done():
			return nil
		}
	}
}
