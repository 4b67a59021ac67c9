package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"sharerelay/util"
)

// Watch re-reads the config file at path whenever it is written and
// hands the freshly loaded Config to onChange.  The file is loaded
// over Default(), not over the running config, so flags and env vars
// are not reapplied.  Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *util.Logger, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory; editors often replace the file by rename.
	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", target, err)
	}
	logger.Debugw("watching config file", "path", target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			cfg := Default()
			if err := LoadFile(target, cfg); err != nil {
				logger.Warnw("config reload failed", "path", target, "error", err)
				continue
			}
			logger.Infow("config reloaded", "path", target)
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("config watcher error", "error", err)
		}
	}
}
