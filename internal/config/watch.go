package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors path and calls onChange with a freshly loaded Config each
// time the file is rewritten. It blocks until ctx is cancelled.
//
// A failed reload (invalid YAML, validation error) is logged and swallowed so
// the previous configuration stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save atomically via rename, which surfaces as a
			// Create of a new inode rather than a Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if cfg := reload(path); cfg != nil {
				onChange(cfg)
			}

			// Re-add the path in case the inode was replaced.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// reload loads path, logging instead of propagating failures.
func reload(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		slog.Error("config: reload failed — keeping previous config",
			"path", path, "err", err)
		return nil
	}
	slog.Info("config: reloaded", "path", path, "entities", len(cfg.Entities))
	return cfg
}
