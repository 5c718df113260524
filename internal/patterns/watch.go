package patterns

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch hot-reloads the rulebook whenever patterns.json changes on disk,
// recompiling the entire map in one swap (SPEC_FULL.md hot-reload note).
// It blocks until ctx is cancelled or the watcher fails to start.
func (m *Matcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(m.layout.Patterns())
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Base(m.layout.Patterns())
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := m.Load(); err != nil {
				slog.Error("patterns: hot-reload failed", "error", err)
			} else {
				slog.Info("patterns: hot-reloaded rulebook")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("patterns: watch error", "error", err)
		}
	}
}
