package internal

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchPersona reloads store whenever its file changes, batching bursts of
// events within debounce. It blocks until ctx is done.
func WatchPersona(ctx context.Context, store *PersonaStore, debounce time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := store.Path()
	if path == "" {
		return fmt.Errorf("watch persona: no persona file")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isPersonaEvent(event, path) {
				continue
			}
			if !pending {
				timer.Reset(debounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("persona watch error", zap.Error(err))
		case <-timer.C:
			pending = false
			if err := store.Reload(); err != nil {
				logger.Error("persona reload failed, keeping previous", zap.String("path", path), zap.Error(err))
				continue
			}
			logger.Info("persona reloaded", zap.String("path", path), zap.String("name", store.Current().Name))
		}
	}
}

func isPersonaEvent(event fsnotify.Event, path string) bool {
	if filepath.Clean(event.Name) != filepath.Clean(path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
