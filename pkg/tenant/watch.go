package tenant

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/warrant/pkg/observability"
)

// Reloader accepts a new tenant configuration
type Reloader interface {
	Reload(configs []Config) error
}

// Watch reloads the tenants file into r whenever it is written, created or
// renamed into place. A file that fails to parse is logged and the previous
// configuration stays active. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, r Reloader, logger *observability.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)

	// Watch the directory so editors that replace the file are still seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	logger = logger.WithField("path", path)
	logger.Info("Watching tenants file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			configs, err := LoadFile(path)
			if err != nil {
				logger.WithError(err).Warn("Ignoring invalid tenants file")
				continue
			}
			if err := r.Reload(configs); err != nil {
				logger.WithError(err).Error("Failed to reload tenants")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Tenants watcher error")
		}
	}
}
