package auth

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchTokenFile monitors the token file for writes by an external
// process (a sidecar login provisioning the file in containerized
// deployments) and marks the service as authenticated when it changes.
// It blocks until the context is cancelled. Intended to run in a
// background goroutine alongside the MCP server.
func WatchTokenFile(ctx context.Context, store *FileStore, svc *Service, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic writers replace the
	// file by rename, which drops a watch placed on the file itself.
	path := store.Path()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching token directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			if filepath.Clean(event.Name) != path {
				continue
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				svc.NoteExternalTokenUpdate()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			logger.Warn("token file watcher error", slog.String("error", err.Error()))
		}
	}
}
