package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the store directory and invokes onChange whenever the
// credentials file is created, replaced, or removed by another process.
// This lets a long-running process notice an external sign-out (or sign-in)
// and drop its in-memory session instead of refreshing against cleared
// credentials. Blocks until ctx is canceled.
//
// The directory is watched rather than the file itself because atomic saves
// replace the file by rename, which would invalidate a file-level watch.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("credstore: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("credstore: watching %s: %w", s.dir, err)
	}

	target := credentialsFileName

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Base(event.Name) != target {
				continue
			}

			// Chmod-only events carry no content change.
			if event.Has(fsnotify.Chmod) &&
				!event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			s.logger.Debug("credentials file changed",
				slog.String("op", event.Op.String()),
			)

			onChange()

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("credentials watcher error",
				slog.String("error", watchErr.Error()),
			)
		}
	}
}
