package identity

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/nfrund/chatrelay/internal/config"
	"github.com/spf13/afero"
)

// WatchSecretFile reloads the verifier's secret whenever path changes. The
// parent directory is watched so that atomic replacements (rename over the
// old file) are picked up. Watching stops when ctx is cancelled.
func WatchSecretFile(ctx context.Context, fs afero.Fs, path string, v *Verifier) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	logger := slog.Default().With("component", "identity", "secret_file", path)
	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				secret, err := config.ReadSecretFile(fs, path)
				if err != nil {
					logger.Warn("Ignoring unreadable secret file", "error", err)
					continue
				}
				v.SetSecret(secret)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("Secret file watcher error", "error", err)
			}
		}
	}()

	return nil
}
