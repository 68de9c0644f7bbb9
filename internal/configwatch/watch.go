// Package configwatch reloads configuration when the config file changes on
// disk.
package configwatch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is called with the config path after the file changes. Returning
// an error keeps the previous configuration in effect.
type ReloadFunc func(path string) error

// Watch starts an fsnotify watcher on the config file and invokes reload on
// changes until ctx is cancelled. The parent directory is watched because
// editors typically replace files via rename, which drops a watch placed on
// the file itself. Change bursts are debounced.
func Watch(ctx context.Context, path string, logger *slog.Logger, reload ReloadFunc) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("configwatch: started", slog.String("path", abs))

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	scheduleReload := func() {
		if debounceTimer == nil {
			debounceTimer = time.NewTimer(200 * time.Millisecond)
			debounceCh = debounceTimer.C
		} else {
			debounceTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			logger.Info("configwatch: stopped")
			return nil

		case <-debounceCh:
			if reloadErr := reload(abs); reloadErr != nil {
				logger.Warn("configwatch: reload failed, keeping previous config",
					slog.String("error", reloadErr.Error()))
			} else {
				logger.Info("configwatch: config reloaded")
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				scheduleReload()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("configwatch: error", slog.String("error", watchErr.Error()))
		}
	}
}
