package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/retronotes/internal/storage"
)

const debounceDelay = 200 * time.Millisecond

// ChangeCallback is called after a watcher-driven sync changed the index.
type ChangeCallback func()

// Watch starts an fsnotify watcher on the directory holding the workbook and
// re-syncs the index whenever the workbook is created, written, replaced or
// removed, until ctx is cancelled. cb (if non-nil) runs after each sync that
// actually changed the index, e.g. when the file was edited in a spreadsheet
// program.
//
// The directory rather than the file is watched because saves replace the
// file by rename, which would silently end a watch on the old inode.
func Watch(ctx context.Context, db NoteIndex, store storage.RecordStore, logger *slog.Logger, cb ChangeCallback) error {
	target := filepath.Clean(store.Path())
	dir := filepath.Dir(target)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("index: new watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("index: watch %s: %w", dir, err)
	}

	logger.Info("watcher: started", slog.String("path", target))

	// Bursts of events (temp file + rename, editors writing in chunks)
	// collapse into one sync.
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounceDelay)
			timerCh = timer.C
		} else {
			timer.Reset(debounceDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			changed, syncErr := Sync(ctx, db, store, logger)
			if syncErr != nil {
				logger.Warn("watcher: sync failed", slog.String("error", syncErr.Error()))
				continue
			}
			if changed {
				logger.Debug("watcher: index refreshed", slog.String("path", target))
				if cb != nil {
					cb()
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			schedule()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
