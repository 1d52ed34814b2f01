package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/retronotes/internal/checksum"
	"github.com/starford/retronotes/internal/storage"
)

// Sync brings the index up to date with the workbook behind store.
// It reports whether the index contents were rebuilt.
//
// A cheap checksum of the file is compared first; only when it differs from
// the one recorded at the last rebuild is the workbook parsed.
func Sync(ctx context.Context, db NoteIndex, store storage.RecordStore, logger *slog.Logger) (bool, error) {
	stored, err := db.SourceChecksum()
	if err != nil {
		return false, err
	}

	if stored != "" {
		cs, err := checksum.File(store.Path())
		switch {
		case err == nil && cs == stored:
			return false, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			logger.Warn("sync: checksum failed", slog.String("path", store.Path()), slog.String("error", err.Error()))
		}
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("index: sync snapshot: %w", err)
	}
	if snap.Checksum == stored {
		return false, nil
	}
	if err := db.ReplaceAll(snap.Notes, snap.Checksum); err != nil {
		return false, err
	}

	logger.Debug("sync: indexed",
		slog.Int("notes", len(snap.Notes)),
		slog.Int("skipped", snap.Skipped))
	return true, nil
}
