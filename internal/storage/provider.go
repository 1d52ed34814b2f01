// Package storage implements the note record store on top of a single
// spreadsheet workbook.
package storage

import (
	"context"

	"github.com/starford/retronotes/internal/models"
)

// Header is the mandatory first row of the backing workbook.
var Header = []string{"ID", "Title", "Content", "DateCreated", "LastModified"}

// RecordStore is the interface for note record operations.
type RecordStore interface {
	// Path returns the absolute location of the backing file.
	Path() string
	// EnsureInitialized creates the backing file with only the header row if it is missing.
	EnsureInitialized(ctx context.Context) error
	// ListAll returns every well-formed record in file row order.
	ListAll(ctx context.Context) ([]models.Note, error)
	// Find returns the first record with the given ID.
	Find(ctx context.Context, id models.NoteID) (models.Note, bool, error)
	// Save updates the record with id in place, or creates a new one when id is zero or unknown.
	Save(ctx context.Context, id models.NoteID, title, content string) (models.NoteID, error)
	// Delete removes the first record with id. Unknown IDs are a no-op.
	Delete(ctx context.Context, id models.NoteID) error
	// Snapshot returns the records together with the checksum of the bytes they came from.
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Snapshot is a consistent view of the backing file.
type Snapshot struct {
	Notes    []models.Note
	Skipped  int    // data rows dropped as malformed
	Checksum string // SHA-256 of the file contents
}

// NextID returns 1 for an empty set, otherwise one more than the largest ID present.
func NextID(existing []models.Note) models.NoteID {
	var highest models.NoteID
	for _, n := range existing {
		if n.ID > highest {
			highest = n.ID
		}
	}
	return highest + 1
}

// Verify *Workbook satisfies RecordStore at compile time.
var _ RecordStore = (*Workbook)(nil)
