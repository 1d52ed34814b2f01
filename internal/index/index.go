package index

import "github.com/starford/retronotes/internal/models"

// NoteIndex defines the interface for search index operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	ReplaceAll(notes []models.Note, sourceChecksum string) error
	SourceChecksum() (string, error)
	Count() (int, error)
	Search(query string, limit int) ([]models.Note, error)
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
