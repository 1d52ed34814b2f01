//go:build !sqlite_fts5

package index

import (
	"database/sql"

	"github.com/starford/retronotes/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search is substring matching on the notes table.
	return nil
}

func ftsReset(_ *sql.Tx) error { return nil }

func ftsInsert(_ *sql.Tx, _ models.Note) error { return nil }

// Search returns notes whose title or content contains query, in workbook
// order, ignoring case. limit <= 0 means no limit.
func (db *DB) Search(query string, limit int) ([]models.Note, error) {
	return db.substringSearch(query, limit)
}
