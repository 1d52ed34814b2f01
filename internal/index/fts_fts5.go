//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/retronotes/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			id UNINDEXED,
			title,
			content,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsReset(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

func ftsInsert(tx *sql.Tx, n models.Note) error {
	_, err := tx.Exec(`INSERT INTO notes_fts (id, title, content) VALUES (?, ?, ?)`,
		int64(n.ID), n.Title, n.Content)
	if err != nil {
		return fmt.Errorf("index: insert fts: %w", err)
	}
	return nil
}

// ftsQuery quotes every term and makes it a prefix match, so user input is
// never parsed as FTS5 syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"*`
	}
	return strings.Join(terms, " ")
}

// Search performs an FTS5 word-prefix search ordered by rank. When nothing
// matches it falls back to substring matching, so a fragment from the middle
// of a word still finds its note. limit <= 0 means no limit.
func (db *DB) Search(query string, limit int) ([]models.Note, error) {
	q := ftsQuery(query)
	if q == "" {
		return []models.Note{}, nil
	}
	hits, err := db.rankedSearch(q, limit)
	if err != nil || len(hits) > 0 {
		return hits, err
	}
	return db.substringSearch(query, limit)
}

func (db *DB) rankedSearch(q string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.Query(`
		SELECT n.id, n.title, n.content, n.date_created, n.last_modified
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.id
		WHERE notes_fts MATCH ?
		ORDER BY notes_fts.rank
		LIMIT ?
	`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanNotes(rows)
}
