package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/retronotes/internal/models"
)

// ReplaceAll swaps the indexed notes for notes and records the checksum of
// the workbook they were read from, within a single transaction.
// Duplicate IDs keep the first occurrence, as lookups in the workbook do.
func (db *DB) ReplaceAll(notes []models.Note, sourceChecksum string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM notes`); err != nil {
		return fmt.Errorf("index: clear notes: %w", err)
	}
	if err := ftsReset(tx); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO notes (id, position, title, content, date_created, last_modified)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range notes {
		res, err := stmt.Exec(int64(n.ID), i, n.Title, n.Content, n.DateCreated, n.LastModified)
		if err != nil {
			return fmt.Errorf("index: insert note %s: %w", n.ID, err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			continue
		}
		if err := ftsInsert(tx, n); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, metaSourceChecksum, sourceChecksum)
	if err != nil {
		return fmt.Errorf("index: store checksum: %w", err)
	}

	return tx.Commit()
}

// SourceChecksum returns the checksum recorded by the last ReplaceAll, or "".
func (db *DB) SourceChecksum() (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaSourceChecksum).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: read checksum: %w", err)
	}
	return cs, nil
}

// Count returns the number of indexed notes.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

func scanNotes(rows *sql.Rows) ([]models.Note, error) {
	defer rows.Close()
	out := []models.Note{}
	for rows.Next() {
		var (
			n  models.Note
			id int64
		)
		if err := rows.Scan(&id, &n.Title, &n.Content, &n.DateCreated, &n.LastModified); err != nil {
			return nil, fmt.Errorf("index: scan: %w", err)
		}
		n.ID = models.NoteID(id)
		out = append(out, n)
	}
	return out, rows.Err()
}

// substringSearch returns notes whose title or content contains query, in
// workbook order. Case is folded with Unicode rules on both sides.
func (db *DB) substringSearch(query string, limit int) ([]models.Note, error) {
	if limit <= 0 {
		limit = -1
	}
	like := likePattern(strings.ToLower(query))
	rows, err := db.conn.Query(`
		SELECT id, title, content, date_created, last_modified
		FROM notes
		WHERE fold(title) LIKE ? ESCAPE '\' OR fold(content) LIKE ? ESCAPE '\'
		ORDER BY position
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanNotes(rows)
}

// likePattern turns query into a LIKE substring pattern with '\' as escape.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}
