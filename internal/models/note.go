// Package models defines the domain types for retronotes.
package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/starford/retronotes/internal/apperr"
)

// TimeLayout is the format of DateCreated and LastModified.
const TimeLayout = "2006-01-02 15:04:05"

// NoteID is the canonical note identifier. Zero means "no ID".
type NoteID int64

// ParseNoteID normalises an identifier read from a request or a sheet cell.
// Spreadsheet tools sometimes store integers as "3.0", so integral floats are
// accepted as well.
func ParseNoteID(s string) (NoteID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty id: %w", apperr.ErrInvalidID)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("id %q: %w", s, apperr.ErrInvalidID)
		}
		return NoteID(n), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f <= 0 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("id %q: %w", s, apperr.ErrInvalidID)
	}
	return NoteID(f), nil
}

// String returns the decimal form of the ID.
func (id NoteID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// MarshalText encodes the ID as a decimal string, so JSON sees "3" not 3.
func (id NoteID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText accepts the same forms as ParseNoteID.
func (id *NoteID) UnmarshalText(b []byte) error {
	parsed, err := ParseNoteID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Note is one record of the backing workbook.
type Note struct {
	ID           NoteID `json:"id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	DateCreated  string `json:"date_created"`
	LastModified string `json:"last_modified"`
}

// Fields returns the note as the flat string map handed to presentation layers.
func (n Note) Fields() map[string]string {
	return map[string]string{
		"id":            n.ID.String(),
		"title":         n.Title,
		"content":       n.Content,
		"date_created":  n.DateCreated,
		"last_modified": n.LastModified,
	}
}
