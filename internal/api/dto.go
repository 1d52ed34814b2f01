package api

import (
	"encoding/json"

	"github.com/starford/retronotes/internal/models"
)

// CreateNoteRequest is the request body for creating a note. ID is optional;
// when it names an existing note that note is overwritten.
type CreateNoteRequest struct {
	ID      json.Number `json:"id,omitempty" swaggertype:"string" example:"3"`
	Title   string      `json:"title" example:"Shopping"`
	Content string      `json:"content" example:"milk, eggs"`
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Title   string `json:"title" example:"Shopping"`
	Content string `json:"content" example:"milk, eggs, bread"`
}

// ExportRequest carries the export password. Form posts use the same field name.
type ExportRequest struct {
	Password string `json:"password" validate:"required"`
}

// Note is the note response type (aliased from the domain layer).
type Note = models.Note

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []Note `json:"notes" validate:"required"`
	Total int    `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []Note `json:"results" validate:"required"`
}
