package api

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/retronotes/internal/models"
	"github.com/starford/retronotes/internal/noteservice"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

func noteID(r *http.Request) (models.NoteID, error) {
	return models.ParseNoteID(chi.URLParam(r, "id"))
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List all notes in workbook order
//	@Tags			notes
//	@Produce		json
//	@Success		200		{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: len(notes)})
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note by ID
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note ID"
//	@Success		200	{object}	Note
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	note, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a note, or overwrite the one named by id
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to save"
//	@Success		201		{object}	Note
//	@Success		200		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	var id models.NoteID
	if req.ID != "" {
		parsed, err := models.ParseNoteID(req.ID.String())
		if err != nil {
			writeError(w, "create note", err)
			return
		}
		id = parsed
	}
	h.save(w, r, id, req.Title, req.Content)
}

// UpdateNote handles PUT /api/notes/{id}. An unknown ID creates a new note
// with a freshly allocated ID.
//
//	@Summary		Update a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Note ID"
//	@Param			body	body		UpdateNoteRequest	true	"Updated fields"
//	@Success		200		{object}	Note
//	@Success		201		{object}	Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id, err := noteID(r)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	h.save(w, r, id, req.Title, req.Content)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, id models.NoteID, title, content string) {
	note, created, err := h.svc.Save(r.Context(), id, title, content)
	if err != nil {
		writeError(w, "save note", err)
		return
	}
	status := http.StatusOK
	if created {
		w.Header().Set("Location", "/api/notes/"+note.ID.String())
		status = http.StatusCreated
	}
	writeJSON(w, status, note)
}

// DeleteNote handles DELETE /api/notes/{id}. Deleting an unknown ID succeeds.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note ID"
//	@Success		204	"Note deleted"
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportNote handles POST /api/notes/{id}/export.
//
//	@Summary		Download a password-encrypted copy of a note
//	@Tags			notes
//	@Accept			json,x-www-form-urlencoded
//	@Produce		octet-stream
//	@Param			id		path		string			true	"Note ID"
//	@Param			body	body		ExportRequest	true	"Export password"
//	@Success		200		{file}		binary
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/export [post]
func (h *Handler) ExportNote(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	id, err := noteID(r)
	if err != nil {
		writeError(w, "export note", err)
		return
	}
	password, ok := exportPassword(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	file, err := h.svc.Export(r.Context(), id, password)
	if err != nil {
		writeError(w, "export note", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition",
		mime.FormatMediaType("attachment", map[string]string{"filename": file.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Payload)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Payload); err != nil {
		slog.Warn("export write failed", slog.String("id", id.String()), slog.String("error", err.Error()))
	}
}

// exportPassword reads the password from a JSON body or a form post. The
// bool is false only when the body cannot be parsed at all.
func exportPassword(r *http.Request) (string, bool) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", false
		}
		return req.Password, true
	}
	if err := r.ParseForm(); err != nil {
		return "", false
	}
	return r.PostFormValue("password"), true
}

// Search handles GET /api/search. An empty query lists every note. Matching
// is a case-insensitive substring test, except that builds with the
// sqlite_fts5 tag rank word-prefix hits first and only fall back to substring
// matching when there are none.
//
//	@Summary		Search titles and contents
//	@Tags			search
//	@Produce		json
//	@Param			q	query		string	false	"Search text"
//	@Success		200	{object}	SearchResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	results, err := h.svc.Search(r.Context(), q)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	if results == nil {
		results = []models.Note{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
