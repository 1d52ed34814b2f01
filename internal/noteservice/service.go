// Package noteservice is the boundary between transports and the record
// store: it normalises input, keeps the search index and the event stream in
// step with mutations, and runs encrypted exports.
package noteservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/retronotes/internal/apperr"
	"github.com/starford/retronotes/internal/export"
	"github.com/starford/retronotes/internal/index"
	"github.com/starford/retronotes/internal/models"
	"github.com/starford/retronotes/internal/sse"
	"github.com/starford/retronotes/internal/storage"
)

// DefaultTitle replaces blank titles on save.
const DefaultTitle = "Untitled"

// EventPublisher receives note change notifications.
type EventPublisher interface {
	PublishNoteEvent(kind, id string)
}

// ExportedFile is an encrypted note ready for download.
type ExportedFile struct {
	Filename string
	Payload  []byte
}

// Service coordinates store, index, exporter and event operations.
type Service struct {
	store  storage.RecordStore
	index  index.NoteIndex
	events EventPublisher
	logger *slog.Logger
}

// NewService creates a new note service. events may be nil.
func NewService(store storage.RecordStore, idx index.NoteIndex, events EventPublisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, index: idx, events: events, logger: logger}
}

// List returns all notes in workbook order.
func (s *Service) List(ctx context.Context) ([]models.Note, error) {
	return s.store.ListAll(ctx)
}

// Get returns a single note or apperr.ErrNotFound.
func (s *Service) Get(ctx context.Context, id models.NoteID) (*models.Note, error) {
	n, ok, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &n, nil
}

// Save creates or updates a note. Blank titles become DefaultTitle and both
// fields are trimmed. The bool result reports whether a new note was created.
func (s *Service) Save(ctx context.Context, id models.NoteID, title, content string) (*models.Note, bool, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	content = strings.TrimSpace(content)

	existed := false
	if id > 0 {
		var err error
		if _, existed, err = s.store.Find(ctx, id); err != nil {
			return nil, false, err
		}
	}

	savedID, err := s.store.Save(ctx, id, title, content)
	if err != nil {
		return nil, false, err
	}
	created := !existed

	n, err := s.Get(ctx, savedID)
	if err != nil {
		return nil, false, fmt.Errorf("noteservice: read back %s: %w", savedID, err)
	}

	s.reindex(ctx)
	if created {
		s.publish(sse.KindCreated, savedID)
	} else {
		s.publish(sse.KindUpdated, savedID)
	}
	return n, created, nil
}

// Delete removes a note. Deleting an unknown ID is not an error and
// publishes nothing.
func (s *Service) Delete(ctx context.Context, id models.NoteID) error {
	_, ok, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.reindex(ctx)
	s.publish(sse.KindDeleted, id)
	return nil
}

// Search returns notes whose title or content contains query. An empty
// query returns every note.
func (s *Service) Search(ctx context.Context, query string) ([]models.Note, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx)
	}
	// Catch edits made while the watcher was not running.
	s.reindex(ctx)
	return s.index.Search(query, 0)
}

// Export encrypts the note with password. An empty password is refused
// before the note is even looked up.
func (s *Service) Export(ctx context.Context, id models.NoteID, password string) (*ExportedFile, error) {
	if password == "" {
		return nil, apperr.ErrEmptyPassword
	}
	n, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	payload, err := export.EncryptNote(*n, password)
	if err != nil {
		return nil, err
	}
	s.logger.Info("note exported", slog.String("id", id.String()))
	return &ExportedFile{
		Filename: export.Filename(n.Title),
		Payload:  payload,
	}, nil
}

// Reindex forces an index sync; used at startup.
func (s *Service) Reindex(ctx context.Context) error {
	_, err := index.Sync(ctx, s.index, s.store, s.logger)
	return err
}

func (s *Service) reindex(ctx context.Context) {
	if _, err := index.Sync(ctx, s.index, s.store, s.logger); err != nil {
		s.logger.Warn("index sync failed", slog.String("error", err.Error()))
	}
}

func (s *Service) publish(kind string, id models.NoteID) {
	if s.events != nil {
		s.events.PublishNoteEvent(kind, id.String())
	}
}
