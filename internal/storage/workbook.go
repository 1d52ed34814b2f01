package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/starford/retronotes/internal/apperr"
	"github.com/starford/retronotes/internal/checksum"
	"github.com/starford/retronotes/internal/models"
)

// defaultSheet names the sheet of a freshly created workbook. Existing files
// are read from whatever sheet is active.
const defaultSheet = "Notes"

// Column letters of the table, in Header order.
const (
	colID           = "A"
	colTitle        = "B"
	colContent      = "C"
	colDateCreated  = "D"
	colLastModified = "E"
)

// Option configures a Workbook.
type Option func(*Workbook)

// WithClock overrides the time source used for DateCreated/LastModified.
func WithClock(now func() time.Time) Option {
	return func(w *Workbook) {
		w.now = now
	}
}

// WithLogger sets the logger that receives diagnostics such as skipped rows.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workbook) {
		w.logger = l
	}
}

// Workbook implements RecordStore backed by an .xlsx file.
//
// Every call re-reads the file; mutations rewrite it whole. Nothing is cached
// between calls, so the file stays the single source of truth.
type Workbook struct {
	path   string // absolute path to the workbook
	now    func() time.Time
	logger *slog.Logger

	// warned is the checksum of the last file reported for skipped rows.
	// Guarded by the path lock.
	warned string
}

// NewWorkbook creates a store for the workbook at path. The file itself is
// created lazily on first access.
func NewWorkbook(path string, opts ...Option) (*Workbook, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage: workbook path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve path: %w", err)
	}
	w := &Workbook{
		path:   abs,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute path of the backing file.
func (w *Workbook) Path() string {
	return w.path
}

// EnsureInitialized creates the workbook with only the header row if it does not exist.
func (w *Workbook) EnsureInitialized(ctx context.Context) error {
	release, err := acquire(ctx, w.path)
	if err != nil {
		return err
	}
	defer release()
	return w.ensure()
}

// ListAll returns every well-formed record in row order.
func (w *Workbook) ListAll(ctx context.Context) ([]models.Note, error) {
	snap, err := w.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Notes, nil
}

// Find returns the first record whose ID equals id.
func (w *Workbook) Find(ctx context.Context, id models.NoteID) (models.Note, bool, error) {
	notes, err := w.ListAll(ctx)
	if err != nil {
		return models.Note{}, false, err
	}
	for _, n := range notes {
		if n.ID == id {
			return n, true, nil
		}
	}
	return models.Note{}, false, nil
}

// Snapshot reads the file once and returns its records and checksum.
func (w *Workbook) Snapshot(ctx context.Context) (Snapshot, error) {
	release, err := acquire(ctx, w.path)
	if err != nil {
		return Snapshot{}, err
	}
	defer release()

	t, err := w.open()
	if err != nil {
		return Snapshot{}, err
	}
	defer t.close()

	notes, skipped := t.records()
	sum := checksum.Sum(t.raw)
	if skipped > 0 && sum != w.warned {
		w.logger.Warn("storage: skipped malformed rows",
			slog.String("path", w.path),
			slog.Int("count", skipped))
		w.warned = sum
	}
	return Snapshot{
		Notes:    notes,
		Skipped:  skipped,
		Checksum: sum,
	}, nil
}

// Save updates the row matching id, or appends a new row when id is zero or
// not present. It returns the ID of the saved record. Text that would not fit
// in a cell fails with apperr.ErrTooLong and leaves the file untouched.
func (w *Workbook) Save(ctx context.Context, id models.NoteID, title, content string) (models.NoteID, error) {
	title, err := cellText("title", title)
	if err != nil {
		return 0, err
	}
	content, err = cellText("content", content)
	if err != nil {
		return 0, err
	}

	release, err := acquire(ctx, w.path)
	if err != nil {
		return 0, err
	}
	defer release()

	t, err := w.open()
	if err != nil {
		return 0, err
	}
	defer t.close()

	now := w.now().Format(models.TimeLayout)

	if id > 0 {
		if row := t.rowOf(id); row > 0 {
			if err := t.setCells(row, map[string]any{
				colTitle:        title,
				colContent:      content,
				colLastModified: now,
			}); err != nil {
				return 0, err
			}
			if err := w.persist(t); err != nil {
				return 0, err
			}
			return id, nil
		}
	}

	notes, _ := t.records()
	newID := NextID(notes)
	cell := fmt.Sprintf("%s%d", colID, len(t.rows)+1)
	values := []any{int64(newID), title, content, now, now}
	if err := t.file.SetSheetRow(t.sheet, cell, &values); err != nil {
		return 0, fmt.Errorf("storage: append row: %w", err)
	}
	if err := w.persist(t); err != nil {
		return 0, err
	}
	return newID, nil
}

// Delete removes the first row matching id. A missing id leaves the file untouched.
func (w *Workbook) Delete(ctx context.Context, id models.NoteID) error {
	release, err := acquire(ctx, w.path)
	if err != nil {
		return err
	}
	defer release()

	t, err := w.open()
	if err != nil {
		return err
	}
	defer t.close()

	row := t.rowOf(id)
	if row == 0 {
		return nil
	}
	if err := t.file.RemoveRow(t.sheet, row); err != nil {
		return fmt.Errorf("storage: remove row %d: %w", row, err)
	}
	return w.persist(t)
}

// ensure creates the header-only workbook. Callers hold the path lock.
func (w *Workbook) ensure() error {
	_, err := os.Stat(w.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: stat %s: %w", w.path, err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), defaultSheet); err != nil {
		return fmt.Errorf("storage: name sheet: %w", err)
	}
	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(defaultSheet, colID+"1", &header); err != nil {
		return fmt.Errorf("storage: write header: %w", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("storage: encode workbook: %w", err)
	}
	if err := writeFileAtomic(w.path, buf.Bytes()); err != nil {
		return err
	}
	w.logger.Info("storage: created workbook", slog.String("path", w.path))
	return nil
}

// open loads the workbook into memory. Callers hold the path lock.
func (w *Workbook) open() (*table, error) {
	if err := w.ensure(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", w.path, err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("storage: parse %s: %w: %w", w.path, apperr.ErrCorrupt, err)
	}
	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("storage: read rows of %s: %w: %w", sheet, apperr.ErrCorrupt, err)
	}
	if !hasHeader(rows) {
		_ = f.Close()
		return nil, fmt.Errorf("storage: %s: header row missing: %w", w.path, apperr.ErrCorrupt)
	}
	return &table{file: f, sheet: sheet, rows: rows, raw: data}, nil
}

// persist encodes the in-memory workbook and atomically replaces the file.
func (w *Workbook) persist(t *table) error {
	buf, err := t.file.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("storage: encode workbook: %w", err)
	}
	return writeFileAtomic(w.path, buf.Bytes())
}

func hasHeader(rows [][]string) bool {
	if len(rows) == 0 || len(rows[0]) < len(Header) {
		return false
	}
	for i, h := range Header {
		if strings.TrimSpace(rows[0][i]) != h {
			return false
		}
	}
	return true
}

// table is one in-memory load of the workbook.
type table struct {
	file  *excelize.File
	sheet string
	rows  [][]string // rows[0] is the header
	raw   []byte
}

func (t *table) close() {
	_ = t.file.Close()
}

// records converts the data rows into notes. Rows with a missing or invalid
// ID are dropped and counted; completely blank rows are ignored.
func (t *table) records() (notes []models.Note, skipped int) {
	notes = make([]models.Note, 0, len(t.rows))
	for _, row := range t.rows[1:] {
		if isBlank(row) {
			continue
		}
		id, err := models.ParseNoteID(cell(row, 0))
		if err != nil {
			skipped++
			continue
		}
		notes = append(notes, models.Note{
			ID:           id,
			Title:        cell(row, 1),
			Content:      cell(row, 2),
			DateCreated:  cell(row, 3),
			LastModified: cell(row, 4),
		})
	}
	return notes, skipped
}

// rowOf returns the 1-based sheet row of the first record with id, or 0.
func (t *table) rowOf(id models.NoteID) int {
	for i, row := range t.rows[1:] {
		got, err := models.ParseNoteID(cell(row, 0))
		if err == nil && got == id {
			return i + 2
		}
	}
	return 0
}

func (t *table) setCells(row int, values map[string]any) error {
	for col, v := range values {
		ref := fmt.Sprintf("%s%d", col, row)
		if err := t.file.SetCellValue(t.sheet, ref, v); err != nil {
			return fmt.Errorf("storage: set %s: %w", ref, err)
		}
	}
	return nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
