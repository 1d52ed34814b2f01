// Package testutil provides shared test helpers for setting up workbooks,
// indexes and services.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/retronotes/internal/index"
	"github.com/starford/retronotes/internal/noteservice"
	"github.com/starford/retronotes/internal/storage"
)

// Logger returns a logger that drops everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestDB creates a temporary SQLite index that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "retronotes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a workbook store in a temporary directory. The file
// itself is created lazily.
func TestStore(t *testing.T, opts ...storage.Option) *storage.Workbook {
	t.Helper()
	opts = append([]storage.Option{storage.WithLogger(Logger())}, opts...)
	store, err := storage.NewWorkbook(filepath.Join(t.TempDir(), "notes_database.xlsx"), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// TestService wires a service over a fresh store and index.
func TestService(t *testing.T, events noteservice.EventPublisher) (*noteservice.Service, *storage.Workbook) {
	t.Helper()
	store := TestStore(t)
	svc := noteservice.NewService(store, TestDB(t), events, Logger())
	return svc, store
}
