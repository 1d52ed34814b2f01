package index

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/retronotes/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *storage.Workbook {
	t.Helper()
	w, err := storage.NewWorkbook(filepath.Join(t.TempDir(), "notes.xlsx"), storage.WithLogger(discardLogger()))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.EnsureInitialized(context.Background()); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestSync_IndexesWorkbook(t *testing.T) {
	db := testDB(t)
	store := testStore(t)
	ctx := context.Background()

	_, _ = store.Save(ctx, 0, "first", "alpha")
	_, _ = store.Save(ctx, 0, "second", "beta")

	changed, err := Sync(ctx, db, store, discardLogger())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !changed {
		t.Error("first sync should rebuild")
	}
	n, _ := db.Count()
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestSync_SkipsUnchangedWorkbook(t *testing.T) {
	db := testDB(t)
	store := testStore(t)
	ctx := context.Background()

	if _, err := Sync(ctx, db, store, discardLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	changed, err := Sync(ctx, db, store, discardLogger())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if changed {
		t.Error("second sync without edits should be a no-op")
	}
}

func TestSync_PicksUpDeletes(t *testing.T) {
	db := testDB(t)
	store := testStore(t)
	ctx := context.Background()

	id, _ := store.Save(ctx, 0, "doomed", "zzz")
	_, _ = Sync(ctx, db, store, discardLogger())
	_ = store.Delete(ctx, id)

	changed, err := Sync(ctx, db, store, discardLogger())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !changed {
		t.Error("sync after delete should rebuild")
	}
	got, _ := db.Search("zzz", 0)
	if len(got) != 0 {
		t.Errorf("deleted note still indexed: %+v", got)
	}
}
