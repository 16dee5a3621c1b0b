package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/staffboard/internal/persistence"
	"github.com/example/staffboard/internal/persistence/sqlite"
)

// SQLiteHarness exposes a migrated temporary SQLite cache through the
// persistence interfaces.
type SQLiteHarness struct {
	Storage   *sqlite.Storage
	Users     persistence.UserRepository
	Images    persistence.ImageRepository
	Calendar  persistence.CalendarRepository
	Board     persistence.BoardRepository
	Events    persistence.EventRepository
	Snapshots persistence.SnapshotRepository
	Runs      persistence.SyncRunRepository
	Sales     persistence.SalesRepository

	cleanup func()
}

// Close releases the storage. It is also registered with tb.Cleanup.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "staffboard.db")
	storage, err := sqlite.Open(path)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Storage:   storage,
		Users:     storage,
		Images:    storage,
		Calendar:  storage,
		Board:     storage,
		Events:    storage,
		Snapshots: storage,
		Runs:      storage,
		Sales:     storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
