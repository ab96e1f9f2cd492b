// Package testutil provides shared test helpers for snapshot stores and catalogs.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/autods/internal/catalog"
	"github.com/starford/autods/internal/snapshot"
)

// Quiet returns a logger that discards everything.
func Quiet() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// StepClock returns a clock that starts at start and advances one second
// per call, so consecutive saves get distinct version stamps.
func StepClock(start time.Time) func() time.Time {
	t := start.Add(-time.Second)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

// TestCatalog creates a temporary SQLite catalog that is automatically cleaned up.
func TestCatalog(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "autods-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a snapshot store in a temp directory whose clock starts
// at start.
func TestStore(t *testing.T, start time.Time) *snapshot.Store {
	t.Helper()
	store, err := snapshot.Open(filepath.Join(t.TempDir(), "versions"),
		snapshot.WithLogger(Quiet()),
		snapshot.WithClock(StepClock(start)))
	if err != nil {
		t.Fatal(err)
	}
	return store
}
