// Package testutil provides shared test helpers for setting up libraries and databases.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "folio-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() {
		os.Remove(dbFile.Name())
		os.Remove(dbFile.Name() + "-wal")
		os.Remove(dbFile.Name() + "-shm")
	})

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory with a storage.Provider.
func TestLibrary(t *testing.T) (string, storage.Provider) {
	t.Helper()
	libDir := t.TempDir()
	store, err := storage.NewFS(libDir)
	if err != nil {
		t.Fatal(err)
	}
	return libDir, store
}

// WriteBook creates a file under the library root, creating its field
// directory as needed.
func WriteBook(t *testing.T, libDir, rel string, data []byte) {
	t.Helper()
	full := filepath.Join(libDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatal(err)
	}
}
