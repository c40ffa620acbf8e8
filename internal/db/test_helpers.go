package db

import (
	"path/filepath"
	"testing"
)

// NewTestDB opens a fresh migrated database in a temp directory.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
