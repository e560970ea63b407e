package testutil

import (
	"testing"

	"cpd-go/internal/cpd"
	"cpd-go/internal/database"
)

// NewTestDatabase creates a new in-memory SQLite database with schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) cpd.Database {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", true)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
