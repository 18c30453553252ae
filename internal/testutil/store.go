package testutil

import (
	"testing"

	"fimon/internal/database"
)

// NewTestStore opens a fresh in-memory SQLite store with all migrations
// applied. The store is closed automatically when the test completes.
func NewTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	store, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
