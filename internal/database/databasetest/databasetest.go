// Package databasetest provides an in-memory SQLite database for tests.
package databasetest

import (
	"testing"

	"edu-ai-gateway/internal/database"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// New returns a migrated, isolated in-memory database that is closed with the test.
func New(t testing.TB) *database.Database {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := database.Open(sqlite.Open(dsn), zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// One connection keeps every statement on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}
