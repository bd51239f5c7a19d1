// Package testutil opens migrated SQLite databases for package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Simplici0/sowhours/internal/db"
	"github.com/Simplici0/sowhours/internal/migrations"
)

// MigrationsDir is the absolute path of the repository's migrations folder.
func MigrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "migrations")
}

// NewDB returns a migrated file-backed database in a temp dir. A file is used
// rather than :memory: so concurrent connections share one database.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := migrations.Up(database, MigrationsDir()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}
