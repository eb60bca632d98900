// Package test holds shared helpers for package tests: locating the
// repository's migrations, opening throwaway sqlite databases, and carrying
// the schema into them.
package test

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"todostream/internal/adapter/storage/sqlite"
)

// FindProjectRoot walks up from this file until it finds go.mod. Tests run
// with per-package working directories, so relative migration paths would
// otherwise break.
func FindProjectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	dir := filepath.Dir(filename)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if wd, err := os.Getwd(); err == nil {
		return wd
	}

	log.Fatal("could not find project root directory")
	return ""
}

// MigrationsPath returns the repository's migrations directory.
func MigrationsPath() string {
	return filepath.Join(FindProjectRoot(), "db", "migrations")
}

// TempDBPath returns a database file path inside a per-test temp directory,
// removed automatically when the test finishes.
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "todos.db")
}

// InitTestDB opens an in-memory sqlite database with the schema applied.
// The pool is pinned to one connection: a second connection to ":memory:"
// would see a separate, empty database.
func InitTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}

	if err := sqlite.RunMigrations(db, MigrationsPath()); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
