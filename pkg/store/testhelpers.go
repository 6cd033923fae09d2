package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3" // in-memory database for tests
)

// NewTestDB opens an in-memory SQLite database with the full schema
// applied. The schema and all store queries stay inside the SQL subset
// both engines share, so store behavior can be tested without a running
// PostgreSQL instance.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// A pooled second connection would see a different empty :memory: db
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// SkipIfNoPostgres returns a connection to the PostgreSQL instance named
// by ACCESSLY_TEST_POSTGRES_URL, skipping the test when none is configured.
func SkipIfNoPostgres(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("ACCESSLY_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("ACCESSLY_TEST_POSTGRES_URL not set, skipping integration test")
	}

	db, err := Connect(DefaultConnectionConfig(url))
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := RunMigrations(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
