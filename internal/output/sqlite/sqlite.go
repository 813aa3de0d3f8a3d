// Package sqlite provides the SQLite output backend (pure Go, modernc.org/sqlite).
//
// The schema is managed with goose migrations embedded in the binary.
//
// This package registers the "sqlite" backend:
//
//	import _ "github.com/leapstack-labs/galotfa/internal/output/sqlite"
package sqlite

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/internal/output/sqlstore"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

//go:embed migrations/*.sql
var migrations embed.FS

func init() {
	output.RegisterBackend("sqlite", func(l *slog.Logger) core.Backend { return New(l) })
}

// New creates a SQLite backend.
func New(logger *slog.Logger) *sqlstore.Backend {
	return sqlstore.New("sqlite", "sqlite", Open, logger)
}

// Open opens the database at path and runs pending migrations.
// Use ":memory:" for an in-memory database.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection: an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// OpenReadOnly opens an existing store for inspection.
func OpenReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}

// Migrate runs all pending schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current schema version.
func MigrationVersion(db *sql.DB) (int64, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersion(db)
}
