// Package duckdb provides the DuckDB output backend.
//
// DuckDB stores are convenient for post-processing: the records table can
// be queried directly with SQL.
//
// This package registers the "duckdb" backend:
//
//	import _ "github.com/leapstack-labs/galotfa/internal/output/duckdb"
package duckdb

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/internal/output/sqlstore"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

//go:embed schema.sql
var schemaSQL string

func init() {
	output.RegisterBackend("duckdb", func(l *slog.Logger) core.Backend { return New(l) })
}

// New creates a DuckDB backend.
func New(logger *slog.Logger) *sqlstore.Backend {
	return sqlstore.New("duckdb", "duckdb", Open, logger)
}

// Open opens the database at path and initializes the schema.
// Use ":memory:" or an empty path for an in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := open(path)
	if err != nil {
		return nil, err
	}
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return db, nil
}

// OpenReadOnly opens an existing store for inspection.
func OpenReadOnly(path string) (*sql.DB, error) {
	return open(path + "?access_mode=read_only")
}

func open(dsn string) (*sql.DB, error) {
	if dsn == ":memory:" {
		dsn = ""
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return db, nil
}
