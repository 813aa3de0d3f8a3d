package duckdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/internal/output/sqlstore/sqlstoretest"
)

func TestBackend_Suite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.duckdb")
	sqlstoretest.Run(t, New(nil), path, OpenReadOnly)
}

func TestBackend_ReopenTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.duckdb")
	sqlstoretest.RunReopenTruncates(t, New(nil), New(nil), path)
}

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestRegistered(t *testing.T) {
	assert.True(t, output.IsRegistered("duckdb"))
	b, err := output.NewBackend("duckdb", nil)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", b.Name())
}
