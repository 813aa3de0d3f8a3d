package sqlstore

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Opener opens the database at path and makes sure the schema exists.
type Opener func(path string) (*sql.DB, error)

// Backend is a core.Backend over database/sql.
type Backend struct {
	name   string
	ext    string
	open   Opener
	logger *slog.Logger

	db *sql.DB
}

// New creates a SQL backend. name and ext identify the dialect; open
// connects and prepares the schema.
func New(name, ext string, open Opener, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{name: name, ext: ext, open: open, logger: logger}
}

// Name returns the dialect name.
func (b *Backend) Name() string { return b.name }

// Extension returns the file extension.
func (b *Backend) Extension() string { return b.ext }

// DB returns the open database, nil before OpenContainer or after close.
func (b *Backend) DB() *sql.DB { return b.db }

// OpenContainer opens the database and registers the root node.
func (b *Backend) OpenContainer(path string) (core.Resource, error) {
	if b.db != nil {
		return nil, fmt.Errorf("%s backend already has an open container", b.name)
	}
	db, err := b.open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`DELETE FROM records`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reset container: %w", err)
	}
	for _, table := range []string{"attributes", "datasets", "nodes"} {
		if _, err := db.Exec(`DELETE FROM ` + table); err != nil { //nolint:gosec // fixed table names
			_ = db.Close()
			return nil, fmt.Errorf("failed to reset container: %w", err)
		}
	}
	if err := insertNode(db, "/", "", core.KindContainer); err != nil {
		_ = db.Close()
		return nil, err
	}
	b.db = db
	b.logger.Debug("sql container opened", slog.String("backend", b.name), slog.String("path", path))
	return &container{handle: handle{id: "/"}, b: b}, nil
}

// CreateGroup registers a group node.
func (b *Backend) CreateGroup(parent core.Resource, name string) (core.Resource, error) {
	if err := b.checkParent(parent); err != nil {
		return nil, err
	}
	if err := insertNode(b.db, name, parent.ID(), core.KindGroup); err != nil {
		return nil, err
	}
	return &handle{id: name}, nil
}

// CreateDataset registers an empty dataset.
func (b *Backend) CreateDataset(parent core.Resource, name string, layout core.DatasetLayout) (core.DatasetResources, error) {
	if err := b.checkParent(parent); err != nil {
		return core.DatasetResources{}, err
	}
	tx, err := b.db.Begin()
	if err != nil {
		return core.DatasetResources{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertNode(tx, name, parent.ID(), core.KindDataset); err != nil {
		return core.DatasetResources{}, err
	}
	desc := layout.Descriptor
	_, err = tx.Exec(
		`INSERT INTO datasets (name, element_type, dims, chunk, n_records) VALUES (?, ?, ?, ?, 0)`,
		name, desc.Type.String(), formatDims(desc.Dims), formatDims(layout.Chunk),
	)
	if err != nil {
		return core.DatasetResources{}, fmt.Errorf("failed to create dataset %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return core.DatasetResources{}, fmt.Errorf("failed to commit dataset %s: %w", name, err)
	}
	return core.DatasetResources{Dataset: newDataset(b.db, name, desc)}, nil
}

// SetAttribute upserts an attribute row.
func (b *Backend) SetAttribute(target core.Resource, name string, desc core.RecordDescriptor, value any) error {
	if err := b.checkParent(target); err != nil {
		return err
	}
	var blob any
	if value != nil {
		enc, err := encode(value)
		if err != nil {
			return err
		}
		blob = enc
	}
	_, err := b.db.Exec(
		`INSERT OR REPLACE INTO attributes (node, name, element_type, dims, value) VALUES (?, ?, ?, ?, ?)`,
		target.ID(), name, desc.Type.String(), formatDims(desc.Dims), blob,
	)
	if err != nil {
		return fmt.Errorf("failed to set attribute %s on %s: %w", name, target.ID(), err)
	}
	return nil
}

// Close closes the database if the container was never closed.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

func (b *Backend) checkParent(r core.Resource) error {
	if b.db == nil {
		return fmt.Errorf("%s backend: container is not open", b.name)
	}
	if r == nil {
		return fmt.Errorf("%s backend: nil resource: %w", b.name, core.ErrNodeClosed)
	}
	if h, ok := r.(interface{ isClosed() bool }); ok && h.isClosed() {
		return fmt.Errorf("resource %s: %w", r.ID(), core.ErrNodeClosed)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertNode(db execer, name, parent string, kind core.NodeKind) error {
	_, err := db.Exec(`INSERT INTO nodes (name, parent, kind) VALUES (?, ?, ?)`, name, parent, kind.String())
	if err != nil {
		return fmt.Errorf("failed to insert node %s: %w", name, err)
	}
	return nil
}

// handle is a logical group or dataset handle; closing only marks it.
type handle struct {
	id     string
	closed bool
}

func (h *handle) ID() string     { return h.id }
func (h *handle) isClosed() bool { return h.closed }

func (h *handle) Close() error {
	if h.closed {
		return fmt.Errorf("resource %s closed twice", h.id)
	}
	h.closed = true
	return nil
}

// container closes the database with the root node.
type container struct {
	handle
	b *Backend
}

func (c *container) Close() error {
	if err := c.handle.Close(); err != nil {
		return err
	}
	return c.b.Close()
}
