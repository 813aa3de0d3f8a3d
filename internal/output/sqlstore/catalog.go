package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// NodeInfo is one row of the nodes table.
type NodeInfo struct {
	Name   string
	Parent string
	Kind   string
}

// DatasetInfo describes a stored dataset.
type DatasetInfo struct {
	Name       string
	Descriptor core.RecordDescriptor
	Chunk      []uint64
	Records    uint64
}

// Shape returns the dataset shape {records, dims...}.
func (d DatasetInfo) Shape() []uint64 {
	return d.Descriptor.Shape(d.Records)
}

// AttributeInfo is one decoded attribute.
type AttributeInfo struct {
	Node       string
	Name       string
	Descriptor core.RecordDescriptor
	Value      any
}

// Catalog is the full metadata of a container.
type Catalog struct {
	Nodes      []NodeInfo
	Datasets   map[string]DatasetInfo
	Attributes []AttributeInfo
}

// ReadCatalog loads nodes, datasets and attributes, ordered by name.
func ReadCatalog(ctx context.Context, db *sql.DB) (*Catalog, error) {
	cat := &Catalog{Datasets: make(map[string]DatasetInfo)}

	rows, err := db.QueryContext(ctx, `SELECT name, parent, kind FROM nodes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	for rows.Next() {
		var n NodeInfo
		if err := rows.Scan(&n.Name, &n.Parent, &n.Kind); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		cat.Nodes = append(cat.Nodes, n)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	rows, err = db.QueryContext(ctx, `SELECT name, element_type, dims, chunk, n_records FROM datasets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query datasets: %w", err)
	}
	for rows.Next() {
		var (
			info             DatasetInfo
			typ, dims, chunk string
			records          int64
		)
		if err := rows.Scan(&info.Name, &typ, &dims, &chunk, &records); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		desc, err := descriptor(typ, dims)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("dataset %s: %w", info.Name, err)
		}
		info.Descriptor = desc
		if info.Chunk, err = ParseDims(chunk); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("dataset %s: %w", info.Name, err)
		}
		info.Records = uint64(records)
		cat.Datasets[info.Name] = info
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating datasets: %w", err)
	}

	rows, err = db.QueryContext(ctx, `SELECT node, name, element_type, dims, value FROM attributes ORDER BY node, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query attributes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			a         AttributeInfo
			typ, dims string
			blob      []byte
		)
		if err := rows.Scan(&a.Node, &a.Name, &typ, &dims, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan attribute: %w", err)
		}
		if a.Descriptor, err = descriptor(typ, dims); err != nil {
			return nil, fmt.Errorf("attribute %s on %s: %w", a.Name, a.Node, err)
		}
		if blob != nil {
			if a.Value, err = Decode(a.Descriptor.Type, int(a.Descriptor.RecordLen()), blob); err != nil {
				return nil, fmt.Errorf("attribute %s on %s: %w", a.Name, a.Node, err)
			}
		}
		cat.Attributes = append(cat.Attributes, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attributes: %w", err)
	}
	return cat, nil
}

// ReadRecords returns every record of a dataset in append order, each as a
// typed slice of RecordLen elements.
func ReadRecords(ctx context.Context, db *sql.DB, info DatasetInfo) ([]any, error) {
	rows, err := db.QueryContext(ctx, `SELECT idx, data FROM records WHERE dataset = ? ORDER BY idx`, info.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query records of %s: %w", info.Name, err)
	}
	defer func() { _ = rows.Close() }()

	n := int(info.Descriptor.RecordLen())
	out := make([]any, 0, info.Records)
	for rows.Next() {
		var (
			idx  int64
			blob []byte
		)
		if err := rows.Scan(&idx, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan record of %s: %w", info.Name, err)
		}
		if idx != int64(len(out)) {
			return nil, fmt.Errorf("dataset %s: record %d missing", info.Name, len(out))
		}
		rec, err := Decode(info.Descriptor.Type, n, blob)
		if err != nil {
			return nil, fmt.Errorf("dataset %s record %d: %w", info.Name, idx, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records of %s: %w", info.Name, err)
	}
	return out, nil
}

func descriptor(typ, dims string) (core.RecordDescriptor, error) {
	t, err := core.ParseElementType(typ)
	if err != nil {
		return core.RecordDescriptor{}, err
	}
	d, err := ParseDims(dims)
	if err != nil {
		return core.RecordDescriptor{}, err
	}
	return core.RecordDescriptor{Type: t, Dims: d}, nil
}
