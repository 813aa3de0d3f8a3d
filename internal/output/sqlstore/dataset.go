package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

type dataset struct {
	handle
	db      *sql.DB
	desc    core.RecordDescriptor
	records uint64
}

func newDataset(db *sql.DB, name string, desc core.RecordDescriptor) *dataset {
	return &dataset{handle: handle{id: name}, db: db, desc: desc.Clone()}
}

// Extend updates the record count, dropping rows beyond a shrunk extent.
func (d *dataset) Extend(leading uint64) error {
	if d.closed {
		return fmt.Errorf("dataset %s: %w", d.id, core.ErrNodeClosed)
	}
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if leading < d.records {
		if _, err := tx.Exec(`DELETE FROM records WHERE dataset = ? AND idx >= ?`, d.id, int64(leading)); err != nil {
			return fmt.Errorf("failed to shrink %s: %w", d.id, err)
		}
	}
	if _, err := tx.Exec(`UPDATE datasets SET n_records = ? WHERE name = ?`, int64(leading), d.id); err != nil {
		return fmt.Errorf("failed to extend %s: %w", d.id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit extent of %s: %w", d.id, err)
	}
	d.records = leading
	return nil
}

// WriteRecords stores one row per record in a single transaction.
func (d *dataset) WriteRecords(offset, count uint64, buf any) error {
	if d.closed {
		return fmt.Errorf("dataset %s: %w", d.id, core.ErrNodeClosed)
	}
	if offset+count > d.records {
		return fmt.Errorf("write of records [%d, %d) outside extent %d", offset, offset+count, d.records)
	}
	n := int(d.desc.RecordLen())
	if _, size, ok := core.ElementTypeOf(buf); !ok || size < int(count)*n {
		return fmt.Errorf("%w: buffer %T too short for %d records", core.ErrShapeMismatch, buf, count)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for k := 0; k < int(count); k++ {
		blob, err := encode(sliceRecord(buf, k, n))
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT OR REPLACE INTO records (dataset, idx, data) VALUES (?, ?, ?)`,
			d.id, int64(offset)+int64(k), blob,
		)
		if err != nil {
			return fmt.Errorf("failed to write record %d of %s: %w", int(offset)+k, d.id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records of %s: %w", d.id, err)
	}
	return nil
}
