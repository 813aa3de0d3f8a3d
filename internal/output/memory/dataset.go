package memory

import (
	"fmt"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Dataset is an in-memory growable dataset. Its data is a flat typed slice
// holding leading*RecordLen elements in row-major order.
type Dataset struct {
	handle
	desc    core.RecordDescriptor
	chunk   []uint64
	leading uint64
	data    any
}

// Descriptor returns the record schema.
func (d *Dataset) Descriptor() core.RecordDescriptor { return d.desc.Clone() }

// Chunk returns the chunk shape requested at creation.
func (d *Dataset) Chunk() []uint64 { return append([]uint64(nil), d.chunk...) }

// Shape returns the current dataset shape {leading, dims...}.
func (d *Dataset) Shape() []uint64 { return d.desc.Shape(d.leading) }

// Data returns the flat typed slice backing the dataset.
func (d *Dataset) Data() any { return d.data }

// Record returns a copy of record k as a typed slice.
func (d *Dataset) Record(k uint64) (any, error) {
	if k >= d.leading {
		return nil, fmt.Errorf("record %d out of range [0, %d)", k, d.leading)
	}
	n := d.desc.RecordLen()
	out, err := makeSlice(d.desc.Type, int(n))
	if err != nil {
		return nil, err
	}
	if err := copyInto(out, d.data, 0, int(k*n), int(n)); err != nil {
		return nil, err
	}
	return out, nil
}

// Extend sets the leading axis length, keeping existing records.
func (d *Dataset) Extend(leading uint64) error {
	if d.closed {
		return fmt.Errorf("dataset %s: %w", d.id, core.ErrNodeClosed)
	}
	grown, err := resize(d.data, int(leading*d.desc.RecordLen()))
	if err != nil {
		return err
	}
	d.data = grown
	d.leading = leading
	d.b.record(OpExtend, d.id)
	return nil
}

// WriteRecords copies count records from buf into [offset, offset+count).
func (d *Dataset) WriteRecords(offset, count uint64, buf any) error {
	if d.closed {
		return fmt.Errorf("dataset %s: %w", d.id, core.ErrNodeClosed)
	}
	if offset+count > d.leading {
		return fmt.Errorf("write of records [%d, %d) outside extent %d", offset, offset+count, d.leading)
	}
	n := d.desc.RecordLen()
	if err := copyInto(d.data, buf, int(offset*n), 0, int(count*n)); err != nil {
		return err
	}
	d.b.record(OpWrite, d.id)
	return nil
}

func makeSlice(t core.ElementType, n int) (any, error) {
	switch t {
	case core.TypeInt8:
		return make([]int8, n), nil
	case core.TypeUint8:
		return make([]uint8, n), nil
	case core.TypeInt32:
		return make([]int32, n), nil
	case core.TypeUint32:
		return make([]uint32, n), nil
	case core.TypeInt64:
		return make([]int64, n), nil
	case core.TypeUint64:
		return make([]uint64, n), nil
	case core.TypeFloat32:
		return make([]float32, n), nil
	case core.TypeFloat64:
		return make([]float64, n), nil
	default:
		return nil, fmt.Errorf("%w: memory datasets cannot hold %s", core.ErrTypeMismatch, t)
	}
}

func resize(data any, n int) (any, error) {
	switch s := data.(type) {
	case []int8:
		return resizeSlice(s, n), nil
	case []uint8:
		return resizeSlice(s, n), nil
	case []int32:
		return resizeSlice(s, n), nil
	case []uint32:
		return resizeSlice(s, n), nil
	case []int64:
		return resizeSlice(s, n), nil
	case []uint64:
		return resizeSlice(s, n), nil
	case []float32:
		return resizeSlice(s, n), nil
	case []float64:
		return resizeSlice(s, n), nil
	default:
		return nil, fmt.Errorf("%w: %T", core.ErrTypeMismatch, data)
	}
}

func resizeSlice[T any](s []T, n int) []T {
	if n <= len(s) {
		return s[:n]
	}
	return append(s, make([]T, n-len(s))...)
}

// copyInto copies n elements from src[srcOff:] to dst[dstOff:]; both must
// be slices of the same element type.
func copyInto(dst, src any, dstOff, srcOff, n int) error {
	switch d := dst.(type) {
	case []int8:
		return copyTyped(d, src, dstOff, srcOff, n)
	case []uint8:
		return copyTyped(d, src, dstOff, srcOff, n)
	case []int32:
		return copyTyped(d, src, dstOff, srcOff, n)
	case []uint32:
		return copyTyped(d, src, dstOff, srcOff, n)
	case []int64:
		return copyTyped(d, src, dstOff, srcOff, n)
	case []uint64:
		return copyTyped(d, src, dstOff, srcOff, n)
	case []float32:
		return copyTyped(d, src, dstOff, srcOff, n)
	case []float64:
		return copyTyped(d, src, dstOff, srcOff, n)
	default:
		return fmt.Errorf("%w: %T", core.ErrTypeMismatch, dst)
	}
}

func copyTyped[T any](dst []T, src any, dstOff, srcOff, n int) error {
	s, ok := src.([]T)
	if !ok {
		return fmt.Errorf("%w: cannot copy %T into %T", core.ErrTypeMismatch, src, dst)
	}
	if srcOff+n > len(s) || dstOff+n > len(dst) {
		return fmt.Errorf("%w: copy of %d elements out of bounds", core.ErrShapeMismatch, n)
	}
	copy(dst[dstOff:dstOff+n], s[srcOff:srcOff+n])
	return nil
}
