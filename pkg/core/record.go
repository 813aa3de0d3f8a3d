package core

import (
	"fmt"
	"strings"
)

// ElementType tags the scalar type stored in a dataset or attribute.
type ElementType int

// Supported element types.
const (
	TypeInvalid ElementType = iota
	TypeInt8
	TypeUint8
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeFloat32
	TypeFloat64
	TypeString
)

var elementTypeNames = map[ElementType]string{
	TypeInt8:    "int8",
	TypeUint8:   "uint8",
	TypeInt32:   "int32",
	TypeUint32:  "uint32",
	TypeInt64:   "int64",
	TypeUint64:  "uint64",
	TypeFloat32: "float32",
	TypeFloat64: "float64",
	TypeString:  "string",
}

func (t ElementType) String() string {
	if s, ok := elementTypeNames[t]; ok {
		return s
	}
	return "invalid"
}

// Size returns the width of one element in bytes, or 0 for strings.
func (t ElementType) Size() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeInt64, TypeUint64, TypeFloat64:
		return 8
	default:
		return 0
	}
}

// ParseElementType converts a type name to an ElementType.
func ParseElementType(s string) (ElementType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range elementTypeNames {
		if n == name {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("unknown element type %q", s)
}

// ElementTypeOf inspects a typed slice and returns its element type and length.
// ok is false for values that are not a supported slice type.
func ElementTypeOf(buf any) (t ElementType, n int, ok bool) {
	switch b := buf.(type) {
	case []int8:
		return TypeInt8, len(b), true
	case []uint8:
		return TypeUint8, len(b), true
	case []int32:
		return TypeInt32, len(b), true
	case []uint32:
		return TypeUint32, len(b), true
	case []int64:
		return TypeInt64, len(b), true
	case []uint64:
		return TypeUint64, len(b), true
	case []float32:
		return TypeFloat32, len(b), true
	case []float64:
		return TypeFloat64, len(b), true
	case []string:
		return TypeString, len(b), true
	default:
		return TypeInvalid, 0, false
	}
}

// RecordDescriptor is the schema of the records appended to a dataset.
//
// Dims is the shape of ONE record. The dataset itself has shape
// {n, Dims...} where n is the number of appended records, so a scalar time
// series has empty Dims and a 100x100 image per step has Dims {100, 100}.
type RecordDescriptor struct {
	Type ElementType
	Dims []uint64
}

// Validate rejects invalid element types and zero-length axes.
func (d RecordDescriptor) Validate() error {
	if _, ok := elementTypeNames[d.Type]; !ok {
		return fmt.Errorf("%w: invalid element type %d", ErrTypeMismatch, int(d.Type))
	}
	for i, n := range d.Dims {
		if n == 0 {
			return fmt.Errorf("%w: axis %d has zero extent", ErrShapeMismatch, i+1)
		}
	}
	return nil
}

// Rank returns the dataset rank: the leading axis plus the record axes.
func (d RecordDescriptor) Rank() int {
	return len(d.Dims) + 1
}

// RecordLen returns the number of elements in one record.
func (d RecordDescriptor) RecordLen() uint64 {
	n := uint64(1)
	for _, v := range d.Dims {
		n *= v
	}
	return n
}

// Shape returns the dataset shape after n records.
func (d RecordDescriptor) Shape(n uint64) []uint64 {
	return d.withLeading(n)
}

// ExtensionShape returns {1, Dims...}: the growth of a single append.
func (d RecordDescriptor) ExtensionShape() []uint64 {
	return d.withLeading(1)
}

// ChunkShape returns {chunk, Dims...}.
func (d RecordDescriptor) ChunkShape(chunk uint64) []uint64 {
	return d.withLeading(chunk)
}

// Clone returns a deep copy.
func (d RecordDescriptor) Clone() RecordDescriptor {
	dims := make([]uint64, len(d.Dims))
	copy(dims, d.Dims)
	return RecordDescriptor{Type: d.Type, Dims: dims}
}

// Equal reports whether two descriptors describe the same records.
func (d RecordDescriptor) Equal(o RecordDescriptor) bool {
	if d.Type != o.Type || len(d.Dims) != len(o.Dims) {
		return false
	}
	for i := range d.Dims {
		if d.Dims[i] != o.Dims[i] {
			return false
		}
	}
	return true
}

func (d RecordDescriptor) String() string {
	parts := make([]string, 0, len(d.Dims)+1)
	parts = append(parts, "n")
	for _, v := range d.Dims {
		parts = append(parts, fmt.Sprintf("%d", v))
	}
	return fmt.Sprintf("%s[%s]", d.Type, strings.Join(parts, "x"))
}

func (d RecordDescriptor) withLeading(n uint64) []uint64 {
	shape := make([]uint64, 0, len(d.Dims)+1)
	shape = append(shape, n)
	return append(shape, d.Dims...)
}

// Scalar returns a descriptor for one value per record.
func Scalar(t ElementType) RecordDescriptor {
	return RecordDescriptor{Type: t}
}

// Array returns a descriptor for records of the given shape.
func Array(t ElementType, dims ...uint64) RecordDescriptor {
	return RecordDescriptor{Type: t, Dims: dims}
}
