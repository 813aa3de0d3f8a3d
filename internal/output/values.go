package output

import (
	"fmt"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// attributeValue normalises an attribute value to a typed slice. Scalars
// are wrapped into one-element slices; nil stays nil (attribute without value).
func attributeValue(v any) any {
	switch x := v.(type) {
	case int8:
		return []int8{x}
	case uint8:
		return []uint8{x}
	case int32:
		return []int32{x}
	case uint32:
		return []uint32{x}
	case int64:
		return []int64{x}
	case int:
		return []int64{int64(x)}
	case uint64:
		return []uint64{x}
	case float32:
		return []float32{x}
	case float64:
		return []float64{x}
	case string:
		return []string{x}
	default:
		return v
	}
}

// checkValue verifies that a typed slice matches desc in type and length.
func checkValue(desc core.RecordDescriptor, v any) error {
	t, n, ok := core.ElementTypeOf(v)
	if !ok {
		return fmt.Errorf("%w: unsupported value type %T", core.ErrTypeMismatch, v)
	}
	if t != desc.Type {
		return fmt.Errorf("%w: value is %s, descriptor is %s", core.ErrTypeMismatch, t, desc.Type)
	}
	if uint64(n) != desc.RecordLen() {
		return fmt.Errorf("%w: value has %d elements, descriptor %s needs %d", core.ErrShapeMismatch, n, desc, desc.RecordLen())
	}
	return nil
}

// head returns buf[:n] for any supported typed slice.
func head(buf any, n int) any {
	switch b := buf.(type) {
	case []int8:
		return b[:n]
	case []uint8:
		return b[:n]
	case []int32:
		return b[:n]
	case []uint32:
		return b[:n]
	case []int64:
		return b[:n]
	case []uint64:
		return b[:n]
	case []float32:
		return b[:n]
	case []float64:
		return b[:n]
	case []string:
		return b[:n]
	default:
		return buf
	}
}
