package sqlstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// encode serialises a typed slice.
func encode(v any) ([]byte, error) {
	if s, ok := v.([]string); ok {
		return json.Marshal(s)
	}
	if _, _, ok := core.ElementTypeOf(v); !ok {
		return nil, fmt.Errorf("%w: cannot encode %T", core.ErrTypeMismatch, v)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Decode turns a blob written by the store back into a typed slice of n elements.
func Decode(t core.ElementType, n int, data []byte) (any, error) {
	var out any
	switch t {
	case core.TypeString:
		var s []string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode strings: %w", err)
		}
		return s, nil
	case core.TypeInt8:
		out = make([]int8, n)
	case core.TypeUint8:
		out = make([]uint8, n)
	case core.TypeInt32:
		out = make([]int32, n)
	case core.TypeUint32:
		out = make([]uint32, n)
	case core.TypeInt64:
		out = make([]int64, n)
	case core.TypeUint64:
		out = make([]uint64, n)
	case core.TypeFloat32:
		out = make([]float32, n)
	case core.TypeFloat64:
		out = make([]float64, n)
	default:
		return nil, fmt.Errorf("%w: cannot decode %s", core.ErrTypeMismatch, t)
	}
	if len(data) != n*t.Size() {
		return nil, fmt.Errorf("%w: blob of %d bytes does not hold %d %s values", core.ErrShapeMismatch, len(data), n, t)
	}
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, out); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", t, err)
	}
	return out, nil
}

// formatDims renders dims as "100,100"; empty for scalar records.
func formatDims(dims []uint64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.FormatUint(d, 10)
	}
	return strings.Join(parts, ",")
}

// ParseDims is the inverse of formatDims.
func ParseDims(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dims := make([]uint64, len(parts))
	for i, p := range parts {
		d, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid dims %q: %w", s, err)
		}
		dims[i] = d
	}
	return dims, nil
}

// sliceRecord returns elements [k*n, (k+1)*n) of a typed slice.
func sliceRecord(buf any, k, n int) any {
	lo, hi := k*n, (k+1)*n
	switch b := buf.(type) {
	case []int8:
		return b[lo:hi]
	case []uint8:
		return b[lo:hi]
	case []int32:
		return b[lo:hi]
	case []uint32:
		return b[lo:hi]
	case []int64:
		return b[lo:hi]
	case []uint64:
		return b[lo:hi]
	case []float32:
		return b[lo:hi]
	case []float64:
		return b[lo:hi]
	default:
		return nil
	}
}
