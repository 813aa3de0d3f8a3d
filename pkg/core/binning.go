package core

import (
	"fmt"
	"math"
	"strings"
)

// BinSpec describes one evenly spaced binning axis over [Lower, Upper).
type BinSpec struct {
	Lower float64 `koanf:"lower" json:"lower"`
	Upper float64 `koanf:"upper" json:"upper"`
	Count int     `koanf:"count" json:"count"`
}

// Validate checks that both bounds are finite, Upper > Lower and Count >= 1.
func (b BinSpec) Validate() error {
	if !finite(b.Lower) || !finite(b.Upper) {
		return fmt.Errorf("%w: bounds [%g, %g) must be finite", ErrInvalidBins, b.Lower, b.Upper)
	}
	if math.IsInf(b.Upper-b.Lower, 0) {
		return fmt.Errorf("%w: range [%g, %g) overflows", ErrInvalidBins, b.Lower, b.Upper)
	}
	if !(b.Upper > b.Lower) {
		return fmt.Errorf("%w: upper %g must exceed lower %g", ErrInvalidBins, b.Upper, b.Lower)
	}
	if b.Count < 1 {
		return fmt.Errorf("%w: bin count %d must be at least 1", ErrInvalidBins, b.Count)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Contains reports whether v lies in [Lower, Upper).
func (b BinSpec) Contains(v float64) bool {
	return v >= b.Lower && v < b.Upper
}

// Index returns the bin of v. There is no boundary check: callers must
// filter with Contains first.
func (b BinSpec) Index(v float64) int {
	return int((v - b.Lower) / (b.Upper - b.Lower) * float64(b.Count))
}

// Width returns the width of a single bin.
func (b BinSpec) Width() float64 {
	return (b.Upper - b.Lower) / float64(b.Count)
}

// Method selects the per-bin statistic computed by a 2D binning reduction.
type Method int

// The closed set of reduction methods.
const (
	MethodCount Method = iota
	MethodSum
	MethodMean
	MethodStd
)

var methodNames = map[Method]string{
	MethodCount: "count",
	MethodSum:   "sum",
	MethodMean:  "mean",
	MethodStd:   "std",
}

// String returns the lowercase method name.
func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	_, ok := methodNames[m]
	return ok
}

// NeedsData reports whether the method reads a per-particle value array.
func (m Method) NeedsData() bool {
	return m == MethodSum || m == MethodMean || m == MethodStd
}

// ParseMethod converts a method name (case-insensitive) to a Method.
func ParseMethod(s string) (Method, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m, n := range methodNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedMethod, s)
}
