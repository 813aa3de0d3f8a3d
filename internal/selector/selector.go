// Package selector picks the particles an analysis looks at: by particle
// type, and by an explicit id list that can be read from a file and
// down-sampled.
package selector

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// ReadIDs parses one particle id per line. Blank lines and lines starting
// with # are skipped and the result is sorted with duplicates removed.
func ReadIDs(r io.Reader) ([]uint32, error) {
	var ids []uint32
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseUint(text, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("line %d: unexpected value %q: %w", line, text, err)
		}
		ids = append(ids, uint32(v))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ids: %w", err)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}

// ReadIDFile reads an id list file, see ReadIDs.
func ReadIDFile(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("particle id file: %w", err)
	}
	defer func() { _ = f.Close() }()

	ids, err := ReadIDs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ids, nil
}

// Sample returns floor(len(raw)*fraction) ids drawn without replacement,
// keeping their order in raw. fraction must lie in (0, 1]; 1 returns a copy
// of raw. Ranks that must agree on the sample share the seed of rng.
func Sample(raw []uint32, fraction float64, rng *rand.Rand) ([]uint32, error) {
	if !(fraction > 0 && fraction <= 1) {
		return nil, fmt.Errorf("illegal selection fraction %g: must lie in (0, 1]", fraction)
	}
	if fraction == 1 {
		return slices.Clone(raw), nil
	}

	k := int(float64(len(raw)) * fraction)
	// selection sampling keeps the input order
	out := make([]uint32, 0, k)
	for i, id := range raw {
		remaining := len(raw) - i
		need := k - len(out)
		if need == 0 {
			break
		}
		if rng.IntN(remaining) < need {
			out = append(out, id)
		}
	}
	return out, nil
}

// Selector filters particles by type and id.
type Selector struct {
	types map[uint32]struct{}
	ids   map[uint32]struct{}
}

// New creates a selector. An empty types list accepts every type; a nil
// ids list accepts every id.
func New(types []uint32, ids []uint32) *Selector {
	s := &Selector{}
	if len(types) > 0 {
		s.types = make(map[uint32]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
	if ids != nil {
		s.ids = make(map[uint32]struct{}, len(ids))
		for _, id := range ids {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

// Accepts reports whether a particle passes both filters.
func (s *Selector) Accepts(id, typ uint32) bool {
	if s.types != nil {
		if _, ok := s.types[typ]; !ok {
			return false
		}
	}
	if s.ids != nil {
		if _, ok := s.ids[id]; !ok {
			return false
		}
	}
	return true
}

// Indices returns the indices of the accepted particles.
func (s *Selector) Indices(p *core.Particles) []int {
	idx := make([]int, 0, p.Len())
	for i := range p.IDs {
		if s.Accepts(p.IDs[i], p.Types[i]) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Select returns a copy of the accepted particles. Without filters it
// returns p itself.
func (s *Selector) Select(p *core.Particles) *core.Particles {
	if s.types == nil && s.ids == nil {
		return p
	}
	return p.Subset(s.Indices(p))
}
