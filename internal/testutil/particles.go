package testutil

import (
	"math/rand/v2"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Particle is one fixture particle.
type Particle struct {
	ID   uint32
	Type uint32
	Mass float64
	Pos  [3]float64
	Vel  [3]float64
}

// NewParticles packs fixture particles into simulation buffers.
func NewParticles(ps ...Particle) *core.Particles {
	out := &core.Particles{
		IDs:         make([]uint32, 0, len(ps)),
		Types:       make([]uint32, 0, len(ps)),
		Masses:      make([]float64, 0, len(ps)),
		Coordinates: make([]float64, 0, 3*len(ps)),
		Velocities:  make([]float64, 0, 3*len(ps)),
	}
	for _, p := range ps {
		out.IDs = append(out.IDs, p.ID)
		out.Types = append(out.Types, p.Type)
		out.Masses = append(out.Masses, p.Mass)
		out.Coordinates = append(out.Coordinates, p.Pos[:]...)
		out.Velocities = append(out.Velocities, p.Vel[:]...)
	}
	return out
}

// RandomParticles returns n particles with ids 1..n, alternating types 1
// and 2, unit masses, x and y uniform in [-extent, extent) and a thin z.
func RandomParticles(n int, extent float64, seed uint64) *core.Particles {
	rng := rand.New(rand.NewPCG(seed, 1))
	ps := make([]Particle, n)
	uniform := func() float64 { return (2*rng.Float64() - 1) * extent }
	for i := range ps {
		ps[i] = Particle{
			ID:   uint32(i + 1),
			Type: uint32(1 + i%2),
			Mass: 1,
			Pos:  [3]float64{uniform(), uniform(), uniform() / 4},
			Vel:  [3]float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()},
		}
	}
	return NewParticles(ps...)
}

// Split deals the particles round-robin over size ranks and returns the
// share of rank.
func Split(p *core.Particles, rank, size int) *core.Particles {
	var idx []int
	for i := rank; i < p.Len(); i += size {
		idx = append(idx, i)
	}
	return p.Subset(idx)
}
