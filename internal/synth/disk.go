// Package synth generates synthetic galaxy snapshots for dry runs of the
// analysis pipeline.
//
// A Disk is an exponential stellar disk with a flattened bulge on a cored
// flat rotation curve. Particles move on circular orbits in the plane and
// oscillate harmonically in z, so a run produces smooth, rotating images
// without a real N-body integrator.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Particle types.
const (
	TypeDisk  uint32 = 2
	TypeBulge uint32 = 3
)

// DiskParams shapes the synthetic galaxy.
type DiskParams struct {
	ScaleLength   float64 // exponential disk scale length
	ScaleHeight   float64
	BulgeFraction float64
	BulgeRadius   float64
	CircularSpeed float64 // asymptotic rotation speed
	CoreRadius    float64 // radius below which the rotation curve is solid body
	VerticalFreq  float64 // frequency of the z oscillation
	Dispersion    float64 // isotropic velocity dispersion
	// BarStrength adds an m=2 overdensity to the initial disk, in [0, 1).
	BarStrength float64
}

// DefaultDiskParams returns a Milky Way like disk in kpc and km/s.
func DefaultDiskParams() DiskParams {
	return DiskParams{
		ScaleLength:   3,
		ScaleHeight:   0.3,
		BulgeFraction: 0.1,
		BulgeRadius:   0.8,
		CircularSpeed: 220,
		CoreRadius:    1.5,
		VerticalFreq:  70,
		Dispersion:    20,
		BarStrength:   0.3,
	}
}

// Disk is one rank's share of a synthetic galaxy.
type Disk struct {
	params DiskParams
	p      *core.Particles
	// per particle orbit parameters
	radius []float64
	phase  []float64
	omega  []float64
}

// NewDisk creates the share of rank in a galaxy of total particles split
// over size ranks. Particle ids are global and unique: rank r holds
// r+1, r+1+size, ... The draw depends on seed and rank only.
func NewDisk(params DiskParams, total, rank, size int, seed uint64) (*Disk, error) {
	if size < 1 || rank < 0 || rank >= size {
		return nil, fmt.Errorf("rank %d out of range for %d ranks", rank, size)
	}
	if total < 0 {
		return nil, fmt.Errorf("particle count must not be negative, got %d", total)
	}
	if params.ScaleLength <= 0 || params.CircularSpeed <= 0 || params.CoreRadius <= 0 {
		return nil, fmt.Errorf("scale length, circular speed and core radius must be positive")
	}
	if params.BarStrength < 0 || params.BarStrength >= 1 {
		return nil, fmt.Errorf("bar strength %g must lie in [0, 1)", params.BarStrength)
	}

	n := 0
	if rank < total {
		n = (total-rank-1)/size + 1
	}
	rng := rand.New(rand.NewPCG(seed, uint64(rank)))
	d := &Disk{
		params: params,
		p: &core.Particles{
			IDs:         make([]uint32, n),
			Types:       make([]uint32, n),
			Masses:      make([]float64, n),
			Coordinates: make([]float64, 3*n),
			Velocities:  make([]float64, 3*n),
		},
		radius: make([]float64, n),
		phase:  make([]float64, n),
		omega:  make([]float64, n),
	}

	mass := 1 / float64(max(total, 1))
	for i := 0; i < n; i++ {
		d.p.IDs[i] = uint32(rank + 1 + i*size)
		d.p.Masses[i] = mass

		var r, z float64
		if rng.Float64() < params.BulgeFraction {
			d.p.Types[i] = TypeBulge
			r = params.BulgeRadius * math.Abs(rng.NormFloat64())
			z = params.BulgeRadius * 0.5 * rng.NormFloat64()
		} else {
			d.p.Types[i] = TypeDisk
			// the sum of two exponential draws follows R exp(-R/h)
			r = params.ScaleLength * (rng.ExpFloat64() + rng.ExpFloat64()) / 2
			z = params.ScaleHeight * rng.NormFloat64()
		}
		d.radius[i] = r
		d.phase[i] = barPhase(rng, params.BarStrength)
		d.omega[i] = d.circularSpeed(r) / math.Max(r, 1e-6)

		d.p.Coordinates[3*i+2] = z
		d.p.Velocities[3*i+2] = params.Dispersion * rng.NormFloat64()
	}
	d.place()
	return d, nil
}

// barPhase draws an azimuth from 1 + s cos 2phi by rejection.
func barPhase(rng *rand.Rand, s float64) float64 {
	for {
		phi := 2 * math.Pi * rng.Float64()
		if rng.Float64()*(1+s) <= 1+s*math.Cos(2*phi) {
			return phi
		}
	}
}

func (d *Disk) circularSpeed(r float64) float64 {
	return d.params.CircularSpeed * r / math.Hypot(r, d.params.CoreRadius)
}

// place derives the in-plane coordinates and velocities from the phases.
func (d *Disk) place() {
	for i, r := range d.radius {
		sin, cos := math.Sincos(d.phase[i])
		v := d.omega[i] * r
		d.p.Coordinates[3*i] = r * cos
		d.p.Coordinates[3*i+1] = r * sin
		d.p.Velocities[3*i] = -v * sin
		d.p.Velocities[3*i+1] = v * cos
	}
}

// Particles returns the current snapshot. The buffers are reused by
// Advance.
func (d *Disk) Particles() *core.Particles { return d.p }

// Advance moves every particle along its orbit for dt.
func (d *Disk) Advance(dt float64) {
	nu := d.params.VerticalFreq
	sin, cos := math.Sincos(nu * dt)
	for i := range d.radius {
		d.phase[i] = math.Mod(d.phase[i]+d.omega[i]*dt, 2*math.Pi)
		z, vz := d.p.Coordinates[3*i+2], d.p.Velocities[3*i+2]
		if nu > 0 {
			d.p.Coordinates[3*i+2] = z*cos + vz/nu*sin
			d.p.Velocities[3*i+2] = vz*cos - z*nu*sin
		} else {
			d.p.Coordinates[3*i+2] = z + vz*dt
		}
	}
	d.place()
}
