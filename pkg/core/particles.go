package core

import "fmt"

// Particles holds the per-rank particle buffers handed over by the
// simulation at an analysis step. Coordinates and velocities are laid out
// as consecutive (x, y, z) triples. The pipeline never takes ownership of
// the slices and never validates their physical units.
type Particles struct {
	IDs         []uint32
	Types       []uint32
	Masses      []float64
	Coordinates []float64
	Velocities  []float64
}

// Len returns the number of particles.
func (p *Particles) Len() int {
	return len(p.IDs)
}

// Validate checks that all buffers agree on the particle count.
func (p *Particles) Validate() error {
	n := len(p.IDs)
	if len(p.Types) != n || len(p.Masses) != n {
		return fmt.Errorf("%w: ids=%d types=%d masses=%d", ErrShapeMismatch, n, len(p.Types), len(p.Masses))
	}
	if len(p.Coordinates) != 3*n || len(p.Velocities) != 3*n {
		return fmt.Errorf("%w: expected %d coordinate and velocity components, got %d and %d",
			ErrShapeMismatch, 3*n, len(p.Coordinates), len(p.Velocities))
	}
	return nil
}

// Axis names one Cartesian component.
type Axis int

// Cartesian axes.
const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	return [...]string{"x", "y", "z"}[a]
}

// ParseAxis converts "x", "y" or "z" into an Axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// Position returns a fresh slice with the a-component of every coordinate.
func (p *Particles) Position(a Axis) []float64 {
	return component(p.Coordinates, a)
}

// Velocity returns a fresh slice with the a-component of every velocity.
func (p *Particles) Velocity(a Axis) []float64 {
	return component(p.Velocities, a)
}

// Subset returns the particles at the given indices, copied.
func (p *Particles) Subset(idx []int) *Particles {
	out := &Particles{
		IDs:         make([]uint32, len(idx)),
		Types:       make([]uint32, len(idx)),
		Masses:      make([]float64, len(idx)),
		Coordinates: make([]float64, 3*len(idx)),
		Velocities:  make([]float64, 3*len(idx)),
	}
	for j, i := range idx {
		out.IDs[j] = p.IDs[i]
		out.Types[j] = p.Types[i]
		out.Masses[j] = p.Masses[i]
		copy(out.Coordinates[3*j:3*j+3], p.Coordinates[3*i:3*i+3])
		copy(out.Velocities[3*j:3*j+3], p.Velocities[3*i:3*i+3])
	}
	return out
}

func component(xyz []float64, a Axis) []float64 {
	out := make([]float64, len(xyz)/3)
	for i := range out {
		out[i] = xyz[3*i+int(a)]
	}
	return out
}
