package pipeline

import (
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// ScalarDiagnostic computes one global scalar per analysed step. Compute is
// collective; its result is only meaningful on root.
type ScalarDiagnostic interface {
	Name() string
	Compute(ctx context.Context, comm core.Communicator, root int, p *core.Particles) (float64, error)
}

var scalarFactories = map[string]func() ScalarDiagnostic{
	"total_mass": func() ScalarDiagnostic { return totalMass{} },
	"a2":         func() ScalarDiagnostic { return barAmplitude{} },
	"bar_angle":  func() ScalarDiagnostic { return barAngle{} },
}

// NewScalar returns the diagnostic registered under name.
func NewScalar(name string) (ScalarDiagnostic, error) {
	f, ok := scalarFactories[name]
	if !ok {
		return nil, fmt.Errorf("unknown scalar %q, available: %v", name, ScalarNames())
	}
	return f(), nil
}

// ScalarNames lists the registered diagnostics, sorted.
func ScalarNames() []string {
	names := make([]string, 0, len(scalarFactories))
	for n := range scalarFactories {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

type totalMass struct{}

func (totalMass) Name() string { return "total_mass" }

func (totalMass) Compute(ctx context.Context, comm core.Communicator, root int, p *core.Particles) (float64, error) {
	var local float64
	for _, m := range p.Masses {
		local += m
	}
	recv := make([]float64, 1)
	if err := comm.ReduceFloat64(ctx, root, []float64{local}, recv); err != nil {
		return 0, err
	}
	return recv[0], nil
}

// m2Moments reduces the mass weighted m=2 Fourier moments of the face-on
// distribution: sum m cos 2phi, sum m sin 2phi and sum m.
func m2Moments(ctx context.Context, comm core.Communicator, root int, p *core.Particles) ([3]float64, error) {
	var local [3]float64
	for i, m := range p.Masses {
		x, y := p.Coordinates[3*i], p.Coordinates[3*i+1]
		phi := math.Atan2(y, x)
		local[0] += m * math.Cos(2*phi)
		local[1] += m * math.Sin(2*phi)
		local[2] += m
	}
	recv := make([]float64, 3)
	if err := comm.ReduceFloat64(ctx, root, local[:], recv); err != nil {
		return [3]float64{}, err
	}
	return [3]float64(recv), nil
}

// barAmplitude is the normalised m=2 amplitude A2. It is NaN without mass.
type barAmplitude struct{}

func (barAmplitude) Name() string { return "a2" }

func (barAmplitude) Compute(ctx context.Context, comm core.Communicator, root int, p *core.Particles) (float64, error) {
	s, err := m2Moments(ctx, comm, root, p)
	if err != nil {
		return 0, err
	}
	if s[2] == 0 {
		return math.NaN(), nil
	}
	return math.Hypot(s[0], s[1]) / s[2], nil
}

// barAngle is the phase of the m=2 mode in (-pi/2, pi/2].
type barAngle struct{}

func (barAngle) Name() string { return "bar_angle" }

func (barAngle) Compute(ctx context.Context, comm core.Communicator, root int, p *core.Particles) (float64, error) {
	s, err := m2Moments(ctx, comm, root, p)
	if err != nil {
		return 0, err
	}
	if s[2] == 0 {
		return math.NaN(), nil
	}
	return 0.5 * math.Atan2(s[1], s[0]), nil
}
