package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/leapstack-labs/galotfa/internal/config"
	"github.com/leapstack-labs/galotfa/internal/selector"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

// OrbitGroup is the group of the orbit log.
const OrbitGroup = "/orbit"

// orbitAnalysis logs the phase-space coordinates of a fixed set of
// particles. Row k of every record belongs to ids[k]; a particle that no
// rank holds at a step keeps zero coordinates and a zero found count.
type orbitAnalysis struct {
	cfg    config.OrbitConfig
	comm   core.Communicator
	root   int
	logger *slog.Logger
	ids    []uint32
	index  map[uint32]int
	out    *sink
}

func newOrbitAnalysis(p *Pipeline) (_ *orbitAnalysis, err error) {
	cfg := p.cfg.Orbit
	raw, err := selector.ReadIDFile(cfg.IDFile)
	if err != nil {
		return nil, err
	}
	// every rank draws the same sample from the shared seed
	ids, err := selector.Sample(raw, cfg.Fraction, rand.New(rand.NewPCG(cfg.Seed, 0)))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no particle selected for the orbit log from %s", cfg.IDFile)
	}

	o := &orbitAnalysis{
		cfg:    cfg,
		comm:   p.engine.Comm(),
		root:   p.engine.Collector(),
		logger: p.logger.With(slog.String("analysis", "orbit")),
		ids:    ids,
		index:  make(map[uint32]int, len(ids)),
	}
	for k, id := range ids {
		o.index[id] = k
	}

	if o.out, err = p.openStore("orbit", cfg.Filename); err != nil {
		return nil, err
	}
	if o.out != nil {
		if err := o.layout(); err != nil {
			return nil, errors.Join(err, o.out.close())
		}
		o.logger.Info("orbit output ready",
			slog.String("path", o.out.store.Path()),
			slog.Int("particles", len(ids)),
			slog.Int("listed", len(raw)))
	}
	return o, nil
}

func (o *orbitAnalysis) layout() error {
	s := o.out
	k := uint64(len(o.ids))
	if err := s.group(OrbitGroup); err != nil {
		return err
	}
	if err := s.attr(OrbitGroup, "ids", core.Array(core.TypeUint32, k), o.ids); err != nil {
		return err
	}
	if err := s.attr(OrbitGroup, "period", core.Scalar(core.TypeInt64), o.cfg.Period); err != nil {
		return err
	}
	if err := s.attr(OrbitGroup, "fraction", core.Scalar(core.TypeFloat64), o.cfg.Fraction); err != nil {
		return err
	}
	datasets := []struct {
		name string
		desc core.RecordDescriptor
	}{
		{OrbitGroup + "/step", core.Scalar(core.TypeInt64)},
		{OrbitGroup + "/time", core.Scalar(core.TypeFloat64)},
		{OrbitGroup + "/position", core.Array(core.TypeFloat64, k, 3)},
		{OrbitGroup + "/velocity", core.Array(core.TypeFloat64, k, 3)},
		{OrbitGroup + "/found", core.Array(core.TypeUint64, k)},
	}
	for _, ds := range datasets {
		if err := s.dataset(ds.name, ds.desc); err != nil {
			return err
		}
	}
	return nil
}

func (o *orbitAnalysis) name() string  { return "orbit" }
func (o *orbitAnalysis) period() int64 { return o.cfg.Period }
func (o *orbitAnalysis) close() error  { return o.out.close() }

func (o *orbitAnalysis) run(ctx context.Context, step int64, time float64, p *core.Particles) error {
	k := len(o.ids)
	pos := make([]float64, 3*k)
	vel := make([]float64, 3*k)
	found := make([]uint64, k)
	for i, id := range p.IDs {
		row, ok := o.index[id]
		if !ok {
			continue
		}
		copy(pos[3*row:3*row+3], p.Coordinates[3*i:3*i+3])
		copy(vel[3*row:3*row+3], p.Velocities[3*i:3*i+3])
		found[row]++
	}

	var gpos, gvel []float64
	var gfound []uint64
	if o.out != nil {
		gpos = make([]float64, 3*k)
		gvel = make([]float64, 3*k)
		gfound = make([]uint64, k)
	}
	if err := o.comm.ReduceFloat64(ctx, o.root, pos, gpos); err != nil {
		return fmt.Errorf("failed to reduce positions: %w", err)
	}
	if err := o.comm.ReduceFloat64(ctx, o.root, vel, gvel); err != nil {
		return fmt.Errorf("failed to reduce velocities: %w", err)
	}
	if err := o.comm.ReduceUint64(ctx, o.root, found, gfound); err != nil {
		return fmt.Errorf("failed to reduce found counts: %w", err)
	}

	if o.out == nil {
		return nil
	}
	var missing int
	for _, n := range gfound {
		if n == 0 {
			missing++
		}
	}
	if missing > 0 {
		o.logger.Warn("orbit particles not found", slog.Int64("step", step), slog.Int("missing", missing))
	}

	s := o.out
	if err := s.push(OrbitGroup+"/step", []int64{step}, 1); err != nil {
		return err
	}
	if err := s.push(OrbitGroup+"/time", []float64{time}, 1); err != nil {
		return err
	}
	if err := s.push(OrbitGroup+"/position", gpos, len(gpos)); err != nil {
		return err
	}
	if err := s.push(OrbitGroup+"/velocity", gvel, len(gvel)); err != nil {
		return err
	}
	return s.push(OrbitGroup+"/found", gfound, len(gfound))
}
