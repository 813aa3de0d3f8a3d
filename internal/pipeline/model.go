package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/leapstack-labs/galotfa/internal/config"
	"github.com/leapstack-labs/galotfa/internal/selector"
	"github.com/leapstack-labs/galotfa/internal/stats"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Model output layout.
const (
	ModelGroup  = "/model"
	ImageGroup  = "/model/image"
	ScalarGroup = "/model/scalar"
)

type image struct {
	plane   string
	x, y    core.Axis
	method  core.Method
	dataset string
}

// modelAnalysis bins the selected particles into face-on and edge-on
// images and evaluates the configured scalars.
type modelAnalysis struct {
	cfg      config.ModelConfig
	engine   *stats.Engine
	logger   *slog.Logger
	selector *selector.Selector
	bins     core.BinSpec
	value    core.Axis
	images   []image
	scalars  []ScalarDiagnostic
	out      *sink
}

func newModelAnalysis(p *Pipeline) (_ *modelAnalysis, err error) {
	cfg := p.cfg.Model
	m := &modelAnalysis{
		cfg:      cfg,
		engine:   p.engine,
		logger:   p.logger.With(slog.String("analysis", "model")),
		selector: selector.New(cfg.ParticleTypes, nil),
		bins: core.BinSpec{
			Lower: -cfg.RegionSize,
			Upper: cfg.RegionSize,
			Count: cfg.Image.Bins,
		},
	}

	if cfg.Image.Enabled {
		if m.value, err = cfg.Image.ValueAxis(); err != nil {
			return nil, err
		}
		for _, plane := range cfg.Image.Planes {
			x, xerr := core.ParseAxis(plane[:1])
			y, yerr := core.ParseAxis(plane[1:])
			if xerr != nil || yerr != nil {
				return nil, fmt.Errorf("unknown image plane %q", plane)
			}
			for _, name := range cfg.Image.Methods {
				method, err := core.ParseMethod(name)
				if err != nil {
					return nil, err
				}
				m.images = append(m.images, image{
					plane:   plane,
					x:       x,
					y:       y,
					method:  method,
					dataset: path.Join(ImageGroup, plane, method.String()),
				})
			}
		}
	}
	for _, name := range cfg.Scalars {
		d, err := NewScalar(name)
		if err != nil {
			return nil, err
		}
		m.scalars = append(m.scalars, d)
	}

	if m.out, err = p.openStore("model", cfg.Filename); err != nil {
		return nil, err
	}
	if m.out != nil {
		if err := m.layout(); err != nil {
			return nil, errors.Join(err, m.out.close())
		}
		m.logger.Info("model output ready",
			slog.String("path", m.out.store.Path()),
			slog.Int("images", len(m.images)),
			slog.Int("scalars", len(m.scalars)))
	}
	return m, nil
}

// layout creates the groups, datasets and attributes of the model file.
func (m *modelAnalysis) layout() error {
	s := m.out
	if err := s.group(ModelGroup); err != nil {
		return err
	}
	if err := s.attr(ModelGroup, "period", core.Scalar(core.TypeInt64), m.cfg.Period); err != nil {
		return err
	}
	if n := len(m.cfg.ParticleTypes); n > 0 {
		if err := s.attr(ModelGroup, "particle_types", core.Array(core.TypeUint32, uint64(n)), m.cfg.ParticleTypes); err != nil {
			return err
		}
	}
	for _, ds := range []struct {
		name string
		t    core.ElementType
	}{
		{ModelGroup + "/step", core.TypeInt64},
		{ModelGroup + "/time", core.TypeFloat64},
		{ModelGroup + "/particle_count", core.TypeUint64},
	} {
		if err := s.dataset(ds.name, core.Scalar(ds.t)); err != nil {
			return err
		}
	}

	if len(m.images) > 0 {
		if err := s.group(ImageGroup); err != nil {
			return err
		}
		if err := s.attr(ImageGroup, "bins", core.Scalar(core.TypeInt64), m.bins.Count); err != nil {
			return err
		}
		if err := s.attr(ImageGroup, "range", core.Array(core.TypeFloat64, 2), []float64{m.bins.Lower, m.bins.Upper}); err != nil {
			return err
		}
	}
	planes := map[string]bool{}
	bins := uint64(m.bins.Count)
	for _, img := range m.images {
		if !planes[img.plane] {
			planes[img.plane] = true
			if err := s.group(path.Join(ImageGroup, img.plane)); err != nil {
				return err
			}
		}
		if err := s.dataset(img.dataset, core.Array(core.TypeFloat64, bins, bins)); err != nil {
			return err
		}
		if err := s.attr(img.dataset, "method", core.Scalar(core.TypeString), img.method.String()); err != nil {
			return err
		}
		if img.method.NeedsData() {
			if err := s.attr(img.dataset, "value", core.Scalar(core.TypeString), m.valueName(img.method)); err != nil {
				return err
			}
		}
	}

	if len(m.scalars) > 0 {
		if err := s.group(ScalarGroup); err != nil {
			return err
		}
		for _, d := range m.scalars {
			if err := s.dataset(path.Join(ScalarGroup, d.Name()), core.Scalar(core.TypeFloat64)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *modelAnalysis) name() string  { return "model" }
func (m *modelAnalysis) period() int64 { return m.cfg.Period }
func (m *modelAnalysis) close() error  { return m.out.close() }

func (m *modelAnalysis) valueName(method core.Method) string {
	if method == core.MethodSum {
		return "mass"
	}
	return "v" + m.value.String()
}

func (m *modelAnalysis) data(p *core.Particles, method core.Method) []float64 {
	switch method {
	case core.MethodSum:
		return p.Masses
	case core.MethodMean, core.MethodStd:
		return p.Velocity(m.value)
	default:
		return nil
	}
}

func (m *modelAnalysis) run(ctx context.Context, step int64, time float64, p *core.Particles) error {
	sel := m.selector.Select(p)
	comm := m.engine.Comm()
	root := m.engine.Collector()

	total := make([]uint64, 1)
	if err := comm.ReduceUint64(ctx, root, []uint64{uint64(sel.Len())}, total); err != nil {
		return fmt.Errorf("failed to reduce particle count: %w", err)
	}

	images := make([][]float64, len(m.images))
	for i, img := range m.images {
		res, err := m.engine.Bin2D(ctx, stats.Bin2DInput{
			X:      sel.Position(img.x),
			Y:      sel.Position(img.y),
			XBins:  m.bins,
			YBins:  m.bins,
			Method: img.method,
			Data:   m.data(sel, img.method),
		})
		if err != nil {
			return fmt.Errorf("image %s: %w", img.dataset, err)
		}
		images[i] = res
	}

	scalars := make([]float64, len(m.scalars))
	for i, d := range m.scalars {
		v, err := d.Compute(ctx, comm, root, sel)
		if err != nil {
			return fmt.Errorf("scalar %s: %w", d.Name(), err)
		}
		scalars[i] = v
	}

	if m.out == nil {
		return nil
	}
	// All collectives of the step are done before the first push.
	s := m.out
	if err := s.push(ModelGroup+"/step", []int64{step}, 1); err != nil {
		return err
	}
	if err := s.push(ModelGroup+"/time", []float64{time}, 1); err != nil {
		return err
	}
	if err := s.push(ModelGroup+"/particle_count", total, 1); err != nil {
		return err
	}
	for i, img := range m.images {
		if err := s.push(img.dataset, images[i], len(images[i])); err != nil {
			return err
		}
	}
	for i, d := range m.scalars {
		if err := s.push(path.Join(ScalarGroup, d.Name()), scalars[i:i+1], 1); err != nil {
			return err
		}
	}
	return nil
}
