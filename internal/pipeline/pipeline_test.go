package pipeline_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/galotfa/internal/collective"
	"github.com/leapstack-labs/galotfa/internal/config"
	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/internal/output/memory"
	"github.com/leapstack-labs/galotfa/internal/pipeline"
	"github.com/leapstack-labs/galotfa/internal/testutil"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

// backends hands out memory backends and remembers them per analysis.
type backends struct {
	mu   sync.Mutex
	byID map[string]*memory.Backend
}

func newBackends() *backends {
	return &backends{byID: map[string]*memory.Backend{}}
}

func (b *backends) factory(analysis string) (core.Backend, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mb := memory.New(nil)
	b.byID[analysis] = mb
	return mb, nil
}

func (b *backends) get(t *testing.T, analysis string) *memory.Backend {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	mb, ok := b.byID[analysis]
	require.True(t, ok, "no %s backend was created", analysis)
	return mb
}

func dataset(t *testing.T, b *memory.Backend, name string) *memory.Dataset {
	t.Helper()
	d, ok := b.Dataset(name)
	require.True(t, ok, "dataset %s", name)
	return d
}

func record(t *testing.T, b *memory.Backend, name string, k uint64) any {
	t.Helper()
	r, err := dataset(t, b, name).Record(k)
	require.NoError(t, err)
	return r
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Output.Backend = "memory"
	cfg.Model.Period = 2
	cfg.Model.RegionSize = 2
	cfg.Model.Image.Bins = 4
	cfg.Model.Image.Planes = []string{"xy"}
	cfg.Model.Image.Methods = []string{"count", "mean"}
	cfg.Model.Scalars = []string{"total_mass", "a2"}
	return cfg
}

func threeParticles() *core.Particles {
	return testutil.NewParticles(
		testutil.Particle{ID: 1, Type: 1, Mass: 1, Pos: [3]float64{0.5, 0.5, 0}, Vel: [3]float64{0, 0, 1}},
		testutil.Particle{ID: 2, Type: 2, Mass: 2, Pos: [3]float64{-0.5, -0.5, 0}, Vel: [3]float64{0, 0, 3}},
		testutil.Particle{ID: 3, Type: 1, Mass: 3, Pos: [3]float64{10, 0, 0}, Vel: [3]float64{0, 0, 5}},
	)
}

func TestPipeline_ModelSingleRank(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	b := newBackends()
	reg := prometheus.NewRegistry()
	metrics := pipeline.NewMetrics(reg)

	p, err := pipeline.New(ctx, cfg, collective.Self(),
		pipeline.WithBackends(b.factory),
		pipeline.WithLogger(testutil.NewTestLogger(t)),
		pipeline.WithMetrics(metrics),
		pipeline.WithSessionID("run-1"))
	require.NoError(t, err)
	assert.True(t, p.IsCollector())

	for step := int64(0); step < 5; step++ {
		require.NoError(t, p.Step(ctx, step, float64(step)*0.5, threeParticles()))
	}
	require.NoError(t, p.Close())

	mb := b.get(t, "model")
	assert.Equal(t, filepath.Join(cfg.Output.Dir, "model.mem"), mb.Path())
	assert.Equal(t, []string{mb.Path()}, p.Outputs())

	assert.Equal(t, []int64{0, 2, 4}, dataset(t, mb, "/model/step").Data(), "period 2 gates the steps")
	assert.Equal(t, []float64{0, 1, 2}, dataset(t, mb, "/model/time").Data())
	assert.Equal(t, []uint64{3, 3, 3}, dataset(t, mb, "/model/particle_count").Data())
	assert.Equal(t, []float64{6, 6, 6}, dataset(t, mb, "/model/scalar/total_mass").Data())

	count := record(t, mb, "/model/image/xy/count", 2).([]float64)
	require.Len(t, count, 16)
	for i, v := range count {
		switch i {
		case 5, 10:
			assert.Equal(t, 1.0, v, "bin %d", i)
		default:
			assert.Zero(t, v, "bin %d", i)
		}
	}

	mean := record(t, mb, "/model/image/xy/mean", 0).([]float64)
	for i, v := range mean {
		switch i {
		case 5:
			assert.Equal(t, 3.0, v)
		case 10:
			assert.Equal(t, 1.0, v)
		default:
			assert.True(t, math.IsNaN(v), "empty bin %d must be NaN, got %v", i, v)
		}
	}
	assert.Equal(t, []uint64{3, 4, 4}, dataset(t, mb, "/model/image/xy/mean").Shape())

	sid, ok := mb.Attribute("/", "session_id")
	require.True(t, ok)
	assert.Equal(t, []string{"run-1"}, sid)
	method, _ := mb.Attribute("/model/image/xy/mean", "method")
	assert.Equal(t, []string{"mean"}, method)
	value, _ := mb.Attribute("/model/image/xy/mean", "value")
	assert.Equal(t, []string{"vz"}, value)
	rng, _ := mb.Attribute("/model/image", "range")
	assert.Equal(t, []float64{-2, 2}, rng)
	period, _ := mb.Attribute("/model", "period")
	assert.Equal(t, []int64{2}, period)

	assert.Equal(t, 3.0, promtest.ToFloat64(metrics.Steps.WithLabelValues("model")))
	assert.Equal(t, 3.0, promtest.ToFloat64(metrics.Records.WithLabelValues("/model/step")))
}

func TestPipeline_ParticleTypes(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Model.ParticleTypes = []uint32{1}
	b := newBackends()

	p, err := pipeline.New(ctx, cfg, collective.Self(), pipeline.WithBackends(b.factory))
	require.NoError(t, err)
	require.NoError(t, p.Step(ctx, 0, 0, threeParticles()))
	require.NoError(t, p.Close())

	mb := b.get(t, "model")
	assert.Equal(t, []uint64{2}, dataset(t, mb, "/model/particle_count").Data())
	assert.Equal(t, []float64{4}, dataset(t, mb, "/model/scalar/total_mass").Data())
	types, ok := mb.Attribute("/model", "particle_types")
	require.True(t, ok)
	assert.Equal(t, []uint32{1}, types)
}

func TestPipeline_MultiRankMatchesSingleRank(t *testing.T) {
	ctx := context.Background()
	all := testutil.RandomParticles(600, 2.5, 7)

	single := newBackends()
	cfg := testConfig(t)
	cfg.Model.Period = 1
	cfg.Model.Image.Methods = []string{"count", "sum", "mean", "std"}
	p, err := pipeline.New(ctx, cfg, collective.Self(), pipeline.WithBackends(single.factory))
	require.NoError(t, err)
	require.NoError(t, p.Step(ctx, 0, 0, all))
	require.NoError(t, p.Close())

	const ranks = 3
	multi := newBackends()
	cfg.Engine.Collector = 1
	cfg.Engine.CrossCheck = true
	err = collective.Run(ctx, ranks, func(ctx context.Context, comm core.Communicator) error {
		p, err := pipeline.New(ctx, cfg, comm,
			pipeline.WithBackends(multi.factory),
			pipeline.WithLogger(testutil.NewRankLogger(t, comm.Rank())))
		if err != nil {
			return err
		}
		if err := p.Step(ctx, 0, 0, testutil.Split(all, comm.Rank(), ranks)); err != nil {
			return err
		}
		return p.Close()
	})
	require.NoError(t, err)

	want, got := single.get(t, "model"), multi.get(t, "model")
	for _, m := range cfg.Model.Image.Methods {
		name := "/model/image/xy/" + m
		w := record(t, want, name, 0).([]float64)
		g := record(t, got, name, 0).([]float64)
		require.Len(t, g, len(w))
		for i := range w {
			if math.IsNaN(w[i]) {
				assert.True(t, math.IsNaN(g[i]), "%s bin %d", name, i)
				continue
			}
			assert.InDelta(t, w[i], g[i], 1e-9, "%s bin %d", name, i)
		}
	}
	assert.Equal(t,
		dataset(t, want, "/model/particle_count").Data(),
		dataset(t, got, "/model/particle_count").Data())
}

func TestPipeline_Orbit(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Model.Enabled = false
	cfg.Orbit.Enabled = true
	cfg.Orbit.IDFile = filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(cfg.Orbit.IDFile, []byte("4\n1\n3\n2\n"), 0o644))

	shares := []*core.Particles{
		testutil.NewParticles(
			testutil.Particle{ID: 2, Mass: 1, Pos: [3]float64{2, 2, 2}, Vel: [3]float64{-2, -2, -2}},
			testutil.Particle{ID: 9, Mass: 1, Pos: [3]float64{9, 9, 9}},
			testutil.Particle{ID: 1, Mass: 1, Pos: [3]float64{1, 1, 1}, Vel: [3]float64{-1, -1, -1}},
		),
		testutil.NewParticles(
			testutil.Particle{ID: 3, Mass: 1, Pos: [3]float64{3, 3, 3}, Vel: [3]float64{-3, -3, -3}},
		),
	}

	b := newBackends()
	err := collective.Run(ctx, 2, func(ctx context.Context, comm core.Communicator) error {
		p, err := pipeline.New(ctx, cfg, comm, pipeline.WithBackends(b.factory))
		if err != nil {
			return err
		}
		for step := int64(0); step < 2; step++ {
			if err := p.Step(ctx, step, 0, shares[comm.Rank()]); err != nil {
				return err
			}
		}
		return p.Close()
	})
	require.NoError(t, err)

	mb := b.get(t, "orbit")
	ids, ok := mb.Attribute("/orbit", "ids")
	require.True(t, ok)
	assert.Equal(t, []uint32{1, 2, 3, 4}, ids, "rows follow the sorted id list")

	assert.Equal(t, []int64{0, 1}, dataset(t, mb, "/orbit/step").Data())
	assert.Equal(t, []uint64{2, 4, 3}, dataset(t, mb, "/orbit/position").Shape())
	assert.Equal(t, []float64{1, 1, 1, 2, 2, 2, 3, 3, 3, 0, 0, 0}, record(t, mb, "/orbit/position", 1))
	assert.Equal(t, []float64{-1, -1, -1, -2, -2, -2, -3, -3, -3, 0, 0, 0}, record(t, mb, "/orbit/velocity", 0))
	assert.Equal(t, []uint64{1, 1, 1, 0}, record(t, mb, "/orbit/found", 0))
}

func TestPipeline_OrbitWithoutSelection(t *testing.T) {
	cfg := testConfig(t)
	cfg.Orbit.Enabled = true
	cfg.Orbit.Filename = "orbit"
	cfg.Orbit.IDFile = filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(cfg.Orbit.IDFile, []byte("# nothing\n"), 0o644))
	b := newBackends()

	_, err := pipeline.New(context.Background(), cfg, collective.Self(), pipeline.WithBackends(b.factory))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no particle selected")
	assert.Contains(t, b.get(t, "model").Closes(), "/", "the model store opened first is closed again")
}

func TestPipeline_NonCollectorOpensNothing(t *testing.T) {
	cfg := testConfig(t)
	var calls int
	var mu sync.Mutex
	factory := func(string) (core.Backend, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return memory.New(nil), nil
	}

	err := collective.Run(context.Background(), 3, func(ctx context.Context, comm core.Communicator) error {
		p, err := pipeline.New(ctx, cfg, comm, pipeline.WithBackends(factory))
		if err != nil {
			return err
		}
		assert.Equal(t, comm.Rank() == 0, p.IsCollector())
		return p.Close()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPipeline_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p, err := pipeline.New(ctx, testConfig(t), collective.Self(), pipeline.WithBackends(newBackends().factory))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.ErrorIs(t, p.Step(ctx, 0, 0, threeParticles()), core.ErrNodeClosed)
}

func TestPipeline_StepRejectsInconsistentParticles(t *testing.T) {
	ctx := context.Background()
	p, err := pipeline.New(ctx, testConfig(t), collective.Self(), pipeline.WithBackends(newBackends().factory))
	require.NoError(t, err)
	defer p.Close()

	bad := threeParticles()
	bad.Masses = bad.Masses[:1]
	require.ErrorIs(t, p.Step(ctx, 0, 0, bad), core.ErrShapeMismatch)
	require.NoError(t, p.Step(ctx, 0, 0, nil), "no particles is a valid step")
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown scalar", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Model.Scalars = []string{"entropy"}
		_, err := pipeline.New(ctx, cfg, collective.Self(), pipeline.WithBackends(newBackends().factory))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown scalar "entropy"`)
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Output.Backend = "netcdf"
		_, err := pipeline.New(ctx, cfg, collective.Self())
		var unknown *output.UnknownBackendError
		require.ErrorAs(t, err, &unknown)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Model.Period = 0
		_, err := pipeline.New(ctx, cfg, collective.Self())
		require.Error(t, err)
	})

	t.Run("collector out of range", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Engine.Collector = 3
		_, err := pipeline.New(ctx, cfg, collective.Self())
		require.Error(t, err)
	})
}
