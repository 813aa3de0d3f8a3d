package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/leapstack-labs/galotfa/internal/config"
	"github.com/leapstack-labs/galotfa/internal/output"
	"github.com/leapstack-labs/galotfa/internal/stats"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

// BackendFactory creates the backend of one analysis output file. The
// argument is the analysis name ("model" or "orbit").
type BackendFactory func(analysis string) (core.Backend, error)

// analysis is one periodic on-the-fly analysis.
type analysis interface {
	name() string
	period() int64
	run(ctx context.Context, step int64, time float64, p *core.Particles) error
	close() error
}

// Pipeline drives the enabled analyses of one rank.
type Pipeline struct {
	cfg      config.Config
	comm     core.Communicator
	engine   *stats.Engine
	logger   *slog.Logger
	metrics  *Metrics
	backends BackendFactory
	sessID   string

	analyses []analysis
	outputs  []string
	closed   bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records step, record and duration metrics.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithBackends overrides how output backends are created. The default
// looks up output.backend in the backend registry.
func WithBackends(f BackendFactory) Option {
	return func(p *Pipeline) { p.backends = f }
}

// WithSessionID tags every output file with the given session id instead
// of a random one.
func WithSessionID(id string) Option {
	return func(p *Pipeline) { p.sessID = id }
}

// New validates cfg and prepares the enabled analyses. The collector rank
// creates the output directory and opens one store per analysis.
func New(ctx context.Context, cfg *config.Config, comm core.Communicator, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := &Pipeline{
		cfg:    *cfg,
		comm:   comm,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.backends == nil {
		p.backends = func(string) (core.Backend, error) {
			return output.NewBackend(p.cfg.Output.Backend, p.logger)
		}
	}

	engine, err := stats.New(comm, cfg.Engine.Collector,
		stats.WithLogger(p.logger),
		stats.WithCrossCheck(cfg.Engine.CrossCheck))
	if err != nil {
		return nil, err
	}
	p.engine = engine

	if engine.IsCollector() {
		if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory %s: %w", cfg.Output.Dir, err)
		}
	}

	if cfg.Model.Enabled {
		m, err := newModelAnalysis(p)
		if err != nil {
			return nil, p.abort(err)
		}
		p.analyses = append(p.analyses, m)
	}
	if cfg.Orbit.Enabled {
		o, err := newOrbitAnalysis(p)
		if err != nil {
			return nil, p.abort(err)
		}
		p.analyses = append(p.analyses, o)
	}
	if len(p.analyses) == 0 {
		p.logger.Warn("no analysis enabled")
	}

	p.logger.Debug("pipeline ready",
		slog.Int("rank", comm.Rank()),
		slog.Int("size", comm.Size()),
		slog.Int("analyses", len(p.analyses)))
	return p, nil
}

func (p *Pipeline) abort(err error) error {
	if cerr := p.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// IsCollector reports whether this rank writes the output.
func (p *Pipeline) IsCollector() bool { return p.engine.IsCollector() }

// Outputs returns the paths of the output files, empty off the collector.
func (p *Pipeline) Outputs() []string { return append([]string(nil), p.outputs...) }

// Step runs every analysis whose period divides step. It is collective.
func (p *Pipeline) Step(ctx context.Context, step int64, time float64, particles *core.Particles) error {
	if p.closed {
		return fmt.Errorf("pipeline: %w", core.ErrNodeClosed)
	}
	if particles == nil {
		particles = &core.Particles{}
	}
	if err := particles.Validate(); err != nil {
		return fmt.Errorf("step %d: %w", step, err)
	}

	for _, a := range p.analyses {
		if step%a.period() != 0 {
			continue
		}
		start := timeNow()
		if err := a.run(ctx, step, time, particles); err != nil {
			return fmt.Errorf("%s analysis at step %d: %w", a.name(), step, err)
		}
		if p.IsCollector() {
			p.metrics.observeStep(a.name(), timeNow().Sub(start))
		}
		p.logger.Debug("analysis step done",
			slog.String("analysis", a.name()),
			slog.Int64("step", step),
			slog.Int("particles", particles.Len()))
	}
	return nil
}

// Close closes every output store. Closing twice is a no-op.
func (p *Pipeline) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, a := range p.analyses {
		if err := a.close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s output: %w", a.name(), err))
		}
	}
	return errors.Join(errs...)
}

// openStore opens the output file of an analysis on the collector.
func (p *Pipeline) openStore(analysis, filename string) (*sink, error) {
	if !p.IsCollector() {
		return nil, nil
	}
	backend, err := p.backends(analysis)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(p.cfg.Output.Dir, filename+"."+backend.Extension())
	opts := []output.Option{output.WithLogger(p.logger)}
	if p.sessID != "" {
		opts = append(opts, output.WithSessionID(p.sessID))
	}
	store, err := output.Open(path, backend, opts...)
	if err != nil {
		return nil, err
	}
	p.outputs = append(p.outputs, path)
	return &sink{store: store, metrics: p.metrics, chunk: p.cfg.Output.Chunk}, nil
}

var timeNow = time.Now

// sink appends analysis records to a store and counts them.
type sink struct {
	store   *output.Store
	metrics *Metrics
	chunk   uint64
}

func (s *sink) group(name string) error {
	_, err := s.store.CreateGroup(name)
	return err
}

func (s *sink) dataset(name string, desc core.RecordDescriptor) error {
	_, err := s.store.CreateDataset(name, desc, s.chunk)
	return err
}

func (s *sink) attr(node, attr string, desc core.RecordDescriptor, value any) error {
	return s.store.AddAttribute(node, attr, desc, value)
}

func (s *sink) push(dataset string, buf any, length int) error {
	if err := s.store.Push(dataset, buf, length); err != nil {
		return err
	}
	s.metrics.addRecord(dataset)
	return nil
}

func (s *sink) close() error {
	if s == nil {
		return nil
	}
	return s.store.Close()
}
