// Package stats implements the distributed 2D binning reduction engine.
//
// Every rank bins its local particles, then the per-bin partial results are
// summed onto a single collector rank with the collective primitive. Only
// the collector's result is meaningful; the other ranks get a nil slice.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/leapstack-labs/galotfa/internal/collective"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Engine runs 2D binning statistics over a communicator.
type Engine struct {
	comm       core.Communicator
	collector  int
	crossCheck bool
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger (discard by default).
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCrossCheck makes every Bin2D verify that all ranks passed the same
// bin layout and method before reducing. It costs three single-element
// collectives per call.
func WithCrossCheck(enabled bool) Option {
	return func(e *Engine) { e.crossCheck = enabled }
}

// New creates an engine whose results land on the collector rank.
func New(comm core.Communicator, collector int, opts ...Option) (*Engine, error) {
	if comm == nil {
		return nil, fmt.Errorf("communicator is required")
	}
	if collector < 0 || collector >= comm.Size() {
		return nil, fmt.Errorf("collector rank %d out of range [0, %d)", collector, comm.Size())
	}
	e := &Engine{
		comm:      comm,
		collector: collector,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Collector returns the rank that receives the results.
func (e *Engine) Collector() int { return e.collector }

// IsCollector reports whether this rank receives the results.
func (e *Engine) IsCollector() bool { return e.comm.Rank() == e.collector }

// Comm returns the engine's communicator.
func (e *Engine) Comm() core.Communicator { return e.comm }

// Bin2DInput holds one rank's contribution to a 2D binning.
type Bin2DInput struct {
	X, Y   []float64
	XBins  core.BinSpec
	YBins  core.BinSpec
	Method core.Method
	// Data is the per-point value reduced by SUM, MEAN and STD. Ignored by COUNT.
	Data []float64
}

// Bins returns the number of cells of the result.
func (in *Bin2DInput) Bins() int {
	return in.XBins.Count * in.YBins.Count
}

func (in *Bin2DInput) validate() error {
	if !in.Method.Valid() {
		return fmt.Errorf("%w: %s", core.ErrUnsupportedMethod, in.Method)
	}
	if err := in.XBins.Validate(); err != nil {
		return fmt.Errorf("x axis: %w", err)
	}
	if err := in.YBins.Validate(); err != nil {
		return fmt.Errorf("y axis: %w", err)
	}
	if len(in.X) != len(in.Y) {
		return fmt.Errorf("%w: %d x values, %d y values", core.ErrShapeMismatch, len(in.X), len(in.Y))
	}
	if in.Method.NeedsData() && len(in.Data) != len(in.X) {
		return fmt.Errorf("%w: %s needs %d data values, got %d", core.ErrShapeMismatch, in.Method, len(in.X), len(in.Data))
	}
	return nil
}

func (in *Bin2DInput) fingerprint() uint64 {
	return collective.Fingerprint(
		in.XBins.Count, in.XBins.Lower, in.XBins.Upper,
		in.YBins.Count, in.YBins.Lower, in.YBins.Upper,
		int(in.Method),
	)
}

// each calls fn with the flat row-major bin index of every point inside
// [XLower, XUpper) x [YLower, YUpper). Points outside either range are skipped.
func (in *Bin2DInput) each(fn func(bin, i int)) {
	ny := in.YBins.Count
	for i := range in.X {
		x, y := in.X[i], in.Y[i]
		if !in.XBins.Contains(x) || !in.YBins.Contains(y) {
			continue
		}
		fn(FindIndex(in.XBins, x)*ny+FindIndex(in.YBins, y), i)
	}
}

// FindIndex returns the bin of v, which must lie in [b.Lower, b.Upper).
// Values just below Upper that round up onto Count land in the top bin,
// and rounding below zero lands in the bottom bin.
func FindIndex(b core.BinSpec, v float64) int {
	idx := b.Index(v)
	if idx >= b.Count {
		idx = b.Count - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Bin2D computes the chosen statistic over the 2D grid and returns the
// xBins*yBins cells in row-major order on the collector rank, nil elsewhere.
//
// Bin2D is a blocking collective: every rank of the communicator must call
// it with the same bin layout and method. With the cross-check enabled, a
// rank whose input fails validation still joins the check, so it gets its
// validation error and every other rank gets core.ErrCollectiveMismatch.
// Without it, validation fails before any communication and a rank that
// gets a validation error must make the other ranks abort too (cancel
// their context), or they wait forever.
func (e *Engine) Bin2D(ctx context.Context, in Bin2DInput) ([]float64, error) {
	invalid := in.validate()
	if e.crossCheck {
		err := collective.VerifyInput(ctx, e.comm, e.collector, in.fingerprint(), invalid)
		if invalid != nil {
			return nil, invalid
		}
		if err != nil {
			return nil, fmt.Errorf("bin2d %s: %w", in.Method, err)
		}
	} else if invalid != nil {
		return nil, invalid
	}

	start := time.Now()
	var (
		res []float64
		err error
	)
	switch in.Method {
	case core.MethodCount:
		res, err = e.count(ctx, &in)
	case core.MethodSum:
		res, err = e.sum(ctx, &in)
	case core.MethodMean:
		res, _, err = e.mean(ctx, &in)
	case core.MethodStd:
		res, err = e.std(ctx, &in)
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedMethod, in.Method)
	}
	if err != nil {
		return nil, fmt.Errorf("bin2d %s: %w", in.Method, err)
	}

	e.logger.Debug("bin2d reduced",
		slog.String("method", in.Method.String()),
		slog.Int("x_bins", in.XBins.Count),
		slog.Int("y_bins", in.YBins.Count),
		slog.Int("local_points", len(in.X)),
		slog.Duration("elapsed", time.Since(start)))

	if !e.IsCollector() {
		return nil, nil
	}
	return res, nil
}

// reduceCounts bins the local points and sums the counts onto the collector.
func (e *Engine) reduceCounts(ctx context.Context, in *Bin2DInput) ([]uint64, error) {
	local := make([]uint64, in.Bins())
	in.each(func(bin, _ int) { local[bin]++ })

	var global []uint64
	if e.IsCollector() {
		global = make([]uint64, len(local))
	}
	if err := e.comm.ReduceUint64(ctx, e.collector, local, global); err != nil {
		return nil, fmt.Errorf("reducing counts: %w", err)
	}
	return global, nil
}

// reduceSums sums the per-bin data values onto the collector.
func (e *Engine) reduceSums(ctx context.Context, in *Bin2DInput) ([]float64, error) {
	local := make([]float64, in.Bins())
	in.each(func(bin, i int) { local[bin] += in.Data[i] })

	var global []float64
	if e.IsCollector() {
		global = make([]float64, len(local))
	}
	if err := e.comm.ReduceFloat64(ctx, e.collector, local, global); err != nil {
		return nil, fmt.Errorf("reducing sums: %w", err)
	}
	return global, nil
}

func (e *Engine) count(ctx context.Context, in *Bin2DInput) ([]float64, error) {
	counts, err := e.reduceCounts(ctx, in)
	if err != nil {
		return nil, err
	}
	if !e.IsCollector() {
		return nil, nil
	}
	res := make([]float64, len(counts))
	for i, c := range counts {
		res[i] = float64(c)
	}
	return res, nil
}

func (e *Engine) sum(ctx context.Context, in *Bin2DInput) ([]float64, error) {
	return e.reduceSums(ctx, in)
}

// mean returns the per-bin mean (NaN for empty bins) and the global counts,
// both valid on the collector only.
func (e *Engine) mean(ctx context.Context, in *Bin2DInput) ([]float64, []uint64, error) {
	counts, err := e.reduceCounts(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	sums, err := e.reduceSums(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	if !e.IsCollector() {
		return nil, nil, nil
	}

	res := make([]float64, len(sums))
	for i := range res {
		if counts[i] != 0 {
			res[i] = sums[i] / float64(counts[i])
		} else {
			res[i] = math.NaN()
		}
	}
	return res, counts, nil
}

// std is the population standard deviation in two passes: the mean is
// computed on the collector, broadcast to every rank, and the squared
// deviations are reduced in a second pass. Empty bins keep their first-pass
// value (NaN); the second pass does not touch them.
func (e *Engine) std(ctx context.Context, in *Bin2DInput) ([]float64, error) {
	means, counts, err := e.mean(ctx, in)
	if err != nil {
		return nil, err
	}
	if means == nil {
		means = make([]float64, in.Bins())
	}
	if err := e.comm.BroadcastFloat64(ctx, e.collector, means); err != nil {
		return nil, fmt.Errorf("broadcasting means: %w", err)
	}

	local := make([]float64, in.Bins())
	in.each(func(bin, i int) {
		d := in.Data[i] - means[bin]
		local[bin] += d * d
	})

	var global []float64
	if e.IsCollector() {
		global = make([]float64, len(local))
	}
	if err := e.comm.ReduceFloat64(ctx, e.collector, local, global); err != nil {
		return nil, fmt.Errorf("reducing squared deviations: %w", err)
	}
	if !e.IsCollector() {
		return nil, nil
	}

	for i := range means {
		if counts[i] != 0 {
			means[i] = math.Sqrt(global[i] / float64(counts[i]))
		}
	}
	return means, nil
}
