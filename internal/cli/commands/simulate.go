package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/galotfa/internal/cli/config"
	"github.com/leapstack-labs/galotfa/internal/collective"
	intconfig "github.com/leapstack-labs/galotfa/internal/config"
	"github.com/leapstack-labs/galotfa/internal/pipeline"
	"github.com/leapstack-labs/galotfa/internal/state"
	"github.com/leapstack-labs/galotfa/internal/synth"
	"github.com/leapstack-labs/galotfa/pkg/core"
)

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand() *cobra.Command {
	defaults := intconfig.Default()
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the analysis pipeline on a synthetic rotating disk",
		Long: `Run the analysis pipeline against a synthetic barred disk galaxy.

Every rank is a goroutine holding its share of the particles. The ranks
advance their particles, reduce them to the collector rank at every
analysed step, and the collector appends the results to the output files.

Output goes to SQLite files by default. HDF5 files need a binary built with
-tags hdf5 (cgo and libhdf5), then --backend hdf5.`,
		Example: `  # Four ranks, 100 steps, SQLite output in ./otfoutput
  galotfa simulate

  # Larger run with a metrics endpoint
  galotfa simulate --ranks 8 --particles 200000 --metrics-addr :9090

  # Dry run without output files
  galotfa simulate --backend memory --steps 10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulate(cmd)
		},
	}

	f := cmd.Flags()
	f.Int("ranks", defaults.Simulate.Ranks, "Number of ranks")
	f.Int64("steps", defaults.Simulate.Steps, "Number of simulation steps")
	f.Int("particles", defaults.Simulate.Particles, "Total number of particles")
	f.Uint64("seed", defaults.Simulate.Seed, "Seed of the initial conditions")
	f.Float64("timestep", defaults.Simulate.Timestep, "Simulation time per step")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	f.Int64("period", defaults.Model.Period, "Steps between two model analyses")
	f.Int("bins", defaults.Model.Image.Bins, "Image bins per axis")
	f.Int("collector", defaults.Engine.Collector, "Rank that writes the output")
	f.Bool("cross-check", false, "Verify that all ranks agree on every binning")
	f.Uint64("chunk", defaults.Output.Chunk, "Records per storage chunk")
	f.String("id-file", "", "Particle id list of the orbit log")
	return cmd
}

func runSimulate(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := config.GetConfig(ctx)
	logger := config.GetLogger(ctx)
	if err := cfg.ValidateSimulation(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := pipeline.NewMetrics(reg)
	if addr := cfg.Simulate.MetricsAddr; addr != "" {
		_, stop, err := serveMetrics(addr, reg, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	sessionID := uuid.New().String()
	journal, err := openJournal(cfg.State.Path, logger)
	if err != nil {
		return err
	}
	if journal != nil {
		defer func() { _ = journal.Close() }()
		snapshot, err := yaml.Marshal(config.Effective())
		if err != nil {
			return fmt.Errorf("failed to encode configuration: %w", err)
		}
		if _, err := journal.CreateRun(state.RunSpec{
			SessionID: sessionID,
			Command:   cmd.Name(),
			Ranks:     cfg.Simulate.Ranks,
			Particles: cfg.Simulate.Particles,
			Steps:     cfg.Simulate.Steps,
			Backend:   cfg.Output.Backend,
			OutputDir: cfg.Output.Dir,
			Config:    string(snapshot),
		}); err != nil {
			return err
		}
	}

	params := synth.DefaultDiskParams()
	dt := cfg.Simulate.Timestep
	start := time.Now()

	logger.Info("simulation started",
		slog.String("session_id", sessionID),
		slog.Int("ranks", cfg.Simulate.Ranks),
		slog.Int("particles", cfg.Simulate.Particles),
		slog.Int64("steps", cfg.Simulate.Steps))

	var bar *stepProgress
	if f, ok := cmd.ErrOrStderr().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bar = newStepProgress(f, cfg.Simulate.Steps)
	}

	var collectorPaths []string
	err = collective.Run(ctx, cfg.Simulate.Ranks, func(ctx context.Context, comm core.Communicator) error {
		rlog := logger.With(slog.Int("rank", comm.Rank()))
		disk, err := synth.NewDisk(params, cfg.Simulate.Particles, comm.Rank(), comm.Size(), cfg.Simulate.Seed)
		if err != nil {
			return err
		}
		p, err := pipeline.New(ctx, cfg, comm,
			pipeline.WithLogger(rlog),
			pipeline.WithMetrics(metrics),
			pipeline.WithSessionID(sessionID))
		if err != nil {
			return err
		}
		for step := int64(0); step < cfg.Simulate.Steps; step++ {
			if err := p.Step(ctx, step, float64(step)*dt, disk.Particles()); err != nil {
				return errors.Join(err, p.Close())
			}
			disk.Advance(dt)
			if bar != nil && p.IsCollector() {
				bar.Update(step)
			}
		}
		if p.IsCollector() {
			collectorPaths = p.Outputs()
			if bar != nil {
				bar.Done()
			}
		}
		return p.Close()
	})
	if journal != nil {
		status, msg := state.RunStatusSuccess, ""
		if err != nil {
			status, msg = state.RunStatusFailed, err.Error()
		}
		if jerr := journal.CompleteRun(sessionID, status, msg, collectorPaths); jerr != nil {
			logger.Warn("failed to record run completion", slog.Any("error", jerr))
		}
	}
	if err != nil {
		return err
	}

	elapsed := time.Since(start)
	logger.Info("simulation finished", slog.Duration("elapsed", elapsed))

	num := message.NewPrinter(language.English)
	rows := [][]string{
		{"session", sessionID},
		{"ranks", num.Sprintf("%d", cfg.Simulate.Ranks)},
		{"particles", num.Sprintf("%d", cfg.Simulate.Particles)},
		{"steps", num.Sprintf("%d", cfg.Simulate.Steps)},
		{"backend", cfg.Output.Backend},
		{"elapsed", elapsed.Round(time.Millisecond).String()},
	}
	for _, path := range collectorPaths {
		rows = append(rows, []string{"output", path})
	}
	return renderRows(cmd.OutOrStdout(), "table", []string{"run", "value"}, rows)
}

// openJournal opens the run journal at path. An empty path disables it.
func openJournal(path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	if path == "" {
		return nil, nil
	}
	journal := state.NewSQLiteStore(logger)
	if err := journal.Open(path); err != nil {
		return nil, fmt.Errorf("failed to open run journal: %w", err)
	}
	return journal, nil
}
