package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

// Planes lists the supported image planes.
var Planes = []string{"xy", "xz", "yz"}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		add("log.format must be auto, text or json, got %q", c.Log.Format)
	}

	if c.Output.Dir == "" {
		add("output.dir is required")
	}
	if c.Output.Backend == "" {
		add("output.backend is required")
	}
	if c.Engine.Collector < 0 {
		add("engine.collector must not be negative, got %d", c.Engine.Collector)
	}

	if c.Model.Enabled {
		if c.Model.Filename == "" {
			add("model.filename is required")
		}
		if c.Model.Period < 1 {
			add("model.period must be at least 1, got %d", c.Model.Period)
		}
		if !(c.Model.RegionSize > 0) {
			add("model.region_size must be positive, got %g", c.Model.RegionSize)
		}
		if c.Model.Image.Enabled {
			if c.Model.Image.Bins < 1 {
				add("model.image.bins must be at least 1, got %d", c.Model.Image.Bins)
			}
			if len(c.Model.Image.Planes) == 0 {
				add("model.image.planes must not be empty")
			}
			for _, p := range c.Model.Image.Planes {
				if !slices.Contains(Planes, p) {
					add("model.image.planes: unknown plane %q", p)
				}
			}
			for _, m := range c.Model.Image.Methods {
				if _, err := core.ParseMethod(m); err != nil {
					add("model.image.methods: %w", err)
				}
			}
			if _, err := c.Model.Image.ValueAxis(); err != nil {
				add("model.image.value: %w", err)
			}
		}
	}

	if c.Orbit.Enabled {
		if c.Orbit.Filename == "" {
			add("orbit.filename is required")
		}
		if c.Orbit.Filename == c.Model.Filename && c.Model.Enabled {
			add("orbit.filename and model.filename must differ, both are %q", c.Orbit.Filename)
		}
		if c.Orbit.Period < 1 {
			add("orbit.period must be at least 1, got %d", c.Orbit.Period)
		}
		if c.Orbit.IDFile == "" {
			add("orbit.id_file is required when the orbit log is enabled")
		}
		if !(c.Orbit.Fraction > 0 && c.Orbit.Fraction <= 1) {
			add("orbit.fraction must lie in (0, 1], got %g", c.Orbit.Fraction)
		}
	}

	return errors.Join(errs...)
}

// ValidateSimulation checks the settings of the synthetic simulation.
func (c *Config) ValidateSimulation() error {
	var errs []error
	if c.Simulate.Ranks < 1 {
		errs = append(errs, fmt.Errorf("simulate.ranks must be at least 1, got %d", c.Simulate.Ranks))
	}
	if c.Engine.Collector >= c.Simulate.Ranks {
		errs = append(errs, fmt.Errorf("engine.collector %d is not a rank of a %d-rank run", c.Engine.Collector, c.Simulate.Ranks))
	}
	if c.Simulate.Steps < 0 {
		errs = append(errs, fmt.Errorf("simulate.steps must not be negative, got %d", c.Simulate.Steps))
	}
	if c.Simulate.Particles < 0 {
		errs = append(errs, fmt.Errorf("simulate.particles must not be negative, got %d", c.Simulate.Particles))
	}
	if !(c.Simulate.Timestep > 0) {
		errs = append(errs, fmt.Errorf("simulate.timestep must be positive, got %g", c.Simulate.Timestep))
	}
	return errors.Join(errs...)
}

// ValueAxis returns the velocity component named by model.image.value.
func (c *ImageConfig) ValueAxis() (core.Axis, error) {
	if len(c.Value) != 2 || c.Value[0] != 'v' {
		return 0, fmt.Errorf("image value must be vx, vy or vz, got %q", c.Value)
	}
	return core.ParseAxis(c.Value[1:])
}
