package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/galotfa/pkg/core"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateSimulation())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"no output dir", func(c *Config) { c.Output.Dir = "" }, "output.dir"},
		{"no backend", func(c *Config) { c.Output.Backend = "" }, "output.backend"},
		{"negative collector", func(c *Config) { c.Engine.Collector = -1 }, "engine.collector"},
		{"zero period", func(c *Config) { c.Model.Period = 0 }, "model.period"},
		{"zero region", func(c *Config) { c.Model.RegionSize = 0 }, "model.region_size"},
		{"zero bins", func(c *Config) { c.Model.Image.Bins = 0 }, "model.image.bins"},
		{"no planes", func(c *Config) { c.Model.Image.Planes = nil }, "model.image.planes"},
		{"bad method", func(c *Config) { c.Model.Image.Methods = []string{"median"} }, "model.image.methods"},
		{"bad value", func(c *Config) { c.Model.Image.Value = "x" }, "model.image.value"},
		{"orbit without ids", func(c *Config) { c.Orbit.Enabled = true }, "orbit.id_file"},
		{"orbit fraction", func(c *Config) {
			c.Orbit.Enabled = true
			c.Orbit.IDFile = "ids"
			c.Orbit.Fraction = 1.5
		}, "orbit.fraction"},
		{"same filenames", func(c *Config) {
			c.Orbit.Enabled = true
			c.Orbit.IDFile = "ids"
			c.Orbit.Filename = c.Model.Filename
		}, "must differ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_DisabledSectionsAreNotChecked(t *testing.T) {
	cfg := Default()
	cfg.Model.Enabled = false
	cfg.Model.Period = 0
	cfg.Orbit.Enabled = false
	cfg.Orbit.Fraction = 0
	assert.NoError(t, cfg.Validate())
}

func TestValidateSimulation(t *testing.T) {
	cfg := Default()
	cfg.Simulate.Ranks = 2
	cfg.Engine.Collector = 2
	cfg.Simulate.Timestep = 0

	err := cfg.ValidateSimulation()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.collector 2")
	assert.Contains(t, err.Error(), "simulate.timestep")
}

func TestValueAxis(t *testing.T) {
	img := ImageConfig{Value: "vy"}
	a, err := img.ValueAxis()
	require.NoError(t, err)
	assert.Equal(t, core.AxisY, a)

	for _, bad := range []string{"", "y", "vw", "vxx"} {
		img.Value = bad
		_, err := img.ValueAxis()
		assert.Error(t, err, bad)
	}
}
