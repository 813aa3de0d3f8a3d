package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	intconfig "github.com/leapstack-labs/galotfa/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "galotfa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_DefaultsMatchDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(ResetConfig)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, intconfig.Default(), cfg)
	assert.Empty(t, GetConfigFileUsed())
}

func TestLoadConfig_File(t *testing.T) {
	t.Cleanup(ResetConfig)
	path := writeConfig(t, `
output:
  backend: duckdb
  dir: /tmp/run1
model:
  period: 5
  particle_types: [1, 2]
  image:
    bins: 64
    planes: [yz]
    methods: [mean, std]
orbit:
  enabled: true
  id_file: ids.txt
  fraction: 0.5
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, GetConfigFileUsed())
	assert.Equal(t, "duckdb", cfg.Output.Backend)
	assert.Equal(t, "/tmp/run1", cfg.Output.Dir)
	assert.Equal(t, int64(5), cfg.Model.Period)
	assert.Equal(t, []uint32{1, 2}, cfg.Model.ParticleTypes)
	assert.Equal(t, 64, cfg.Model.Image.Bins)
	assert.Equal(t, []string{"yz"}, cfg.Model.Image.Planes)
	assert.Equal(t, []string{"mean", "std"}, cfg.Model.Image.Methods)
	assert.True(t, cfg.Orbit.Enabled)
	assert.Equal(t, 0.5, cfg.Orbit.Fraction)
	// untouched keys keep their defaults
	assert.Equal(t, uint64(intconfig.DefaultChunk), cfg.Output.Chunk)
}

func TestLoadConfig_Precedence(t *testing.T) {
	t.Cleanup(ResetConfig)
	path := writeConfig(t, "model:\n  period: 5\n  image:\n    bins: 32\noutput:\n  chunk: 10\n")
	t.Setenv("GALOTFA_MODEL__PERIOD", "7")
	t.Setenv("GALOTFA_MODEL__IMAGE__BINS", "48")
	t.Setenv("GALOTFA_MODEL__IMAGE__METHODS", "count, sum")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("bins", 100, "")
	flags.Uint64("chunk", 1000, "")
	flags.String("config", "", "")
	require.NoError(t, flags.Parse([]string{"--bins", "16", "--config", path}))

	cfg, err := LoadConfig(path, flags)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Model.Period, "env beats file")
	assert.Equal(t, 16, cfg.Model.Image.Bins, "flag beats env")
	assert.Equal(t, uint64(10), cfg.Output.Chunk, "unchanged flags do not override")
	assert.Equal(t, []string{"count", "sum"}, cfg.Model.Image.Methods)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Cleanup(ResetConfig)
	path := writeConfig(t, "model:\n  period: 0\n  image:\n    planes: [xw]\n")

	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.period")
	assert.Contains(t, err.Error(), `unknown plane "xw"`)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Cleanup(ResetConfig)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestEffective(t *testing.T) {
	t.Cleanup(ResetConfig)
	path := writeConfig(t, "output:\n  backend: memory\n")
	_, err := LoadConfig(path, nil)
	require.NoError(t, err)

	raw := Effective()
	output, ok := raw["output"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "memory", output["backend"])
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "model.image.bins", envKey("GALOTFA_MODEL__IMAGE__BINS"))
	assert.Equal(t, "orbit.id_file", envKey("GALOTFA_ORBIT__ID_FILE"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, intconfig.LogConfig{Level: "warn", Format: "auto"})
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`, "non-terminal writers get JSON")

	buf.Reset()
	NewLogger(&buf, intconfig.LogConfig{Level: "debug", Format: "text"}).Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, GetLogger(context.Background()))

	var buf bytes.Buffer
	logger := NewLogger(&buf, intconfig.LogConfig{Level: "info", Format: "text"})
	ctx := context.WithValue(context.Background(), LoggerKey(), logger)
	assert.Same(t, logger, GetLogger(ctx))
}

func TestGetConfig(t *testing.T) {
	assert.Equal(t, intconfig.Default(), GetConfig(context.Background()))

	cfg := intconfig.Default()
	cfg.Output.Backend = "duckdb"
	ctx := context.WithValue(context.Background(), ConfigKey(), cfg)
	assert.Same(t, cfg, GetConfig(ctx))
}

func TestLoadConfig_CommaLists(t *testing.T) {
	t.Cleanup(ResetConfig)
	path := writeConfig(t, `
model:
  particle_types: "2, 3"
  scalars: ""
  image:
    planes: "xy, yz"
`)

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint32{2, 3}, cfg.Model.ParticleTypes)
	assert.Equal(t, []string{"xy", "yz"}, cfg.Model.Image.Planes)
	assert.Empty(t, cfg.Model.Scalars)
}
