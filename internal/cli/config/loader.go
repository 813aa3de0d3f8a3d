// Package config loads the galotfa configuration for the CLI.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	intconfig "github.com/leapstack-labs/galotfa/internal/config"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// configKey is used to store the loaded config in context.
type configKey struct{}

// EnvPrefix is the prefix of every environment override. Nested keys are
// separated by a double underscore: GALOTFA_MODEL__IMAGE__BINS=64.
const EnvPrefix = "GALOTFA_"

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
)

// flagKeys maps flag names to config keys. Flags that are not listed are
// not configuration (e.g. --config itself).
var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-format":   "log.format",
	"output-dir":   "output.dir",
	"backend":      "output.backend",
	"chunk":        "output.chunk",
	"collector":    "engine.collector",
	"cross-check":  "engine.cross_check",
	"period":       "model.period",
	"bins":         "model.image.bins",
	"ranks":        "simulate.ranks",
	"steps":        "simulate.steps",
	"particles":    "simulate.particles",
	"seed":         "simulate.seed",
	"timestep":     "simulate.timestep",
	"metrics-addr": "simulate.metrics_addr",
	"id-file":      "orbit.id_file",
	"state":        "state.path",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > galotfa.yaml > galotfa.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"galotfa.yaml", "galotfa.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// listKeys are the keys whose environment value is a comma separated list.
var listKeys = map[string]bool{
	"model.particle_types": true,
	"model.image.planes":   true,
	"model.image.methods":  true,
	"model.scalars":        true,
}

// envKey turns GALOTFA_MODEL__IMAGE__BINS into model.image.bins.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func envValue(name, value string) (string, interface{}) {
	key := envKey(name)
	if listKeys[key] {
		if value == "" {
			return key, []string{}
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, value
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*intconfig.Config, error) {
	k = koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(intconfig.Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	configFileUsed = findConfigFile(cfgFile)
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
	}

	// 3. Environment variables
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (only those explicitly set)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg intconfig.Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       decodeHooks(),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// Effective returns the merged configuration as a nested map, the way it
// would be written back to galotfa.yaml.
func Effective() map[string]interface{} {
	return k.Raw()
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
}

// NewLogger builds the process logger. The auto format writes text to a
// terminal and JSON everywhere else.
func NewLogger(w io.Writer, cfg intconfig.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	format := cfg.Format
	if format == "auto" || format == "" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ConfigKey returns the context key used for storing the loaded config.
func ConfigKey() interface{} {
	return configKey{}
}

// GetConfig retrieves the config from the command context, or the defaults
// when none was loaded.
func GetConfig(ctx context.Context) *intconfig.Config {
	if c, ok := ctx.Value(configKey{}).(*intconfig.Config); ok {
		return c
	}
	return intconfig.Default()
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}
