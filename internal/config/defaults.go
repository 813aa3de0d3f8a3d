package config

// Default configuration values.
const (
	DefaultOutputDir     = "./otfoutput"
	DefaultBackend       = "sqlite"
	DefaultChunk         = 1000
	DefaultModelFilename = "model"
	DefaultModelPeriod   = 10
	DefaultRegionSize    = 20
	DefaultImageBins     = 100
	DefaultImageValue    = "vz"
	DefaultOrbitFilename = "orbit"
	DefaultOrbitPeriod   = 1
	DefaultStatePath     = ".galotfa/state.db"
)

// Defaults returns the default values as a flat koanf key map.
func Defaults() map[string]any {
	return map[string]any{
		"log.level":             "info",
		"log.format":            "auto",
		"output.dir":            DefaultOutputDir,
		"output.backend":        DefaultBackend,
		"output.chunk":          DefaultChunk,
		"engine.collector":      0,
		"engine.cross_check":    false,
		"model.enabled":         true,
		"model.filename":        DefaultModelFilename,
		"model.period":          DefaultModelPeriod,
		"model.particle_types":  []uint32{},
		"model.region_size":     DefaultRegionSize,
		"model.image.enabled":   true,
		"model.image.bins":      DefaultImageBins,
		"model.image.planes":    []string{"xy", "xz"},
		"model.image.methods":   []string{"count"},
		"model.image.value":     DefaultImageValue,
		"model.scalars":         []string{"total_mass"},
		"orbit.enabled":         false,
		"orbit.filename":        DefaultOrbitFilename,
		"orbit.period":          DefaultOrbitPeriod,
		"orbit.id_file":         "",
		"orbit.fraction":        1.0,
		"orbit.seed":            0,
		"simulate.ranks":        4,
		"simulate.steps":        100,
		"simulate.particles":    20000,
		"simulate.seed":         42,
		"simulate.timestep":     0.01,
		"simulate.metrics_addr": "",
		"state.path":            DefaultStatePath,
	}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: "auto"},
		Output: OutputConfig{Dir: DefaultOutputDir, Backend: DefaultBackend, Chunk: DefaultChunk},
		Model: ModelConfig{
			Enabled:       true,
			Filename:      DefaultModelFilename,
			Period:        DefaultModelPeriod,
			ParticleTypes: []uint32{},
			RegionSize:    DefaultRegionSize,
			Image: ImageConfig{
				Enabled: true,
				Bins:    DefaultImageBins,
				Planes:  []string{"xy", "xz"},
				Methods: []string{"count"},
				Value:   DefaultImageValue,
			},
			Scalars: []string{"total_mass"},
		},
		Orbit: OrbitConfig{
			Filename: DefaultOrbitFilename,
			Period:   DefaultOrbitPeriod,
			Fraction: 1,
		},
		Simulate: SimulateConfig{
			Ranks:     4,
			Steps:     100,
			Particles: 20000,
			Seed:      42,
			Timestep:  0.01,
		},
		State: StateConfig{Path: DefaultStatePath},
	}
}
