// Package config provides the configuration types of galotfa.
// It is decoupled from CLI concerns: the pipeline consumes a Config, the
// CLI loads one from defaults, a YAML file, the environment and flags.
package config

// Config holds every runtime parameter.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Output   OutputConfig   `koanf:"output"`
	Engine   EngineConfig   `koanf:"engine"`
	Model    ModelConfig    `koanf:"model"`
	Orbit    OrbitConfig    `koanf:"orbit"`
	Simulate SimulateConfig `koanf:"simulate"`
	State    StateConfig    `koanf:"state"`
}

// LogConfig selects the structured logger.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // auto, text, json
}

// OutputConfig describes where and how analysis results are stored.
type OutputConfig struct {
	Dir     string `koanf:"dir"`
	Backend string `koanf:"backend"` // memory, sqlite, duckdb, hdf5
	Chunk   uint64 `koanf:"chunk"`
}

// EngineConfig tunes the reduction engine.
type EngineConfig struct {
	Collector  int  `koanf:"collector"`
	CrossCheck bool `koanf:"cross_check"`
}

// ModelConfig is the whole-model analysis: per-step images and scalars.
type ModelConfig struct {
	Enabled       bool        `koanf:"enabled"`
	Filename      string      `koanf:"filename"`
	Period        int64       `koanf:"period"`
	ParticleTypes []uint32    `koanf:"particle_types"`
	RegionSize    float64     `koanf:"region_size"`
	Image         ImageConfig `koanf:"image"`
	Scalars       []string    `koanf:"scalars"`
}

// ImageConfig describes the 2D images binned at every model step.
type ImageConfig struct {
	Enabled bool     `koanf:"enabled"`
	Bins    int      `koanf:"bins"`
	Planes  []string `koanf:"planes"`  // xy, xz, yz
	Methods []string `koanf:"methods"` // count, sum, mean, std
	// Value is the velocity component reduced by mean and std images.
	Value string `koanf:"value"`
}

// OrbitConfig is the orbit log of a fixed set of particles.
type OrbitConfig struct {
	Enabled  bool    `koanf:"enabled"`
	Filename string  `koanf:"filename"`
	Period   int64   `koanf:"period"`
	IDFile   string  `koanf:"id_file"`
	Fraction float64 `koanf:"fraction"`
	Seed     uint64  `koanf:"seed"`
}

// SimulateConfig drives the synthetic simulation of the simulate command.
type SimulateConfig struct {
	Ranks       int     `koanf:"ranks"`
	Steps       int64   `koanf:"steps"`
	Particles   int     `koanf:"particles"`
	Seed        uint64  `koanf:"seed"`
	Timestep    float64 `koanf:"timestep"`
	MetricsAddr string  `koanf:"metrics_addr"`
}

// StateConfig locates the run journal. An empty path disables it.
type StateConfig struct {
	Path string `koanf:"path"`
}
