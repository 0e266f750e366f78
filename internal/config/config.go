package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// State inference engine settings
	Engine EngineConfig `yaml:"engine"`

	// Selectable sources, in display order
	Sources []Source `yaml:"sources"`

	// Control server settings
	Control ControlConfig `yaml:"control"`

	// Manifest fetching for HLS and DASH
	Manifest ManifestConfig `yaml:"manifest"`

	// Simulated playback surface
	Simulation SimulationConfig `yaml:"simulation"`
}

// EngineConfig holds the engine's tunables
type EngineConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	LookaheadSeconds float64       `yaml:"lookahead_seconds"`
}

// Source is one selectable stream
type Source struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
	Type  string `yaml:"type,omitempty"` // mp4, hls or dash; detected from the URL when empty
}

// ControlConfig represents control server settings
type ControlConfig struct {
	Listen       string `yaml:"listen"`
	EventsListen string `yaml:"events_listen,omitempty"` // HTTP address for the websocket feed, disabled when empty
}

// ManifestConfig represents manifest fetcher settings
type ManifestConfig struct {
	CacheEntries int           `yaml:"cache_entries"`
	Timeout      time.Duration `yaml:"timeout"`
}

// SimulationConfig describes the simulated network and element
type SimulationConfig struct {
	Tick                   time.Duration `yaml:"tick"`
	BandwidthKbps          float64       `yaml:"bandwidth_kbps"`
	BitrateKbps            float64       `yaml:"bitrate_kbps"`
	DefaultDurationSeconds float64       `yaml:"default_duration_seconds"`
	AutoplayBlocked        bool          `yaml:"autoplay_blocked"`
	NativeHLS              bool          `yaml:"native_hls"`
	ProbeDuration          bool          `yaml:"probe_duration"` // ask ffprobe for progressive durations
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			PollInterval:     100 * time.Millisecond,
			LookaheadSeconds: 2.0,
		},
		Sources: []Source{},
		Control: ControlConfig{
			Listen:       "localhost:6680",
			EventsListen: "localhost:6681",
		},
		Manifest: ManifestConfig{
			CacheEntries: 64,
			Timeout:      10 * time.Second,
		},
		Simulation: SimulationConfig{
			Tick:                   50 * time.Millisecond,
			BandwidthKbps:          6000,
			BitrateKbps:            2500,
			DefaultDurationSeconds: 120,
		},
	}
}

// LoadConfig loads configuration from file. Settings missing from the file
// keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// If file doesn't exist, return default config
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values the rest of the program cannot work with
func (c *Config) Validate() error {
	if c.Engine.PollInterval < 0 {
		return fmt.Errorf("engine.poll_interval must not be negative")
	}
	if c.Engine.LookaheadSeconds < 0 {
		return fmt.Errorf("engine.lookahead_seconds must not be negative")
	}
	if c.Simulation.BitrateKbps <= 0 {
		return fmt.Errorf("simulation.bitrate_kbps must be positive")
	}
	for i, src := range c.Sources {
		if src.URL == "" {
			return fmt.Errorf("sources[%d] has no url", i)
		}
	}
	return nil
}

// AddSource adds a source to the configuration
func (c *Config) AddSource(src Source) {
	c.Sources = append(c.Sources, src)
}

// GetSource returns a source by title
func (c *Config) GetSource(title string) *Source {
	for i := range c.Sources {
		if c.Sources[i].Title == title {
			return &c.Sources[i]
		}
	}
	return nil
}

// RemoveSource removes a source by title
func (c *Config) RemoveSource(title string) error {
	for i := range c.Sources {
		if c.Sources[i].Title == title {
			c.Sources = append(c.Sources[:i], c.Sources[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("source not found: %s", title)
}
