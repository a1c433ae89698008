package keeper

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for the renewal keeper.
type Config struct {
	Enabled      bool     `yaml:"enabled"`
	PauseOnStart bool     `yaml:"pause"`
	Interval     Duration `yaml:"interval"`
	MaxPerScan   int      `yaml:"max_per_scan"`
	RateLimit    float64  `yaml:"rate_limit"`
	Burst        int      `yaml:"burst"`
}

// DefaultConfig is used when no keeper file is configured.
func DefaultConfig() Config {
	cfg := Config{Enabled: true}
	applyDefaults(&cfg)
	return cfg
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{Enabled: true}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open keeper config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode keeper config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Interval.Duration == 0 {
		cfg.Interval.Duration = 30 * time.Second
	}
	if cfg.MaxPerScan == 0 {
		cfg.MaxPerScan = 256
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 20
	}
	if cfg.Burst == 0 {
		cfg.Burst = 5
	}
}

func validateConfig(cfg Config) error {
	if cfg.Interval.Duration < time.Second {
		return fmt.Errorf("interval must be at least 1s")
	}
	if cfg.MaxPerScan < 0 {
		return fmt.Errorf("max_per_scan must not be negative")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if cfg.Burst < 1 {
		return fmt.Errorf("burst must be positive")
	}
	return nil
}
