package sched

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml
type Config struct {
	Name           string  `yaml:"name"`             // label for logs and metrics
	TargetTickMS   float64 `yaml:"target_tick_ms"`   // 33.333 (30 ticks per second)
	MaxTickMS      float64 `yaml:"max_tick_ms"`      // upper bound for the adaptive target
	InitialSliceMS float64 `yaml:"initial_slice_ms"` // time slice before any smoothing
	LowWater       float64 `yaml:"low_water"`        // fraction of target; below it the target grows
	HighWater      float64 `yaml:"high_water"`       // fraction of target; above it the target shrinks
	LogLevel       string  `yaml:"log_level"`
	LogFormat      string  `yaml:"log_format"`
	TraceCSV       string  `yaml:"trace_csv"`
	MetricsAddr    string  `yaml:"metrics_addr"`
}

// DefaultConfig is used when no config file is found.
func DefaultConfig() Config {
	return Config{
		Name:           "default",
		TargetTickMS:   1000.0 / 30,
		MaxTickMS:      100,
		InitialSliceMS: 1000.0 / 60,
		LowWater:       0.1,
		HighWater:      0.5,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads YAML and overrides defaults; empty path or a missing file = defaults only.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.clamped(), nil
}

// clamped applies sanity clamps so the scheduler never starts from nonsense.
func (c Config) clamped() Config {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.TargetTickMS <= 0 {
		c.TargetTickMS = def.TargetTickMS
	}
	if c.MaxTickMS < c.TargetTickMS {
		c.MaxTickMS = c.TargetTickMS
	}
	if c.InitialSliceMS < 0 {
		c.InitialSliceMS = 0
	}
	if c.LowWater < 0 || c.LowWater >= 1 {
		c.LowWater = def.LowWater
	}
	if c.HighWater <= c.LowWater || c.HighWater > 1 {
		c.LowWater, c.HighWater = def.LowWater, def.HighWater
	}
	return c
}

// TargetTick returns the baseline target tick duration.
func (c Config) TargetTick() time.Duration { return millis(c.TargetTickMS) }

// MaxTick returns the ceiling for the adaptive target tick duration.
func (c Config) MaxTick() time.Duration { return millis(c.MaxTickMS) }

// InitialSlice returns the time slice used on the first tick.
func (c Config) InitialSlice() time.Duration { return millis(c.InitialSliceMS) }

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
