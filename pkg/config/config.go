// Package config provides configuration loading and management for growcutseg.
// It handles loading configuration from YAML or TOML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"growcutseg/pkg/growcut"
	"growcutseg/pkg/logging"
	"growcutseg/pkg/seed"
)

// Config represents the application configuration
type Config struct {
	// Engine parameters of the grow-cut run
	Engine struct {
		// WindowSize is the odd edge length of the neighbourhood window
		WindowSize int `yaml:"windowSize" toml:"windowSize"`

		// MaxIterations caps the run; zero derives it from the grid size
		MaxIterations int `yaml:"maxIterations" toml:"maxIterations"`

		// MaxProcessingTimeMs is the wall-clock budget in milliseconds
		MaxProcessingTimeMs int64 `yaml:"maxProcessingTimeMs" toml:"maxProcessingTimeMs"`

		Inspection struct {
			Interval             int     `yaml:"interval" toml:"interval"`
			BelowThresholdCycles int     `yaml:"belowThresholdCycles" toml:"belowThresholdCycles"`
			Threshold            float64 `yaml:"threshold" toml:"threshold"`
		} `yaml:"inspection" toml:"inspection"`

		// TileSize is the number of voxels per parallel work item
		TileSize int `yaml:"tileSize" toml:"tileSize"`

		// Workers bounds the number of tiles processed at once
		Workers int `yaml:"workers" toml:"workers"`
	} `yaml:"engine" toml:"engine"`

	// Seeds are the sentinels every strategy writes unless it sets its own
	Seeds seed.SeedValues `yaml:"seeds" toml:"seeds"`

	Sphere      seed.SphereOptions   `yaml:"sphere" toml:"sphere"`
	BoundingBox seed.BoxOptions      `yaml:"boundingBox" toml:"boundingBox"`
	OneClick    seed.OneClickOptions `yaml:"oneClick" toml:"oneClick"`

	// Output parameters
	Output struct {
		// SegmentIndex replaces the positive sentinel in the final labels; zero keeps it
		SegmentIndex uint32 `yaml:"segmentIndex" toml:"segmentIndex"`

		// KeepNegative keeps the negative sentinel in the final labels
		KeepNegative bool `yaml:"keepNegative" toml:"keepNegative"`

		// PreviewDir receives PNG overlays of every slice when set
		PreviewDir string `yaml:"previewDir" toml:"previewDir"`

		// MeshFile receives an STL surface of the segment when set
		MeshFile string `yaml:"meshFile" toml:"meshFile"`

		// Compress writes label files with zstd
		Compress bool `yaml:"compress" toml:"compress"`
	} `yaml:"output" toml:"output"`

	Log logging.Config `yaml:"log" toml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default engine parameters
	cfg.Engine.WindowSize = growcut.DefaultWindowSize
	cfg.Engine.MaxIterations = 0 // derive from grid diagonal
	cfg.Engine.MaxProcessingTimeMs = growcut.DefaultMaxProcessingTime.Milliseconds()
	cfg.Engine.Inspection.Interval = growcut.DefaultInspectionInterval
	cfg.Engine.Inspection.BelowThresholdCycles = growcut.DefaultBelowThresholdCycles
	cfg.Engine.Inspection.Threshold = growcut.DefaultInspectionThreshold
	cfg.Engine.TileSize = growcut.DefaultTileSize
	cfg.Engine.Workers = runtime.NumCPU() // Use all available cores by default

	// Set default seeding parameters
	cfg.Seeds = seed.DefaultSeedValues()
	cfg.Sphere = seed.DefaultSphereOptions()
	cfg.BoundingBox = seed.DefaultBoxOptions()
	cfg.OneClick = seed.DefaultOneClickOptions()
	cfg.Sphere.Seeds = seed.SeedValues{} // inherit cfg.Seeds
	cfg.BoundingBox.Seeds = seed.SeedValues{}
	cfg.OneClick.Seeds = seed.SeedValues{}

	// Set default output parameters
	cfg.Output.SegmentIndex = 1
	cfg.Output.Compress = true

	cfg.Log.Level = "info"
	cfg.Log.MaxSize = 100
	cfg.Log.MaxAge = 30

	return cfg
}

// LoadConfig loads configuration from a YAML or, for a .toml extension, TOML file.
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML or TOML
	if isTOML(configPath) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML or TOML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	var data []byte
	if isTOML(configPath) {
		var sb strings.Builder
		if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		data = []byte(sb.String())
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Validate reports engine and seed settings that cannot run
func (c *Config) Validate() error {
	if err := c.RunParameters().Validate(); err != nil {
		return err
	}
	for _, s := range []seed.SeedValues{c.SphereOptions().Seeds, c.BoxOptions().Seeds, c.OneClickOptions().Seeds} {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RunParameters converts the engine section
func (c *Config) RunParameters() growcut.RunParameters {
	return growcut.RunParameters{
		WindowSize:        c.Engine.WindowSize,
		MaxIterations:     c.Engine.MaxIterations,
		MaxProcessingTime: time.Duration(c.Engine.MaxProcessingTimeMs) * time.Millisecond,
		Inspection: growcut.Inspection{
			Interval:             c.Engine.Inspection.Interval,
			BelowThresholdCycles: c.Engine.Inspection.BelowThresholdCycles,
			Threshold:            c.Engine.Inspection.Threshold,
		},
		TileSize: c.Engine.TileSize,
		Workers:  c.Engine.Workers,
	}
}

// SphereOptions returns the sphere options with the shared seed values applied
func (c *Config) SphereOptions() seed.SphereOptions {
	opts := c.Sphere
	if opts.Seeds == (seed.SeedValues{}) {
		opts.Seeds = c.Seeds
	}
	return opts
}

// BoxOptions returns the bounding box options with the shared seed values applied
func (c *Config) BoxOptions() seed.BoxOptions {
	opts := c.BoundingBox
	if opts.Seeds == (seed.SeedValues{}) {
		opts.Seeds = c.Seeds
	}
	return opts
}

// OneClickOptions returns the one-click options with the shared seed values applied
func (c *Config) OneClickOptions() seed.OneClickOptions {
	opts := c.OneClick
	if opts.Seeds == (seed.SeedValues{}) {
		opts.Seeds = c.Seeds
	}
	return opts
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
