// Package config provides configuration loading and management for dicomvolume.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"dicomvolume/pkg/align"
	"dicomvolume/pkg/overlap"
	"dicomvolume/pkg/reconstruction"
	"dicomvolume/pkg/validation"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// Allow lists the attributes and conditions whose violations are
		// corrected or tolerated instead of failing a series
		Allow []string `yaml:"allow"`

		// FillMissing duplicates the nearest slice into gaps of the position grid
		FillMissing bool `yaml:"fillMissing"`

		// Decimals is the rounding precision for corrected positions
		Decimals int `yaml:"decimals"`

		// KeepGoing records failed cases and continues the run
		KeepGoing bool `yaml:"keepGoing"`
	} `yaml:"processing"`

	// Alignment parameters
	Alignment struct {
		// Align shifts the second source onto the first before comparing
		Align bool `yaml:"align"`

		// AlignByROI aligns label centers of mass; otherwise patient positions are used
		AlignByROI bool `yaml:"alignByROI"`
	} `yaml:"alignment"`

	// Classification parameters
	Classification struct {
		// Contours draws region boundaries instead of filled regions
		Contours bool `yaml:"contours"`

		// ContourThickness is the boundary line width in pixels
		ContourThickness int `yaml:"contourThickness"`

		// Transparency is the overlay colour weight
		Transparency float64 `yaml:"transparency"`

		// SideBySide puts the plain image next to the overlay
		SideBySide bool `yaml:"sideBySide"`
	} `yaml:"classification"`

	// Clip maps a modality to the [low, high] value range its images are clipped to
	Clip map[string][2]float64 `yaml:"clip"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults writes corrected series to IntermediaryDir
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir receives corrected series
		IntermediaryDir string `yaml:"intermediaryDir"`

		// ShiftedDir receives aligned series, empty to skip
		ShiftedDir string `yaml:"shiftedDir"`

		// PreviewDir receives overlay previews, empty to skip
		PreviewDir string `yaml:"previewDir"`

		// ResultsDB is the SQLite database results are recorded in, empty for memory only
		ResultsDB string `yaml:"resultsDB"`

		// MetricsFile is the Prometheus textfile written after a run, empty to skip
		MetricsFile string `yaml:"metricsFile"`

		// LogLevel is one of debug, info, warn, error
		LogLevel string `yaml:"logLevel"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.Allow = []string{}
	cfg.Processing.FillMissing = true
	cfg.Processing.Decimals = 5

	// Set default alignment parameters
	cfg.Alignment.Align = false
	cfg.Alignment.AlignByROI = true

	// Set default classification parameters
	cfg.Classification.Contours = false
	cfg.Classification.ContourThickness = overlap.DefaultThickness
	cfg.Classification.Transparency = 0.3

	cfg.Clip = map[string][2]float64{}

	// Set default output parameters
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary"
	cfg.Output.ResultsDB = "results.db"
	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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

// Validate checks values that cannot be checked by the YAML decoder.
func (c *Config) Validate() error {
	if _, err := c.AllowList(); err != nil {
		return err
	}
	if c.Processing.Decimals < 0 {
		return fmt.Errorf("processing.decimals must not be negative")
	}
	if c.Classification.Transparency < 0 || c.Classification.Transparency > 1 {
		return fmt.Errorf("classification.transparency must be within [0, 1]")
	}
	for modality, r := range c.Clip {
		if r[0] > r[1] {
			return fmt.Errorf("clip range for %s is reversed: %v", modality, r)
		}
	}
	return nil
}

// AllowList returns the processing allow list.
func (c *Config) AllowList() (validation.AllowList, error) {
	return validation.NewAllowList(c.Processing.Allow...)
}

// AlignMode returns the configured alignment landmark.
func (c *Config) AlignMode() align.Mode {
	if c.Alignment.AlignByROI {
		return align.ByROI
	}
	return align.ByPosition
}

// ClassificationMode returns the configured classification mode.
func (c *Config) ClassificationMode() overlap.Mode {
	if c.Classification.Contours {
		return overlap.Contour
	}
	return overlap.Fill
}

// AssemblyParams returns the series assembly parameters.
func (c *Config) AssemblyParams() (reconstruction.Params, error) {
	allow, err := c.AllowList()
	if err != nil {
		return reconstruction.Params{}, err
	}
	return reconstruction.Params{
		Allow:                   allow,
		FillMissing:             c.Processing.FillMissing,
		Decimals:                c.Processing.Decimals,
		ValueClip:               c.Clip,
		SaveIntermediaryResults: c.Output.SaveIntermediaryResults,
		IntermediaryDir:         c.Output.IntermediaryDir,
	}, nil
}
