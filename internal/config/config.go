package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/milos-agathon/visualize-google-satellite-embeddings/pkg/region"
)

// Config holds the pipeline configuration
type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	Dataset  DatasetConfig  `yaml:"dataset"`
	Region   region.Region  `yaml:"region"`
	Sampling SamplingConfig `yaml:"sampling"`
	Storage  StorageConfig  `yaml:"storage"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
}

// ProjectConfig identifies the Cloud project and its credentials
type ProjectConfig struct {
	ID          string `yaml:"id"`
	Credentials string `yaml:"credentials"` // service-account key file, empty for ADC
}

// DatasetConfig selects the embedding collection and epochs
type DatasetConfig struct {
	Collection   string  `yaml:"collection"`
	Year         int     `yaml:"year"`
	BaselineYear int     `yaml:"baseline_year"`
	Scale        float64 `yaml:"scale"` // meters per pixel
}

// SamplingConfig controls the pixel sample behind the clusterer
type SamplingConfig struct {
	Pixels   int64 `yaml:"pixels"`
	Seed     int64 `yaml:"seed"`
	Clusters int   `yaml:"clusters"`
}

// StorageConfig names the export bucket and the local download dir
type StorageConfig struct {
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	DataDir string `yaml:"data_dir"`
}

// OutputConfig holds configuration for plot generation
type OutputConfig struct {
	Dir     string `yaml:"dir"`
	Format  string `yaml:"format"`
	Quality int    `yaml:"quality"`
	Width   int    `yaml:"width"`
}

// LogConfig controls log verbosity and rendering
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Project: ProjectConfig{},
		Dataset: DatasetConfig{
			Collection:   "GOOGLE/SATELLITE_EMBEDDING/V1/ANNUAL",
			Year:         2024,
			BaselineYear: 2018,
			Scale:        10,
		},
		Region: region.Region{
			West:  20.35,
			South: 44.72,
			East:  20.57,
			North: 44.87,
		},
		Sampling: SamplingConfig{
			Pixels:   1000,
			Seed:     100,
			Clusters: 6,
		},
		Storage: StorageConfig{
			Prefix:  "satviz",
			DataDir: "./data",
		},
		Output: OutputConfig{
			Dir:     "./output",
			Format:  "png",
			Quality: 90,
			Width:   1600,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load returns the configuration from an optional YAML file with
// environment overrides applied. An empty filename loads defaults.
func Load(filename string) (*Config, error) {
	if filename == "" {
		config := Default()
		config.applyEnv()
		return config, nil
	}
	return LoadFromFile(filename)
}

// LoadFromFile loads configuration from a YAML file. Missing keys keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	return config, nil
}

// applyEnv lets the environment override the settings that differ
// between machines and CI.
func (c *Config) applyEnv() {
	if v := os.Getenv("SATVIZ_PROJECT"); v != "" {
		c.Project.ID = v
	}
	if v := os.Getenv("SATVIZ_CREDENTIALS"); v != "" {
		c.Project.Credentials = v
	}
	if v := os.Getenv("SATVIZ_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("SATVIZ_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Region.Validate(); err != nil {
		return fmt.Errorf("region: %w", err)
	}

	if c.Dataset.Collection == "" {
		return fmt.Errorf("dataset.collection cannot be empty")
	}

	// Annual embeddings begin in 2017.
	if c.Dataset.Year < 2017 {
		return fmt.Errorf("dataset.year must be 2017 or later")
	}
	if c.Dataset.BaselineYear < 2017 {
		return fmt.Errorf("dataset.baseline_year must be 2017 or later")
	}
	if c.Dataset.BaselineYear >= c.Dataset.Year {
		return fmt.Errorf("dataset.baseline_year must precede dataset.year")
	}

	if c.Dataset.Scale <= 0 {
		return fmt.Errorf("dataset.scale must be positive")
	}

	if c.Sampling.Pixels < 1 {
		return fmt.Errorf("sampling.pixels must be positive")
	}
	if c.Sampling.Clusters < 2 {
		return fmt.Errorf("sampling.clusters must be at least 2")
	}

	switch c.Output.Format {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.format must be png, jpg or webp")
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	if c.Output.Width < 1 {
		return fmt.Errorf("output.width must be positive")
	}

	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of trace, debug, info, warn, error")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./satviz.yaml"
	}
	return filepath.Join(home, ".config", "satviz", "config.yaml")
}
