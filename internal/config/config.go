// Package config loads fitset settings from defaults, an optional YAML file,
// FITSET_* environment variables and bound command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FITSET_SPLIT_RATIO.
const EnvPrefix = "FITSET"

// Config is the resolved configuration.
type Config struct {
	Padding  float64        `mapstructure:"padding"`
	Split    SplitConfig    `mapstructure:"split"`
	Crop     CropConfig     `mapstructure:"crop"`
	Curate   CurateConfig   `mapstructure:"curate"`
	Evaluate EvaluateConfig `mapstructure:"evaluate"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SplitConfig controls train/val partitioning.
type SplitConfig struct {
	Ratio float64 `mapstructure:"ratio"`

	// Seed 0 means a time-based seed.
	Seed int64 `mapstructure:"seed"`
}

// CropConfig controls classification crops.
type CropConfig struct {
	Workers int `mapstructure:"workers"`
	Quality int `mapstructure:"quality"`
}

// CurateConfig controls the curation filter.
type CurateConfig struct {
	MinDetections int `mapstructure:"min_detections"`
}

// EvaluateConfig controls detector evaluation.
type EvaluateConfig struct {
	Thresholds []float64 `mapstructure:"thresholds"`
	DB         string    `mapstructure:"db"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults and environment lookup set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every known key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("padding", 0.15)
	v.SetDefault("split.ratio", 0.9)
	v.SetDefault("split.seed", 0)
	v.SetDefault("crop.workers", runtime.NumCPU())
	v.SetDefault("crop.quality", 95)
	v.SetDefault("curate.min_detections", 5)
	v.SetDefault("evaluate.thresholds", []float64{0.57, 0.7, 0.8})
	v.SetDefault("evaluate.db", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// ReadFile reads cfgFile, or searches $HOME/.config/fitset/config.yaml and
// ./fitset.yaml when cfgFile is empty. A missing searched file is not an
// error; a missing explicit file is.
func ReadFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(ExpandPath(cfgFile))
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "fitset"))
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err == nil {
		return nil
	} else if !isNotFound(err) {
		return fmt.Errorf("failed to read config: %w", err)
	}

	local := "fitset.yaml"
	if _, err := os.Stat(local); err != nil {
		return nil
	}
	v.SetConfigFile(local)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf)
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Evaluate.DB = ExpandPath(cfg.Evaluate.DB)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is New, ReadFile and Decode in one call.
func Load(cfgFile string) (*Config, error) {
	v := New()
	if err := ReadFile(v, cfgFile); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks ranges that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Padding < 0 {
		return fmt.Errorf("padding must not be negative, got %g", c.Padding)
	}
	if c.Split.Ratio <= 0 || c.Split.Ratio >= 1 {
		return fmt.Errorf("split.ratio must be in (0, 1), got %g", c.Split.Ratio)
	}
	if c.Crop.Workers < 1 {
		return fmt.Errorf("crop.workers must be positive, got %d", c.Crop.Workers)
	}
	if c.Crop.Quality < 1 || c.Crop.Quality > 100 {
		return fmt.Errorf("crop.quality must be in [1, 100], got %d", c.Crop.Quality)
	}
	if c.Curate.MinDetections < 0 {
		return fmt.Errorf("curate.min_detections must not be negative, got %d", c.Curate.MinDetections)
	}
	for _, t := range c.Evaluate.Thresholds {
		if t < 0 || t > 1 {
			return fmt.Errorf("evaluate.thresholds must be in [0, 1], got %g", t)
		}
	}
	return nil
}
