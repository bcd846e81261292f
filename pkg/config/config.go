// Package config loads, defaults, and validates the poolfs configuration,
// and builds the configured pool, index, and sweeper through factories.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete poolfs configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (POOLFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
//
// Store Configuration Pattern:
// The Pool and Index sections carry a Type field plus one map per
// implementation; only the map matching the selected type is decoded, by
// the factory for that type.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Pool specifies the content pool type and type-specific configuration
	Pool PoolConfig `mapstructure:"pool"`

	// Index specifies the file index type and type-specific configuration
	Index IndexConfig `mapstructure:"index"`

	// Sweeper controls the periodic trash sweep
	Sweeper SweeperConfig `mapstructure:"sweeper"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// PoolConfig specifies content pool configuration.
type PoolConfig struct {
	// Type specifies which pool implementation to use
	// Valid values: fs, memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=fs memory s3"`

	// FS contains filesystem-specific configuration
	// Only used when Type = "fs"
	FS map[string]any `mapstructure:"fs"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// IndexConfig specifies file index configuration.
type IndexConfig struct {
	// Type specifies which index implementation to use
	// Valid values: badger, memory
	Type string `mapstructure:"type" validate:"required,oneof=badger memory"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`

	// Memory contains memory-specific configuration
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// SweeperConfig controls the periodic trash sweep.
type SweeperConfig struct {
	// Enabled controls whether the sweeper runs
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often a sweep runs
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0"`

	// Retention is how long trashed blobs remain recoverable
	Retention time.Duration `mapstructure:"retention" validate:"required,gt=0"`

	// OrphanScan also sweeps unreferenced active blobs into trash
	OrphanScan bool `mapstructure:"orphan_scan"`

	// PurgeRate throttles pool operations during a sweep, in operations
	// per second. 0 disables throttling.
	PurgeRate uint `mapstructure:"purge_rate"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath falls back to the default location
// ($XDG_CONFIG_HOME/poolfs/config.yaml); a missing file there is fine and
// yields the defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures environment variable support and the config file
// search path.
func setupViper(v *viper.Viper, configPath string) {
	// Example: POOLFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("POOLFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so environment-only
	// overrides need their keys registered through defaults.
	v.SetDefault("logging.level", "")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.output", "")
	v.SetDefault("pool.type", "")
	v.SetDefault("index.type", "")
	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.interval", time.Duration(0))
	v.SetDefault("sweeper.retention", time.Duration(0))
	v.SetDefault("sweeper.orphan_scan", false)
	v.SetDefault("sweeper.purge_rate", uint(0))

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is not an error; everything then comes from environment and defaults.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/poolfs,
// ~/.config/poolfs, or the current directory as a last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "poolfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "poolfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
