package config

import (
	"strings"
	"time"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyPoolDefaults(&cfg.Pool)
	applyIndexDefaults(&cfg.Index)
	applySweeperDefaults(&cfg.Sweeper)
}

// applyLoggingDefaults sets logging defaults and normalizes the level.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyPoolDefaults sets content pool defaults.
func applyPoolDefaults(cfg *PoolConfig) {
	if cfg.Type == "" {
		cfg.Type = "fs"
	}

	if cfg.FS == nil {
		cfg.FS = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.FS["root"]; !ok {
		cfg.FS["root"] = "/var/lib/poolfs/pool"
	}
}

// applyIndexDefaults sets file index defaults.
func applyIndexDefaults(cfg *IndexConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}

	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = "/var/lib/poolfs/index"
	}
}

// applySweeperDefaults sets trash sweep defaults. The enabled flag
// defaults through viper (see setupViper): without the sweeper trash grows
// forever, so only an explicit false turns it off.
func applySweeperDefaults(cfg *SweeperConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Retention == 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
}
