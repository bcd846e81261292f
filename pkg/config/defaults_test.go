package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Pool.Type != "fs" {
		t.Errorf("Expected default pool type 'fs', got %q", cfg.Pool.Type)
	}
	if cfg.Index.Type != "badger" {
		t.Errorf("Expected default index type 'badger', got %q", cfg.Index.Type)
	}
	if cfg.Sweeper.Interval != 24*time.Hour {
		t.Errorf("Expected default interval 24h, got %v", cfg.Sweeper.Interval)
	}
	if cfg.Sweeper.Retention != 7*24*time.Hour {
		t.Errorf("Expected default retention 168h, got %v", cfg.Sweeper.Retention)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "ERROR"
	cfg.Pool.Type = "memory"
	cfg.Index.Type = "memory"
	cfg.Sweeper.Interval = time.Hour
	cfg.Sweeper.Retention = 48 * time.Hour
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Explicit level overwritten: %q", cfg.Logging.Level)
	}
	if cfg.Pool.Type != "memory" {
		t.Errorf("Explicit pool type overwritten: %q", cfg.Pool.Type)
	}
	if cfg.Index.Type != "memory" {
		t.Errorf("Explicit index type overwritten: %q", cfg.Index.Type)
	}
	if cfg.Sweeper.Interval != time.Hour {
		t.Errorf("Explicit interval overwritten: %v", cfg.Sweeper.Interval)
	}
	if cfg.Sweeper.Retention != 48*time.Hour {
		t.Errorf("Explicit retention overwritten: %v", cfg.Sweeper.Retention)
	}
}

func TestApplyDefaults_InitializesStoreMaps(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Pool.FS == nil || cfg.Pool.Memory == nil || cfg.Pool.S3 == nil {
		t.Error("Expected all pool option maps initialized")
	}
	if cfg.Index.Badger == nil || cfg.Index.Memory == nil {
		t.Error("Expected all index option maps initialized")
	}
	if cfg.Pool.FS["root"] == "" {
		t.Error("Expected a default fs pool root")
	}
	if cfg.Index.Badger["path"] == "" {
		t.Error("Expected a default badger index path")
	}
}
