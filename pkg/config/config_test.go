package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

pool:
  type: "fs"
  fs:
    root: "/tmp/poolfs-test"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Index.Type != "badger" {
		t.Errorf("Expected default index type 'badger', got %q", cfg.Index.Type)
	}
	if !cfg.Sweeper.Enabled {
		t.Error("Expected sweeper enabled by default")
	}
	if cfg.Sweeper.Interval != 24*time.Hour {
		t.Errorf("Expected default sweep interval 24h, got %v", cfg.Sweeper.Interval)
	}
	if cfg.Sweeper.Retention != 7*24*time.Hour {
		t.Errorf("Expected default retention 168h, got %v", cfg.Sweeper.Retention)
	}
	if cfg.Pool.FS["root"] != "/tmp/poolfs-test" {
		t.Errorf("Expected configured pool root, got %v", cfg.Pool.FS["root"])
	}
}

func TestLoad_FullConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	raw, err := yaml.Marshal(map[string]any{
		"logging": map[string]any{
			"level":  "DEBUG",
			"format": "json",
			"output": "stderr",
		},
		"pool": map[string]any{
			"type": "s3",
			"s3": map[string]any{
				"bucket": "poolfs-data",
				"region": "eu-west-1",
			},
		},
		"index": map[string]any{
			"type": "badger",
			"badger": map[string]any{
				"path": filepath.Join(tmpDir, "index"),
			},
		},
		"sweeper": map[string]any{
			"enabled":     true,
			"interval":    "1h",
			"retention":   "72h",
			"orphan_scan": true,
			"purge_rate":  50,
		},
	})
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, raw, 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Pool.Type != "s3" {
		t.Errorf("Expected pool type 's3', got %q", cfg.Pool.Type)
	}
	if cfg.Pool.S3["bucket"] != "poolfs-data" {
		t.Errorf("Expected configured bucket, got %v", cfg.Pool.S3["bucket"])
	}
	if cfg.Sweeper.Interval != time.Hour {
		t.Errorf("Expected 1h sweep interval, got %v", cfg.Sweeper.Interval)
	}
	if cfg.Sweeper.Retention != 72*time.Hour {
		t.Errorf("Expected 72h retention, got %v", cfg.Sweeper.Retention)
	}
	if !cfg.Sweeper.OrphanScan {
		t.Error("Expected orphan scan enabled")
	}
	if cfg.Sweeper.PurgeRate != 50 {
		t.Errorf("Expected purge rate 50, got %d", cfg.Sweeper.PurgeRate)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// A missing explicit file is acceptable; everything comes from
	// defaults.
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Pool.Type != "fs" {
		t.Errorf("Expected default pool type 'fs', got %q", cfg.Pool.Type)
	}
	if cfg.Pool.FS["root"] != "/var/lib/poolfs/pool" {
		t.Errorf("Expected default pool root, got %v", cfg.Pool.FS["root"])
	}
	if cfg.Index.Badger["path"] != "/var/lib/poolfs/index" {
		t.Errorf("Expected default index path, got %v", cfg.Index.Badger["path"])
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	if err := os.WriteFile(configPath, []byte("pool: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("POOLFS_LOGGING_LEVEL", "debug")

	tmpDir := t.TempDir()
	cfg, err := Load(filepath.Join(tmpDir, "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// ApplyDefaults normalizes to uppercase
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env-overridden level 'DEBUG', got %q", cfg.Logging.Level)
	}
}

func TestLoad_InvalidPoolType(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
pool:
  type: "carrier-pigeon"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected validation error for unknown pool type, got nil")
	}
}

func TestLoad_SweeperDisabled(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
sweeper:
  enabled: false
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Sweeper.Enabled {
		t.Error("Expected explicit sweeper.enabled=false to stick")
	}
}

func TestValidate_RetentionShorterThanInterval(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Sweeper.Interval = 24 * time.Hour
	cfg.Sweeper.Retention = time.Hour
	cfg.Sweeper.Enabled = true

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for retention < interval, got nil")
	}
}

func TestValidate_MissingS3Bucket(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Pool.Type = "s3"
	cfg.Pool.S3 = map[string]any{"region": "eu-west-1"}

	if err := Validate(cfg); err == nil {
		t.Error("Expected validation error for missing s3 bucket, got nil")
	}
}

func TestApplyDefaults_NormalizesLogLevel(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "warn"
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected normalized level 'WARN', got %q", cfg.Logging.Level)
	}
}
