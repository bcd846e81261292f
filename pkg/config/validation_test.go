package config

import (
	"strings"
	"testing"
)

// validConfig returns a configuration that passes validation, for tests to
// break one field at a time.
func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Expected valid config to pass, got: %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "Level") {
		t.Errorf("Error should point at the Level field: %v", err)
	}
}

func TestValidate_BadLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for invalid log format, got nil")
	}
}

func TestValidate_BadPoolType(t *testing.T) {
	cfg := validConfig()
	cfg.Pool.Type = "tape"

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for invalid pool type, got nil")
	}
}

func TestValidate_BadIndexType(t *testing.T) {
	cfg := validConfig()
	cfg.Index.Type = "postgres"

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for invalid index type, got nil")
	}
}

func TestValidate_MissingFSRoot(t *testing.T) {
	cfg := validConfig()
	cfg.Pool.FS = map[string]any{}

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for missing fs root, got nil")
	}
}

func TestValidate_MissingBadgerPath(t *testing.T) {
	cfg := validConfig()
	cfg.Index.Badger = map[string]any{}

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for missing badger path, got nil")
	}
}

func TestValidate_ZeroSweepInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Sweeper.Interval = 0

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for zero sweep interval, got nil")
	}
}

func TestValidate_CaseInsensitiveLogLevel(t *testing.T) {
	// Validation runs after ApplyDefaults normally, but lowercase levels
	// are accepted either way.
	cfg := validConfig()
	cfg.Logging.Level = "debug"

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected lowercase level to validate, got: %v", err)
	}
}
