package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct tags handle the declarative checks; validateCustomRules covers
// cross-field constraints tags cannot express. Log level normalization
// happens in ApplyDefaults, so both cases are accepted here.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// The selected pool type must carry its required settings.
	switch cfg.Pool.Type {
	case "fs":
		if root, _ := cfg.Pool.FS["root"].(string); root == "" {
			return fmt.Errorf("pool.fs: root is required")
		}
	case "s3":
		if bucket, _ := cfg.Pool.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("pool.s3: bucket is required")
		}
		if region, _ := cfg.Pool.S3["region"].(string); region == "" {
			return fmt.Errorf("pool.s3: region is required")
		}
	}

	if cfg.Index.Type == "badger" {
		if path, _ := cfg.Index.Badger["path"].(string); path == "" {
			return fmt.Errorf("index.badger: path is required")
		}
	}

	// Retention shorter than the interval purges most blobs the first
	// time a sweep sees them, which defeats the recovery window.
	if cfg.Sweeper.Enabled && cfg.Sweeper.Retention < cfg.Sweeper.Interval {
		return fmt.Errorf("sweeper: retention (%s) must not be shorter than interval (%s)",
			cfg.Sweeper.Retention, cfg.Sweeper.Interval)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly
// messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
