package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for invalid or missing values.
//
// Backing configurations are validated only for the backing that is actually
// selected: an fs blob store does not require S3 credentials.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	switch cfg.Metadata.Store {
	case "postgres":
		if err := validate.Struct(&cfg.Metadata.Postgres); err != nil {
			return fmt.Errorf("metadata.postgres: %w", err)
		}
		if err := cfg.Metadata.Postgres.Validate(); err != nil {
			return fmt.Errorf("metadata.postgres: %w", err)
		}
	case "badger":
		if err := validate.Struct(&cfg.Metadata.Badger); err != nil {
			return fmt.Errorf("metadata.badger: %w", err)
		}
	}

	switch cfg.Blob.Store {
	case "fs":
		if err := validate.Struct(&cfg.Blob.FS); err != nil {
			return fmt.Errorf("blob.fs: %w", err)
		}
	case "s3":
		if err := validate.Struct(&cfg.Blob.S3); err != nil {
			return fmt.Errorf("blob.s3: %w", err)
		}
	}

	return nil
}
