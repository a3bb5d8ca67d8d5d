package config

import (
	"time"

	blobfs "github.com/marmos91/dedupfs/pkg/blob/store/fs"
)

// Default values for top-level settings.
const (
	DefaultLogLevel        = "INFO"
	DefaultLogFormat       = "text"
	DefaultLogOutput       = "stdout"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsPort     = 9090
	DefaultBlobPath        = "/var/lib/dedupfs/blobs"
	DefaultBadgerPath      = "/var/lib/dedupfs/metadata"
)

// GetDefaultConfig returns a configuration with all defaults applied:
// in-process stores suitable for local development.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills unset fields with default values.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = DefaultLogOutput
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Metadata.Store == "" {
		cfg.Metadata.Store = "badger"
	}
	if cfg.Metadata.Badger.Path == "" {
		cfg.Metadata.Badger.Path = DefaultBadgerPath
	}
	cfg.Metadata.Postgres.ApplyDefaults()

	if cfg.Blob.Store == "" {
		cfg.Blob.Store = "fs"
	}
	if cfg.Blob.FS.BasePath == "" {
		fsync := cfg.Blob.FS.Fsync
		cfg.Blob.FS = blobfs.DefaultConfig(DefaultBlobPath)
		cfg.Blob.FS.Fsync = fsync
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}
}
