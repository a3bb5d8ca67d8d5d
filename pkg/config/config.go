// Package config loads and validates the dedupfs configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (DEDUPFS_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	blobfs "github.com/marmos91/dedupfs/pkg/blob/store/fs"
	blobs3 "github.com/marmos91/dedupfs/pkg/blob/store/s3"
	metabadger "github.com/marmos91/dedupfs/pkg/metadata/store/badger"
	metapostgres "github.com/marmos91/dedupfs/pkg/metadata/store/postgres"
)

// Config is the dedupfs configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Metadata selects and configures the metadata store backing.
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Blob selects and configures the blob store backing.
	Blob BlobConfig `mapstructure:"blob" yaml:"blob"`

	// Reclaimer configures the orphan blob reclaimer.
	Reclaimer ReclaimerConfig `mapstructure:"reclaimer" yaml:"reclaimer"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is where logs go: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// MetadataConfig selects the metadata store backing.
type MetadataConfig struct {
	// Store is the backing to use: memory, postgres or badger.
	Store string `mapstructure:"store" validate:"required,oneof=memory postgres badger" yaml:"store"`

	// Postgres configures the postgres backing. Used when Store is "postgres".
	Postgres metapostgres.Config `mapstructure:"postgres" validate:"-" yaml:"postgres"`

	// Badger configures the badger backing. Used when Store is "badger".
	Badger metabadger.Config `mapstructure:"badger" validate:"-" yaml:"badger"`
}

// BlobConfig selects the blob store backing.
type BlobConfig struct {
	// Store is the backing to use: fs, s3 or memory.
	Store string `mapstructure:"store" validate:"required,oneof=fs s3 memory" yaml:"store"`

	// FS configures the filesystem backing. Used when Store is "fs".
	FS blobfs.Config `mapstructure:"fs" validate:"-" yaml:"fs"`

	// S3 configures the S3 backing. Used when Store is "s3".
	S3 blobs3.Config `mapstructure:"s3" validate:"-" yaml:"s3"`
}

// ReclaimerConfig configures the orphan blob reclaimer.
type ReclaimerConfig struct {
	// Interval between reclamation passes when running as a daemon.
	// Zero disables the periodic sweep; 'dedupfs reclaim' still works.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// BatchSize bounds each orphan snapshot. 0 uses the store default.
	BatchSize int `mapstructure:"batch_size" validate:"gte=0" yaml:"batch_size"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
// When Enabled is false, no metrics are collected.
type MetricsConfig struct {
	// Enabled controls metrics collection and the HTTP endpoint.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath uses the default location.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the file is
// missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  dedupfs init\n\n"+
				"Or specify a custom config file:\n"+
				"  dedupfs <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  dedupfs init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the configuration to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the config may carry database and S3 credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures environment variable and config file handling.
// Environment variables use the DEDUPFS_ prefix with underscores,
// e.g. DEDUPFS_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DEDUPFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the config file if present. A missing file is not an
// error; defaults apply.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook converts config strings like "30s" or "5m" into
// time.Duration values.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64.
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory, honoring XDG_CONFIG_HOME.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dedupfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dedupfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks for a config file at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory (for the init command).
func GetConfigDir() string {
	return getConfigDir()
}
