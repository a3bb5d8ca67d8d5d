package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_DefaultsApplied(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "DEBUG"

metadata:
  store: badger
  badger:
    path: "` + filepath.ToSlash(tmpDir) + `/metadata"

blob:
  store: fs
  fs:
    base_path: "` + filepath.ToSlash(tmpDir) + `/blobs"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected log level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Expected default metrics port %d, got %d", DefaultMetricsPort, cfg.Metrics.Port)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected defaults when config file is missing, got error: %v", err)
	}

	if cfg.Metadata.Store != "badger" {
		t.Errorf("Expected default metadata store 'badger', got %q", cfg.Metadata.Store)
	}
	if cfg.Blob.Store != "fs" {
		t.Errorf("Expected default blob store 'fs', got %q", cfg.Blob.Store)
	}
	if cfg.Blob.FS.BasePath != DefaultBlobPath {
		t.Errorf("Expected default blob path %q, got %q", DefaultBlobPath, cfg.Blob.FS.BasePath)
	}
}

func TestLoad_DurationParsing(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
metadata:
  store: memory

blob:
  store: memory

shutdown_timeout: 45s

reclaimer:
  interval: 5m
  batch_size: 250
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.ShutdownTimeout != 45*time.Second {
		t.Errorf("Expected shutdown_timeout 45s, got %v", cfg.ShutdownTimeout)
	}
	if cfg.Reclaimer.Interval != 5*time.Minute {
		t.Errorf("Expected reclaimer interval 5m, got %v", cfg.Reclaimer.Interval)
	}
	if cfg.Reclaimer.BatchSize != 250 {
		t.Errorf("Expected reclaimer batch size 250, got %d", cfg.Reclaimer.BatchSize)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

metadata:
  store: memory

blob:
  store: memory
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("DEDUPFS_LOGGING_LEVEL", "ERROR")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected env override ERROR, got %q", cfg.Logging.Level)
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "WARN"
	cfg.Metadata.Store = "memory"
	cfg.Blob.Store = "memory"
	cfg.Reclaimer.Interval = 10 * time.Minute

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Saved config missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected config file mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to reload saved config: %v", err)
	}
	if loaded.Logging.Level != "WARN" {
		t.Errorf("Expected level WARN after round trip, got %q", loaded.Logging.Level)
	}
	if loaded.Metadata.Store != "memory" {
		t.Errorf("Expected metadata store 'memory' after round trip, got %q", loaded.Metadata.Store)
	}
	if loaded.Reclaimer.Interval != 10*time.Minute {
		t.Errorf("Expected reclaimer interval 10m after round trip, got %v", loaded.Reclaimer.Interval)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("metadata: [unterminated"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for malformed YAML")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
metadata:
  store: cassandra

blob:
  store: memory
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected validation error for unknown metadata store")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}
