package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// Loading Tests
// =============================================================================

// TestLoad_OverridesDefaults verifies file values override defaults and
// unset sections keep them.
func TestLoad_OverridesDefaults(t *testing.T) {
	yaml := `
server:
  port: 9090
misp:
  enabled: true
  base_url: "https://misp.internal"
  poll_attempts: 5
ingest:
  max_records: 250
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load should succeed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.MISP.Enabled || cfg.MISP.BaseURL != "https://misp.internal" {
		t.Errorf("misp section did not load: %+v", cfg.MISP)
	}
	if cfg.MISP.PollAttempts != 5 {
		t.Errorf("expected 5 poll attempts, got %d", cfg.MISP.PollAttempts)
	}
	if cfg.Ingest.MaxRecords != 250 {
		t.Errorf("expected max_records 250, got %d", cfg.Ingest.MaxRecords)
	}

	// Untouched sections keep their defaults.
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected default read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.MISP.PollInterval != 10*time.Second {
		t.Errorf("expected default poll interval, got %v", cfg.MISP.PollInterval)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level, got %q", cfg.Logging.Level)
	}
}

// TestLoad_MissingFile verifies a helpful error for a bad path.
func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load should fail for a missing file")
	}
}

// TestLoad_MalformedYAML verifies parse failures surface.
func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not: valid"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load should fail for malformed YAML")
	}
}

// TestDefaultConfig_InputCaps verifies the documented batch limits.
func TestDefaultConfig_InputCaps(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Ingest.MaxFileBytes != 100*1024*1024 {
		t.Errorf("expected 100 MB default, got %d", cfg.Ingest.MaxFileBytes)
	}
	if cfg.Ingest.MaxRecords != 1000 {
		t.Errorf("expected 1000 record default, got %d", cfg.Ingest.MaxRecords)
	}
}
