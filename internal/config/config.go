// Package config provides configuration management for floodgate.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all floodgate configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	MISP      MISPConfig      `yaml:"misp"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Watch     WatchConfig     `yaml:"watch"`
	Ingest    IngestConfig    `yaml:"ingest"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MISPConfig holds sharing-platform settings. The API key itself lives
// in the environment variable named by APIKeyEnv; the file only carries
// the variable name.
type MISPConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	VerifySSL    bool          `yaml:"verify_ssl"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollAttempts int           `yaml:"poll_attempts"`
}

// RedisConfig holds Redis connection settings. Redis is optional: with
// no addr the server falls back to file-based snapshot storage.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	PasswordEnv string        `yaml:"password_env"`
	DB          int           `yaml:"db"`
	SnapshotKey string        `yaml:"snapshot_key"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

// NATSConfig holds messaging settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// WatchConfig holds drop-directory settings.
type WatchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// IngestConfig holds batch input caps.
type IngestConfig struct {
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	MaxRecords   int   `yaml:"max_records"`
}

// RateLimitConfig holds upload rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		MISP: MISPConfig{
			Enabled:      false,
			APIKeyEnv:    "MISP_API_KEY",
			VerifySSL:    true,
			Timeout:      30 * time.Second,
			PollInterval: 10 * time.Second,
			PollAttempts: 60,
		},
		Redis: RedisConfig{
			DB:          0,
			SnapshotKey: "floodgate:snapshot",
			SnapshotTTL: 0,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://localhost:4222",
			Subject: "floodgate.events.compiled",
		},
		Watch: WatchConfig{
			Enabled: false,
			Dir:     "data/incoming",
		},
		Ingest: IngestConfig{
			MaxFileBytes: 100 * 1024 * 1024,
			MaxRecords:   1000,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
