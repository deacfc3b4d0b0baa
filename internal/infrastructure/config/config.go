package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/kelseyhightower/envconfig"
)

// Config is everything apidiag reads from the environment. CLI flags are
// applied on top by the command layer.
type Config struct {
	Project   ProjectConfig
	Store     StoreConfig
	Backup    BackupConfig
	Index     IndexConfig
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

type ProjectConfig struct {
	// StateDir is relative to the project root unless absolute
	StateDir string `envconfig:"APIDIAG_STATE_DIR"`
}

// StoreConfig shapes the request log file
type StoreConfig struct {
	LogFile          string `envconfig:"APIDIAG_LOG_FILE"`
	SyncEachAppend   bool   `envconfig:"APIDIAG_SYNC_APPENDS"`
	MaxLineBytes     int    `envconfig:"APIDIAG_MAX_LINE_BYTES"`
	BodyExcerptLimit int    `envconfig:"APIDIAG_BODY_EXCERPT_LIMIT"`
}

type BackupConfig struct {
	// HistoryLimit is how many archived snapshots are kept per file
	HistoryLimit int `envconfig:"APIDIAG_SNAPSHOT_HISTORY"`
}

type IndexConfig struct {
	Checkpoint bool `envconfig:"APIDIAG_INDEX_CHECKPOINT"`
}

// ServerConfig is the local query server
type ServerConfig struct {
	Host           string   `envconfig:"APIDIAG_HOST"`
	Port           string   `envconfig:"APIDIAG_PORT"`
	AllowedOrigins []string `envconfig:"APIDIAG_CORS_ORIGINS"`
}

// Addr is host:port, bracketing IPv6 hosts
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL"`
	Development bool   `envconfig:"LOG_DEV"`
}

// RateLimitConfig is the per-client limit on the query server
type RateLimitConfig struct {
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST"`
}

// Default is the configuration with no environment overrides
func Default() *Config {
	return &Config{
		Project: ProjectConfig{StateDir: ".api-diagnostics"},
		Store: StoreConfig{
			LogFile:          "logs/api-diagnostics.log",
			SyncEachAppend:   true,
			MaxLineBytes:     64 << 10,
			BodyExcerptLimit: 500,
		},
		Backup: BackupConfig{HistoryLimit: 5},
		Index:  IndexConfig{Checkpoint: true},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           "8765",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Logging:   LogConfig{Level: "warn"},
		RateLimit: RateLimitConfig{Enabled: true, RequestsPerSecond: 50, Burst: 100},
	}
}

// Load starts from Default and overrides whatever the environment sets.
// Unset variables leave the default in place.
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the ranges the struct tags cannot express
func (c *Config) Validate() error {
	var errs []error
	if c.Project.StateDir == "" {
		errs = append(errs, errors.New("APIDIAG_STATE_DIR is empty"))
	}
	if c.Store.MaxLineBytes < 256 {
		errs = append(errs, fmt.Errorf("APIDIAG_MAX_LINE_BYTES is %d, minimum 256", c.Store.MaxLineBytes))
	}
	if c.Store.BodyExcerptLimit < 0 || c.Store.BodyExcerptLimit >= c.Store.MaxLineBytes {
		errs = append(errs, fmt.Errorf("APIDIAG_BODY_EXCERPT_LIMIT is %d, want 0 to %d",
			c.Store.BodyExcerptLimit, c.Store.MaxLineBytes-1))
	}
	if c.Backup.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("APIDIAG_SNAPSHOT_HISTORY is %d, must not be negative", c.Backup.HistoryLimit))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
