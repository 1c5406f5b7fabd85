// Package config provides YAML configuration loading and validation for the
// cephgeorep crawl daemon.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for the crawl daemon. See
// spec.md §6.
type Config struct {
	// BasePath is the root of the watched tree. Required.
	BasePath string `yaml:"base_path"`

	// LastRctimePath is where the durable watermark is persisted when
	// WatermarkBackend is "flatfile", or the database file when it is
	// "sqlite". Required.
	LastRctimePath string `yaml:"last_rctime_path"`

	// WatermarkBackend selects the Store implementation: "sqlite" (default)
	// or "flatfile".
	WatermarkBackend string `yaml:"watermark_backend"`

	// RctimeAttrName is the extended attribute name read for the recursive
	// change-time value. Defaults to "ceph.dir.rctime".
	RctimeAttrName string `yaml:"rctime_attr_name"`

	// PropDelayMs is how long to wait after taking a snapshot for rctime to
	// propagate to the snapshot root before walking it.
	PropDelayMs int `yaml:"prop_delay_ms"`

	// SyncPeriodS is the target interval between the start of one poll cycle
	// and the next, in seconds.
	SyncPeriodS int `yaml:"sync_period_s"`

	// Threads is the BFS worker count. 1 selects the single-threaded DFS
	// walker.
	Threads int `yaml:"threads"`

	// IgnoreHidden skips entries whose name begins with ".".
	IgnoreHidden bool `yaml:"ignore_hidden"`

	// IgnoreWinLock skips entries whose name begins with "~$".
	IgnoreWinLock bool `yaml:"ignore_win_lock"`

	// IgnoreVimSwap skips ".*.swp"/".*.swpx" entries.
	IgnoreVimSwap bool `yaml:"ignore_vim_swap"`

	// ExecBin is the transfer executable the Syncer invokes.
	ExecBin string `yaml:"exec_bin"`

	// ExecFlags is a space-separated flag string passed to ExecBin.
	ExecFlags string `yaml:"exec_flags"`

	// RemoteUser, RemoteHost, and RemoteDirectory describe the replication
	// destination.
	RemoteUser      string `yaml:"remote_user"`
	RemoteHost      string `yaml:"remote_host"`
	RemoteDirectory string `yaml:"remote_directory"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// StatusAddr is the listen address for the introspection HTTP server
	// (/healthz, /status). Defaults to "127.0.0.1:9000" when omitted.
	StatusAddr string `yaml:"status_addr"`
}

// SyncPeriod returns SyncPeriodS as a time.Duration.
func (c *Config) SyncPeriod() time.Duration {
	return time.Duration(c.SyncPeriodS) * time.Second
}

// PropDelay returns PropDelayMs as a time.Duration.
func (c *Config) PropDelay() time.Duration {
	return time.Duration(c.PropDelayMs) * time.Millisecond
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validWatermarkBackends is the set of accepted watermark_backend values.
var validWatermarkBackends = map[string]bool{
	"sqlite":   true,
	"flatfile": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields. It returns a typed error
// describing every validation failure encountered.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StatusAddr == "" {
		cfg.StatusAddr = "127.0.0.1:9000"
	}
	if cfg.WatermarkBackend == "" {
		cfg.WatermarkBackend = "sqlite"
	}
	if cfg.RctimeAttrName == "" {
		cfg.RctimeAttrName = "ceph.dir.rctime"
	}
	if cfg.Threads == 0 {
		cfg.Threads = 1
	}
}

// validate checks that all required fields are populated and that enumerated
// fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if cfg.BasePath == "" {
		errs = append(errs, errors.New("base_path is required"))
	}
	if cfg.LastRctimePath == "" {
		errs = append(errs, errors.New("last_rctime_path is required"))
	}
	if !validWatermarkBackends[cfg.WatermarkBackend] {
		errs = append(errs, fmt.Errorf("watermark_backend %q must be one of: sqlite, flatfile", cfg.WatermarkBackend))
	}
	if cfg.SyncPeriodS <= 0 {
		errs = append(errs, errors.New("sync_period_s must be positive"))
	}
	if cfg.Threads <= 0 {
		errs = append(errs, errors.New("threads must be positive (1 selects the single-threaded walker)"))
	}
	if cfg.ExecBin == "" {
		errs = append(errs, errors.New("exec_bin is required"))
	}
	if cfg.RemoteHost == "" {
		errs = append(errs, errors.New("remote_host is required"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}

	return errors.Join(errs...)
}
