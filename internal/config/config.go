package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Scheduling contains configuration for delivery cadence evaluation.
type Scheduling struct {
	// LeadTimeMinutes is subtracted from an episode's delivery instant to
	// produce its generation start instant.
	LeadTimeMinutes int `toml:"lead_time_minutes"`
	// TickIntervalMinutes drives queue evaluation frequency.
	TickIntervalMinutes int `toml:"tick_interval_minutes"`
	// RetryCheckpointsMinutes are offsets before the delivery instant at
	// which failed generations are retried, largest first.
	RetryCheckpointsMinutes []int `toml:"retry_checkpoints_minutes"`
}

// Dispatch contains configuration for queue leasing and concurrency.
type Dispatch struct {
	LeaseTTLSeconds int `toml:"lease_ttl_seconds"`
	MaxPerTick      int `toml:"max_per_tick"`
}

// CostGuard contains the per-organization daily spend circuit breaker.
type CostGuard struct {
	// DailyLimitUSD of 0 disables the guard.
	DailyLimitUSD float64 `toml:"daily_limit_usd"`
}

// Worker contains configuration for the external generation worker.
type Worker struct {
	InvokeURL             string `toml:"invoke_url"`
	CallbackBaseURL       string `toml:"callback_base_url"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	PriorMemoryMaxChars   int    `toml:"prior_memory_max_chars"`
}

// PlanningNotes contains configuration for subscriber feedback notes.
type PlanningNotes struct {
	MaxNoteLength int `toml:"max_note_length"`
	// MaxRollovers archives a pending note after it has survived this many
	// failed slots. 0 carries notes forward indefinitely.
	MaxRollovers int `toml:"max_rollovers"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Published      bool   `toml:"published"`
	Failures       bool   `toml:"failures"`
	CostLimit      bool   `toml:"cost_limit"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Cadence.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Scheduling: lead time, tick interval, retry checkpoints
//   - Dispatch: queue entry lease TTL and per-tick dispatch cap
//   - CostGuard: per-organization daily spend limit
//   - Worker: external generation worker endpoints and timeouts
//   - PlanningNotes: feedback note length and rollover policy
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Scheduling    Scheduling    `toml:"scheduling"`
	Dispatch      Dispatch      `toml:"dispatch"`
	CostGuard     CostGuard     `toml:"cost_guard"`
	Worker        Worker        `toml:"worker"`
	PlanningNotes PlanningNotes `toml:"planning_notes"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cadence/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "cadence.db")
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", pathValue, err)
	}
	return abs, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Worker.InvokeURL = strings.TrimSpace(c.Worker.InvokeURL)
	c.Worker.CallbackBaseURL = strings.TrimRight(strings.TrimSpace(c.Worker.CallbackBaseURL), "/")
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}
