package testsupport

import (
	"path/filepath"
	"testing"

	"cadence/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Worker.InvokeURL = "http://127.0.0.1:0/generate"
	cfg.Worker.CallbackBaseURL = "http://127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithWorkerURL overrides the worker invoke endpoint on the test config.
func WithWorkerURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Worker.InvokeURL = url
	}
}

// WithDailyLimit sets the cost guard's daily limit on the test config.
func WithDailyLimit(limit float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.CostGuard.DailyLimitUSD = limit
	}
}

// WithMaxPerTick caps how many entries one dispatch pass may claim.
func WithMaxPerTick(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Dispatch.MaxPerTick = n
	}
}

// WithRetryCheckpoints overrides the retry checkpoint offsets, in minutes
// before delivery.
func WithRetryCheckpoints(minutes ...int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Scheduling.RetryCheckpointsMinutes = minutes
	}
}
