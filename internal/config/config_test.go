package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cadence/internal/config"
)

func TestDefaultValidatesAfterRequiredFields(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.InvokeURL = "http://worker.local/generate"
	cfg.Worker.CallbackBaseURL = "http://127.0.0.1:7810"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRequiresWorkerURL(t *testing.T) {
	cfg := config.Default()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error when worker.invoke_url missing")
	}
	if !strings.Contains(err.Error(), "worker.invoke_url") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnorderedCheckpoints(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.InvokeURL = "http://worker.local/generate"
	cfg.Worker.CallbackBaseURL = "http://127.0.0.1:7810"
	cfg.Scheduling.RetryCheckpointsMinutes = []int{30, 75}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for increasing checkpoint offsets")
	}
}

func TestValidateRejectsShortLease(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.InvokeURL = "http://worker.local/generate"
	cfg.Worker.CallbackBaseURL = "http://127.0.0.1:7810"
	cfg.Dispatch.LeaseTTLSeconds = 5
	cfg.Worker.RequestTimeoutSeconds = 30
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when lease TTL is below worker timeout")
	}
}

func TestLoadAppliesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[scheduling]
lead_time_minutes = 90

[worker]
invoke_url = "http://worker.local/generate"
callback_base_url = "http://127.0.0.1:7810/"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to be used, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Scheduling.LeadTimeMinutes != 90 {
		t.Fatalf("expected lead time override, got %d", cfg.Scheduling.LeadTimeMinutes)
	}
	if cfg.Scheduling.TickIntervalMinutes != 5 {
		t.Fatalf("expected default tick interval, got %d", cfg.Scheduling.TickIntervalMinutes)
	}
	if strings.HasSuffix(cfg.Worker.CallbackBaseURL, "/") {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Worker.CallbackBaseURL)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(dir, "data")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, p := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s", p)
		}
	}
}
