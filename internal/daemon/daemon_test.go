package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"cadence/internal/config"
	"cadence/internal/costguard"
	"cadence/internal/daemon"
	"cadence/internal/dispatch"
	"cadence/internal/lifecycle"
	"cadence/internal/logging"
	"cadence/internal/retryplan"
	"cadence/internal/store"
	"cadence/internal/testsupport"
	"cadence/internal/worker"
	"cadence/internal/workflow"
)

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *store.Store) {
	t.Helper()
	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	planner := retryplan.New(cfg)
	ctrl := lifecycle.New(cfg, st, planner, nil, nil)
	guard := costguard.New(cfg, st, nil)
	client := worker.NewClient(cfg)
	dispatcher := dispatch.New(cfg, st, guard, client, ctrl, nil, nil)
	mgr := workflow.NewManager(cfg, st, dispatcher, nil)

	d, err := daemon.New(cfg, st, logging.NewNop(), mgr, ctrl)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d, st
}

func TestDaemonRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail while running")
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected running status")
	}
	if !status.Workflow.Running {
		t.Fatal("expected workflow to be running")
	}
	if status.APIAddress == "" {
		t.Fatal("expected bound api address")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected stopped status")
	}
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)
	second, _ := newDaemon(t, cfg)
	ctx := context.Background()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer first.Stop()

	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected lock conflict for second instance")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	second.Stop()
}

func TestDaemonServesStatusEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, st := newDaemon(t, cfg)
	ctx := context.Background()

	testsupport.SeedProject(t, st, "proj-daemon")

	if err := d.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	url := fmt.Sprintf("http://%s/status", d.Status(ctx).APIAddress)
	httpClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := httpClient.Get(url)
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if payload.Status != "healthy" {
		t.Fatal("expected healthy status")
	}
}

func TestDaemonTestNotificationWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	sent, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("test notification: %v", err)
	}
	if sent {
		t.Fatal("expected no notification without a configured topic")
	}
	if detail == "" {
		t.Fatal("expected explanatory detail")
	}
}
