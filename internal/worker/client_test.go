package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cadence/internal/services"
	"cadence/internal/testsupport"
	"cadence/internal/worker"
)

func TestInvokeSendsRequest(t *testing.T) {
	var received worker.InvokeRequest
	var requestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		requestID = r.Header.Get("X-Request-ID")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithWorkerURL(server.URL))
	cfg.Worker.CallbackBaseURL = "http://127.0.0.1:7810"
	client := worker.NewClient(cfg)

	err := client.Invoke(context.Background(), worker.InvokeRequest{
		EpisodeID:          12,
		ProjectID:          "proj-a",
		OrganizationID:     "org-a",
		TargetDeliveryTime: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Context: worker.GenerationContext{
			Brief:                "weekly AI funding digest",
			PendingPlanningNotes: []string{"more europe coverage"},
		},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if received.EpisodeID != 12 || received.ProjectID != "proj-a" {
		t.Fatalf("unexpected payload: %#v", received)
	}
	if requestID == "" || received.RequestID != requestID {
		t.Fatalf("expected matching request id header and payload, got header=%q payload=%q", requestID, received.RequestID)
	}
	if received.Callbacks.CompleteURL != "http://127.0.0.1:7810/callbacks/12/complete" {
		t.Fatalf("unexpected complete callback %q", received.Callbacks.CompleteURL)
	}
	if received.Callbacks.ProgressURL != "http://127.0.0.1:7810/callbacks/12/progress" {
		t.Fatalf("unexpected progress callback %q", received.Callbacks.ProgressURL)
	}
}

func TestInvokeTruncatesPriorMemory(t *testing.T) {
	var received worker.InvokeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithWorkerURL(server.URL))
	cfg.Worker.PriorMemoryMaxChars = 16
	client := worker.NewClient(cfg)

	err := client.Invoke(context.Background(), worker.InvokeRequest{
		EpisodeID: 1,
		Context:   worker.GenerationContext{PriorMemory: strings.Repeat("x", 100)},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(received.Context.PriorMemory) != 16 {
		t.Fatalf("expected prior memory truncated to 16, got %d", len(received.Context.PriorMemory))
	}
}

func TestInvokeWorkerErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithWorkerURL(server.URL))
	client := worker.NewClient(cfg)

	err := client.Invoke(context.Background(), worker.InvokeRequest{EpisodeID: 1})
	if !errors.Is(err, services.ErrWorkerUnreachable) {
		t.Fatalf("expected worker unreachable, got %v", err)
	}
	if !services.Retryable(err) {
		t.Fatal("expected worker failure to be retryable")
	}
}

func TestInvokeWorkerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithWorkerURL(server.URL))
	client := worker.NewClient(cfg)

	err := client.Invoke(context.Background(), worker.InvokeRequest{EpisodeID: 1})
	if !errors.Is(err, services.ErrWorkerUnreachable) {
		t.Fatalf("expected worker unreachable, got %v", err)
	}
}
