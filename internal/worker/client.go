// Package worker invokes the external generation worker. Invocation is
// fire-and-forget at the protocol level: a 2xx response only acknowledges
// that generation started, and the outcome arrives later through the
// callback endpoints named in the request.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"cadence/internal/config"
	"cadence/internal/services"
)

const userAgent = "Cadence-Go/0.1.0"

// GenerationContext carries everything the worker needs to produce an
// episode.
type GenerationContext struct {
	Brief                string   `json:"brief"`
	PriorMemory          string   `json:"prior_memory,omitempty"`
	PendingPlanningNotes []string `json:"pending_planning_notes,omitempty"`
}

// Callbacks names the endpoints the worker reports back to.
type Callbacks struct {
	ProgressURL string `json:"progress_url"`
	CompleteURL string `json:"complete_url"`
	ErrorURL    string `json:"error_url"`
}

// InvokeRequest is the payload sent to the worker's generation endpoint.
type InvokeRequest struct {
	RequestID          string            `json:"request_id"`
	EpisodeID          int64             `json:"episode_id"`
	ProjectID          string            `json:"project_id"`
	OrganizationID     string            `json:"organization_id"`
	TargetDeliveryTime time.Time         `json:"target_delivery_time"`
	Context            GenerationContext `json:"context"`
	Callbacks          Callbacks         `json:"callbacks"`
}

// Client starts generations on the external worker.
type Client interface {
	Invoke(ctx context.Context, req InvokeRequest) error
}

type httpClient struct {
	invokeURL   string
	callbackURL string
	maxPrior    int
	client      *http.Client
}

// NewClient builds the HTTP worker client from configuration.
func NewClient(cfg *config.Config) Client {
	timeout := time.Duration(cfg.Worker.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpClient{
		invokeURL:   cfg.Worker.InvokeURL,
		callbackURL: cfg.Worker.CallbackBaseURL,
		maxPrior:    cfg.Worker.PriorMemoryMaxChars,
		client:      &http.Client{Timeout: timeout},
	}
}

// CallbacksFor derives the callback endpoints for an episode.
func (c *httpClient) CallbacksFor(episodeID int64) Callbacks {
	base := strings.TrimRight(c.callbackURL, "/")
	return Callbacks{
		ProgressURL: fmt.Sprintf("%s/callbacks/%d/progress", base, episodeID),
		CompleteURL: fmt.Sprintf("%s/callbacks/%d/complete", base, episodeID),
		ErrorURL:    fmt.Sprintf("%s/callbacks/%d/error", base, episodeID),
	}
}

func (c *httpClient) Invoke(ctx context.Context, req InvokeRequest) error {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Callbacks == (Callbacks{}) {
		req.Callbacks = c.CallbacksFor(req.EpisodeID)
	}
	if c.maxPrior > 0 && len(req.Context.PriorMemory) > c.maxPrior {
		req.Context.PriorMemory = req.Context.PriorMemory[:c.maxPrior]
	}

	body, err := json.Marshal(req)
	if err != nil {
		return services.Wrap(services.ErrWorkerUnreachable, "worker", "invoke", "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.invokeURL, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrWorkerUnreachable, "worker", "invoke", "build request", err)
	}
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-ID", req.RequestID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return services.Wrap(services.ErrWorkerUnreachable, "worker", "invoke", "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(
			services.ErrWorkerUnreachable,
			"worker", "invoke",
			fmt.Sprintf("worker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
			nil,
		)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
