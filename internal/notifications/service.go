package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cadence/internal/config"
)

const userAgent = "Cadence-Go/0.1.0"

// Service defines the notification surface exposed to the scheduling core.
type Service interface {
	NotifyEpisodePublished(ctx context.Context, projectName string, episodeID int64) error
	NotifyEpisodeDelivered(ctx context.Context, projectName string, episodeID int64, late bool) error
	NotifyEpisodeFailed(ctx context.Context, projectName string, episodeID int64, reason string) error
	NotifyCostLimitReached(ctx context.Context, organizationID string, spent, limit float64) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		published: cfg.Notifications.Published,
		failures:  cfg.Notifications.Failures,
		costLimit: cfg.Notifications.CostLimit,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	published bool
	failures  bool
	costLimit bool
}

func (n *ntfyService) NotifyEpisodePublished(ctx context.Context, projectName string, episodeID int64) error {
	if !n.published {
		return nil
	}
	projectName = strings.TrimSpace(projectName)
	data := payload{
		title:   "Cadence - Episode Published",
		message: fmt.Sprintf("Episode %d published for %s", episodeID, projectName),
		tags:    []string{"cadence", "episode", "published"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEpisodeDelivered(ctx context.Context, projectName string, episodeID int64, late bool) error {
	if !n.published {
		return nil
	}
	projectName = strings.TrimSpace(projectName)
	if late {
		data := payload{
			title:    "Cadence - Late Delivery",
			message:  fmt.Sprintf("Episode %d for %s delivered after its scheduled slot", episodeID, projectName),
			tags:     []string{"cadence", "episode", "late"},
			priority: "high",
		}
		return n.send(ctx, data)
	}
	data := payload{
		title:   "Cadence - Episode Delivered",
		message: fmt.Sprintf("Episode %d delivered for %s", episodeID, projectName),
		tags:    []string{"cadence", "episode", "delivered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyEpisodeFailed(ctx context.Context, projectName string, episodeID int64, reason string) error {
	if !n.failures {
		return nil
	}
	projectName = strings.TrimSpace(projectName)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Cadence - Episode Failed",
		message:  fmt.Sprintf("Episode %d for %s failed: %s", episodeID, projectName, reason),
		tags:     []string{"cadence", "episode", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCostLimitReached(ctx context.Context, organizationID string, spent, limit float64) error {
	if !n.costLimit {
		return nil
	}
	data := payload{
		title:    "Cadence - Cost Limit Reached",
		message:  fmt.Sprintf("Organization %s spent %.2f of %.2f USD today; generations are blocked until tomorrow", organizationID, spent, limit),
		tags:     []string{"cadence", "cost", "blocked"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Cadence - Test",
		message:  "Notification system test",
		tags:     []string{"cadence", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyEpisodePublished(context.Context, string, int64) error { return nil }
func (noopService) NotifyEpisodeDelivered(context.Context, string, int64, bool) error {
	return nil
}
func (noopService) NotifyEpisodeFailed(context.Context, string, int64, string) error { return nil }
func (noopService) NotifyCostLimitReached(context.Context, string, float64, float64) error {
	return nil
}
func (noopService) TestNotification(context.Context) error { return nil }
