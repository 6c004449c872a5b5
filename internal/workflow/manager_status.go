package workflow

import (
	"context"
	"time"

	"cadence/internal/logging"
	"cadence/internal/store"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running   bool
	LastError string
	LastTick  time.Time
	Queue     store.HealthSummary
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastTick := m.lastTick
	m.mu.RUnlock()

	summary := StatusSummary{Running: running, LastTick: lastTick}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}

	health, err := m.store.Health(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue health", logging.Error(err))
	} else if health != nil {
		summary.Queue = *health
	}
	return summary
}
