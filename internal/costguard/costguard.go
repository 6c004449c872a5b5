// Package costguard enforces the per-organization daily spend limit. The
// check is advisory: it reads the day's ledger once before dispatch, so
// concurrent generations can overshoot the limit by at most the in-flight
// batch. Cost records are written by the completion callback, never here.
package costguard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cadence/internal/config"
	"cadence/internal/logging"
	"cadence/internal/services"
	"cadence/internal/store"
)

// Ledger is the read side the guard needs from the store.
type Ledger interface {
	DailyLedger(ctx context.Context, organizationID string, at time.Time) (*store.LedgerSummary, error)
}

// Guard decides whether an organization may start another generation today.
type Guard struct {
	ledger Ledger
	limit  float64
	logger *slog.Logger
}

// New builds a guard from configuration. A zero or negative daily limit
// disables the guard entirely.
func New(cfg *config.Config, ledger Ledger, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{
		ledger: ledger,
		limit:  cfg.CostGuard.DailyLimitUSD,
		logger: logging.NewComponentLogger(logger, "costguard"),
	}
}

// Enabled reports whether a daily limit is configured.
func (g *Guard) Enabled() bool {
	return g.limit > 0
}

// Limit returns the configured daily limit in USD; zero means unlimited.
func (g *Guard) Limit() float64 {
	return g.limit
}

// Allow checks the organization's spend for the UTC day containing now.
// It returns ErrCostLimit once accumulated spend has reached the limit.
func (g *Guard) Allow(ctx context.Context, organizationID string, now time.Time) error {
	if !g.Enabled() {
		return nil
	}
	summary, err := g.ledger.DailyLedger(ctx, organizationID, now)
	if err != nil {
		return services.Wrap(services.ErrScheduling, "costguard", "allow", "read daily ledger", err)
	}
	if summary.TotalCost >= g.limit {
		g.logger.Warn("daily cost limit reached",
			logging.String(logging.FieldOrganizationID, organizationID),
			logging.Float64("spent_usd", summary.TotalCost),
			logging.Float64("limit_usd", g.limit),
		)
		return services.Wrap(
			services.ErrCostLimit,
			"costguard", "allow",
			fmt.Sprintf("organization %s spent %.2f of %.2f USD today", organizationID, summary.TotalCost, g.limit),
			nil,
		)
	}
	return nil
}

// Remaining reports the headroom left today, for status surfaces. A disabled
// guard reports no limit.
func (g *Guard) Remaining(ctx context.Context, organizationID string, now time.Time) (remaining float64, limited bool, err error) {
	if !g.Enabled() {
		return 0, false, nil
	}
	summary, err := g.ledger.DailyLedger(ctx, organizationID, now)
	if err != nil {
		return 0, true, services.Wrap(services.ErrScheduling, "costguard", "remaining", "read daily ledger", err)
	}
	remaining = g.limit - summary.TotalCost
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true, nil
}
