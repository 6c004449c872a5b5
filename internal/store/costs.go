package store

import (
	"context"
	"fmt"
	"time"
)

// ledgerDay keys cost records by the UTC calendar day.
func ledgerDay(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

// AppendCost records one generation's reported cost against the
// organization's daily ledger. Records are append-only.
func (s *Store) AppendCost(ctx context.Context, organizationID string, episodeID *int64, cost float64, at time.Time) error {
	if cost < 0 {
		return fmt.Errorf("append cost: negative cost %.4f", cost)
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO cost_records (organization_id, episode_id, cost, day, recorded_at)
         VALUES (?, ?, ?, ?, ?)`,
		organizationID,
		nullableInt64(episodeID),
		cost,
		ledgerDay(at),
		formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("append cost: %w", err)
	}
	return nil
}

// DailyLedger aggregates an organization's spend for the day containing at.
func (s *Store) DailyLedger(ctx context.Context, organizationID string, at time.Time) (*LedgerSummary, error) {
	day := ledgerDay(at)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(cost), 0), COUNT(*) FROM cost_records WHERE organization_id = ? AND day = ?`,
		organizationID,
		day,
	)
	summary := &LedgerSummary{OrganizationID: organizationID, Day: day}
	if err := row.Scan(&summary.TotalCost, &summary.RecordCount); err != nil {
		return nil, fmt.Errorf("daily ledger: %w", err)
	}
	return summary, nil
}
