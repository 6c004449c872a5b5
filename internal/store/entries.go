package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cadence/internal/services"
)

const entryColumns = "id, episode_id, project_id, priority, generation_start_time, target_delivery_time, status, lease_holder, lease_expires_at, attempt_count, last_attempt_at, next_retry_at, created_at, updated_at"

// EnsureEntry creates a pending queue entry for an episode unless one is
// already live. The partial unique index on active entries makes concurrent
// calls collapse into a single entry.
func (s *Store) EnsureEntry(ctx context.Context, episode *Episode, priority int, generationStart time.Time) (*QueueEntry, bool, error) {
	if episode == nil {
		return nil, false, errors.New("episode is required")
	}
	now := formatTime(time.Now().UTC())

	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO queue_entries
         (episode_id, project_id, priority, generation_start_time, target_delivery_time, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		episode.ID,
		episode.ProjectID,
		priority,
		formatTime(generationStart),
		formatTime(episode.ScheduledFor),
		EntryPending,
		now,
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert queue entry: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	entry, err := s.ActiveEntryForEpisode(ctx, episode.ID)
	if err != nil {
		return nil, false, err
	}
	if entry == nil {
		return nil, false, fmt.Errorf("active entry for episode %d vanished after insert", episode.ID)
	}
	return entry, inserted > 0, nil
}

// GetEntry fetches a queue entry by identifier, or nil when absent.
func (s *Store) GetEntry(ctx context.Context, id int64) (*QueueEntry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return entry, nil
}

// ActiveEntryForEpisode returns the episode's live entry, or nil when the
// episode has none.
func (s *Store) ActiveEntryForEpisode(ctx context.Context, episodeID int64) (*QueueEntry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM queue_entries WHERE episode_id = ? AND status IN (?, ?)`,
		episodeID,
		EntryPending,
		EntryProcessing,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active entry for episode: %w", err)
	}
	return entry, nil
}

// NextEligible returns pending entries whose generation start has arrived and
// whose retry hold, if any, has elapsed. Ordering is priority, then earliest
// start, then episode for a stable tiebreak.
func (s *Store) NextEligible(ctx context.Context, now time.Time, limit int) ([]*QueueEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	instant := formatTime(now)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM queue_entries
         WHERE status = ?
           AND generation_start_time <= ?
           AND (next_retry_at IS NULL OR next_retry_at <= ?)
         ORDER BY priority DESC, generation_start_time ASC, episode_id ASC
         LIMIT ?`,
		EntryPending,
		instant,
		instant,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("next eligible: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// AcquireLease claims a pending entry for a holder, moving it to processing.
// The claim succeeds only when the entry is pending and unleased, or its
// existing lease has expired. Losing the race returns ErrLeaseConflict.
func (s *Store) AcquireLease(ctx context.Context, id int64, holder string, now time.Time, ttl time.Duration) (*QueueEntry, error) {
	if holder == "" {
		return nil, errors.New("lease holder is required")
	}
	instant := formatTime(now)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_entries
         SET status = ?, lease_holder = ?, lease_expires_at = ?,
             attempt_count = attempt_count + 1, last_attempt_at = ?, updated_at = ?
         WHERE id = ? AND status = ?
           AND (lease_holder IS NULL OR lease_expires_at IS NULL OR lease_expires_at <= ?)`,
		EntryProcessing,
		holder,
		formatTime(now.Add(ttl)),
		instant,
		instant,
		id,
		EntryPending,
		instant,
	)
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, services.Wrap(services.ErrLeaseConflict, "store", "acquire lease", fmt.Sprintf("entry %d is not claimable", id), nil)
	}
	return s.GetEntry(ctx, id)
}

// ExtendLease pushes a holder's lease deadline forward. It fails with a
// lease conflict when the holder no longer owns the entry.
func (s *Store) ExtendLease(ctx context.Context, id int64, holder string, now time.Time, ttl time.Duration) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_entries SET lease_expires_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_holder = ?`,
		formatTime(now.Add(ttl)),
		formatTime(now),
		id,
		EntryProcessing,
		holder,
	)
	if err != nil {
		return fmt.Errorf("extend lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrLeaseConflict, "store", "extend lease", fmt.Sprintf("entry %d is not held by %s", id, holder), nil)
	}
	return nil
}

// FinishEntry settles a processing entry into a terminal status and clears
// its lease. Only the lease holder may settle; anyone else gets a conflict.
func (s *Store) FinishEntry(ctx context.Context, id int64, holder string, status EntryStatus, now time.Time) error {
	if status.IsActive() {
		return fmt.Errorf("finish entry: %s is not a terminal status", status)
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_entries
         SET status = ?, lease_holder = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE id = ? AND status = ? AND lease_holder = ?`,
		status,
		formatTime(now),
		id,
		EntryProcessing,
		holder,
	)
	if err != nil {
		return fmt.Errorf("finish entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrLeaseConflict, "store", "finish entry", fmt.Sprintf("entry %d is not held by %s", id, holder), nil)
	}
	return nil
}

// RequeueEntry puts a processing entry back to pending for a later retry
// checkpoint, clearing the lease and recording the hold instant.
func (s *Store) RequeueEntry(ctx context.Context, id int64, holder string, nextRetryAt time.Time, now time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_entries
         SET status = ?, lease_holder = NULL, lease_expires_at = NULL, next_retry_at = ?, updated_at = ?
         WHERE id = ? AND status = ? AND lease_holder = ?`,
		EntryPending,
		formatTime(nextRetryAt),
		formatTime(now),
		id,
		EntryProcessing,
		holder,
	)
	if err != nil {
		return fmt.Errorf("requeue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrLeaseConflict, "store", "requeue entry", fmt.Sprintf("entry %d is not held by %s", id, holder), nil)
	}
	return nil
}

// SettleEntryForEpisode settles an episode's live entry into a terminal
// status regardless of lease holder. Callback handlers use this: the outcome
// arrived out of band, so the holder's claim no longer matters. Settling an
// episode with no live entry is a no-op.
func (s *Store) SettleEntryForEpisode(ctx context.Context, episodeID int64, status EntryStatus, now time.Time) error {
	if status.IsActive() {
		return fmt.Errorf("settle entry: %s is not a terminal status", status)
	}
	_, err := s.execWithRetry(
		ctx,
		`UPDATE queue_entries
         SET status = ?, lease_holder = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE episode_id = ? AND status IN (?, ?)`,
		status,
		formatTime(now),
		episodeID,
		EntryPending,
		EntryProcessing,
	)
	if err != nil {
		return fmt.Errorf("settle entry for episode: %w", err)
	}
	return nil
}

// RequeueEntryForEpisode puts an episode's live entry back to pending with a
// retry hold, regardless of lease holder.
func (s *Store) RequeueEntryForEpisode(ctx context.Context, episodeID int64, nextRetryAt, now time.Time) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE queue_entries
         SET status = ?, lease_holder = NULL, lease_expires_at = NULL, next_retry_at = ?, updated_at = ?
         WHERE episode_id = ? AND status IN (?, ?)`,
		EntryPending,
		formatTime(nextRetryAt),
		formatTime(now),
		episodeID,
		EntryPending,
		EntryProcessing,
	)
	if err != nil {
		return fmt.Errorf("requeue entry for episode: %w", err)
	}
	return nil
}

// ReclaimExpiredLeases returns processing entries with lapsed leases back to
// pending so another dispatcher pass can pick them up.
func (s *Store) ReclaimExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	instant := formatTime(now)
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_entries
         SET status = ?, lease_holder = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?`,
		EntryPending,
		instant,
		EntryProcessing,
		instant,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return res.RowsAffected()
}

// CancelEntriesForProject cancels all live entries for a project. Used when
// a project pauses or its cadence changes.
func (s *Store) CancelEntriesForProject(ctx context.Context, projectID string) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_entries
         SET status = ?, lease_holder = NULL, lease_expires_at = NULL, updated_at = ?
         WHERE project_id = ? AND status IN (?, ?)`,
		EntryCancelled,
		formatTime(time.Now().UTC()),
		projectID,
		EntryPending,
		EntryProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel entries for project: %w", err)
	}
	return res.RowsAffected()
}

// ListEntries returns entries filtered by status, newest first. An empty
// filter returns everything up to the limit.
func (s *Store) ListEntries(ctx context.Context, statuses []EntryStatus, limit int) ([]*QueueEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + entryColumns + ` FROM queue_entries`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ResetRetryHold clears an entry's retry hold so it becomes immediately
// eligible. Used by the manual retry command.
func (s *Store) ResetRetryHold(ctx context.Context, id int64) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_entries SET next_retry_at = NULL, updated_at = ? WHERE id = ? AND status = ?`,
		formatTime(time.Now().UTC()),
		id,
		EntryPending,
	)
	if err != nil {
		return fmt.Errorf("reset retry hold: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrInvalidTransition, "store", "reset retry hold", fmt.Sprintf("entry %d is not pending", id), nil)
	}
	return nil
}

// Health aggregates queue counts per lifecycle state.
func (s *Store) Health(ctx context.Context) (*HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM queue_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue health: %w", err)
	}
	defer rows.Close()

	summary := &HealthSummary{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		summary.Total += count
		switch EntryStatus(status) {
		case EntryPending:
			summary.Pending = count
		case EntryProcessing:
			summary.Processing = count
		case EntryCompleted:
			summary.Completed = count
		case EntryFailed:
			summary.Failed = count
		case EntryBlocked:
			summary.Blocked = count
		}
	}
	return summary, rows.Err()
}

// ClearSettled deletes terminal entries, optionally only those settled
// before the cutoff. Returns the number removed.
func (s *Store) ClearSettled(ctx context.Context, before *time.Time) (int64, error) {
	query := `DELETE FROM queue_entries WHERE status IN (?, ?, ?, ?)`
	args := []any{EntryCompleted, EntryFailed, EntryCancelled, EntryBlocked}
	if before != nil {
		query += ` AND updated_at < ?`
		args = append(args, formatTime(*before))
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear settled entries: %w", err)
	}
	return res.RowsAffected()
}

func collectEntries(rows *sql.Rows) ([]*QueueEntry, error) {
	var entries []*QueueEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*QueueEntry, error) {
	var (
		id            int64
		episodeID     sql.NullInt64
		projectID     string
		priority      int
		startRaw      string
		deliveryRaw   string
		statusStr     string
		leaseHolder   sql.NullString
		leaseExpires  sql.NullString
		attemptCount  int
		lastAttemptAt sql.NullString
		nextRetryAt   sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&episodeID,
		&projectID,
		&priority,
		&startRaw,
		&deliveryRaw,
		&statusStr,
		&leaseHolder,
		&leaseExpires,
		&attemptCount,
		&lastAttemptAt,
		&nextRetryAt,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	entry := &QueueEntry{
		ID:            id,
		EpisodeID:     episodeID.Int64,
		ProjectID:     projectID,
		Priority:      priority,
		Status:        EntryStatus(strings.ToLower(statusStr)),
		AttemptCount:  attemptCount,
		LastAttemptAt: parseNullableTime(lastAttemptAt),
		NextRetryAt:   parseNullableTime(nextRetryAt),
	}
	if start, err := parseTimeString(startRaw); err == nil {
		entry.GenerationStartTime = start
	}
	if delivery, err := parseTimeString(deliveryRaw); err == nil {
		entry.TargetDeliveryTime = delivery
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		entry.UpdatedAt = updated
	}
	if leaseHolder.Valid && leaseHolder.String != "" {
		lease := &Lease{Holder: leaseHolder.String}
		if expires := parseNullableTime(leaseExpires); expires != nil {
			lease.ExpiresAt = *expires
		}
		entry.Lease = lease
	}
	return entry, nil
}
