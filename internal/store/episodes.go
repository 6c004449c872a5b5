package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cadence/internal/services"
)

const episodeColumns = "id, project_id, idempotency_key, status, scheduled_for, generation_started_at, published_at, delivered_at, delivered_late, generation_attempts, content, sources_json, failure_reason, progress_stage, progress_percent, progress_message, created_at, updated_at"

// EnsureDraftEpisode returns the episode for a delivery slot, creating a
// draft when none exists. Safe to call concurrently and repeatedly: the
// unique (project_id, idempotency_key) constraint guarantees at most one
// episode per slot.
func (s *Store) EnsureDraftEpisode(ctx context.Context, projectID string, deliveryAt time.Time) (*Episode, bool, error) {
	if projectID == "" {
		return nil, false, errors.New("project id is required")
	}
	key := IdempotencyKey(deliveryAt)
	now := formatTime(time.Now().UTC())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO episodes (project_id, idempotency_key, status, scheduled_for, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(project_id, idempotency_key) DO NOTHING`,
		projectID,
		key,
		EpisodeDraft,
		formatTime(deliveryAt),
		now,
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert draft episode: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	episode, err := s.EpisodeByKey(ctx, projectID, key)
	if err != nil {
		return nil, false, err
	}
	if episode == nil {
		return nil, false, fmt.Errorf("episode for slot %s vanished after insert", key)
	}
	return episode, inserted > 0, nil
}

// GetEpisode fetches an episode by identifier, or nil when absent.
func (s *Store) GetEpisode(ctx context.Context, id int64) (*Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return episode, nil
}

// EpisodeByKey fetches the episode for a project's delivery slot.
func (s *Store) EpisodeByKey(ctx context.Context, projectID, idempotencyKey string) (*Episode, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE project_id = ? AND idempotency_key = ?`,
		projectID,
		idempotencyKey,
	)
	episode, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("episode by key: %w", err)
	}
	return episode, nil
}

// EpisodesByProject returns a project's episodes, newest slot first.
func (s *Store) EpisodesByProject(ctx context.Context, projectID string, limit int) ([]*Episode, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE project_id = ? ORDER BY scheduled_for DESC LIMIT ?`,
		projectID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("episodes by project: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

// Transition applies a guarded status change: it fails with an invalid
// transition error when the episode's current status does not match from.
func (s *Store) Transition(ctx context.Context, id int64, from, to EpisodeStatus) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		formatTime(time.Now().UTC()),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("transition episode: %w", err)
	}
	return s.requireTransition(ctx, res, id, from, to)
}

// MarkGenerating transitions a draft episode into generation, recording the
// start instant and counting the attempt.
func (s *Store) MarkGenerating(ctx context.Context, id int64, now time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, generation_started_at = ?, generation_attempts = generation_attempts + 1,
             failure_reason = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		EpisodeGenerating,
		formatTime(now),
		formatTime(now),
		id,
		EpisodeDraft,
	)
	if err != nil {
		return fmt.Errorf("mark generating: %w", err)
	}
	return s.requireTransition(ctx, res, id, EpisodeDraft, EpisodeGenerating)
}

// MarkPublished finalizes a generating episode with its content.
func (s *Store) MarkPublished(ctx context.Context, id int64, content, sourcesJSON string, now time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, content = ?, sources_json = ?, published_at = ?,
             progress_stage = 'published', progress_percent = 100, progress_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		EpisodePublished,
		nullableString(content),
		nullableString(sourcesJSON),
		formatTime(now),
		formatTime(now),
		id,
		EpisodeGenerating,
	)
	if err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return s.requireTransition(ctx, res, id, EpisodeGenerating, EpisodePublished)
}

// MarkFailed finalizes an episode with a failure reason. The from status is
// caller-supplied: cost guard rejections fail drafts, exhausted retries fail
// generating episodes.
func (s *Store) MarkFailed(ctx context.Context, id int64, from EpisodeStatus, reason string, now time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, failure_reason = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		EpisodeFailed,
		nullableString(reason),
		nullableString(reason),
		formatTime(now),
		id,
		from,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return s.requireTransition(ctx, res, id, from, EpisodeFailed)
}

// RearmDraft moves a generating episode back to draft for a retry attempt.
// Only the retry planner calls this.
func (s *Store) RearmDraft(ctx context.Context, id int64, now time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET status = ?, progress_stage = NULL, progress_percent = 0, progress_message = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		EpisodeDraft,
		formatTime(now),
		id,
		EpisodeGenerating,
	)
	if err != nil {
		return fmt.Errorf("rearm draft: %w", err)
	}
	return s.requireTransition(ctx, res, id, EpisodeGenerating, EpisodeDraft)
}

// CancelDraftEpisodes cancels all draft episodes for a project. Generating
// episodes are never touched; their outcome is resolved by callbacks.
func (s *Store) CancelDraftEpisodes(ctx context.Context, projectID string) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET status = ?, updated_at = ? WHERE project_id = ? AND status = ?`,
		EpisodeCancelled,
		formatTime(time.Now().UTC()),
		projectID,
		EpisodeDraft,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel draft episodes: %w", err)
	}
	return res.RowsAffected()
}

// CancelOpenEpisodes cancels every draft and generating episode for a
// project. Late worker callbacks against the cancelled episodes become
// no-ops.
func (s *Store) CancelOpenEpisodes(ctx context.Context, projectID string) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET status = ?, updated_at = ? WHERE project_id = ? AND status IN (?, ?)`,
		EpisodeCancelled,
		formatTime(time.Now().UTC()),
		projectID,
		EpisodeDraft,
		EpisodeGenerating,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel open episodes: %w", err)
	}
	return res.RowsAffected()
}

// UpdateProgress records a non-authoritative progress report. Progress never
// changes status and is dropped once the episode is terminal.
func (s *Store) UpdateProgress(ctx context.Context, id int64, stage, message string, percent float64) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE episodes
         SET progress_stage = ?, progress_percent = ?, progress_message = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		nullableString(stage),
		percent,
		nullableString(message),
		formatTime(time.Now().UTC()),
		id,
		EpisodeGenerating,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// MarkDelivered records the delivery instant and whether it was late.
func (s *Store) MarkDelivered(ctx context.Context, id int64, now time.Time, late bool) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE episodes SET delivered_at = ?, delivered_late = ?, updated_at = ?
         WHERE id = ? AND status = ? AND delivered_at IS NULL`,
		formatTime(now),
		boolToInt(late),
		formatTime(now),
		id,
		EpisodePublished,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrInvalidTransition, "store", "mark delivered", fmt.Sprintf("episode %d is not an undelivered published episode", id), nil)
	}
	return nil
}

// UndeliveredDue returns published episodes whose delivery instant has
// arrived but which have not been delivered yet.
func (s *Store) UndeliveredDue(ctx context.Context, now time.Time) ([]*Episode, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes
         WHERE status = ? AND delivered_at IS NULL AND scheduled_for <= ?
         ORDER BY scheduled_for, id`,
		EpisodePublished,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("undelivered due: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

// AbandonedGenerating returns generating episodes whose delivery slot has
// passed and which have no live queue entry left, so no dispatch pass would
// ever touch them again.
func (s *Store) AbandonedGenerating(ctx context.Context, now time.Time) ([]*Episode, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes
         WHERE status = ? AND scheduled_for <= ?
           AND NOT EXISTS (
               SELECT 1 FROM queue_entries
               WHERE queue_entries.episode_id = episodes.id AND queue_entries.status IN (?, ?)
           )
         ORDER BY scheduled_for, id`,
		EpisodeGenerating,
		formatTime(now),
		EntryPending,
		EntryProcessing,
	)
	if err != nil {
		return nil, fmt.Errorf("abandoned generating: %w", err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		episode, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, episode)
	}
	return episodes, rows.Err()
}

// LastPublishedContent returns the most recently published content for a
// project, used as prior memory for the next generation.
func (s *Store) LastPublishedContent(ctx context.Context, projectID string) (string, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT content FROM episodes
         WHERE project_id = ? AND status = ? AND content IS NOT NULL
         ORDER BY published_at DESC LIMIT 1`,
		projectID,
		EpisodePublished,
	)
	var content sql.NullString
	if err := row.Scan(&content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("last published content: %w", err)
	}
	return content.String, nil
}

// AppendGenerationError records one failed attempt against an episode.
func (s *Store) AppendGenerationError(ctx context.Context, episodeID int64, attempt int, message string, occurredAt time.Time) error {
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO episode_errors (episode_id, attempt, message, occurred_at) VALUES (?, ?, ?, ?)`,
		episodeID,
		attempt,
		message,
		formatTime(occurredAt),
	)
	if err != nil {
		return fmt.Errorf("append generation error: %w", err)
	}
	return nil
}

// GenerationErrors returns an episode's recorded failures in order.
func (s *Store) GenerationErrors(ctx context.Context, episodeID int64) ([]GenerationError, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, episode_id, attempt, message, occurred_at FROM episode_errors WHERE episode_id = ? ORDER BY id`,
		episodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("generation errors: %w", err)
	}
	defer rows.Close()

	var errs []GenerationError
	for rows.Next() {
		var (
			ge          GenerationError
			occurredRaw string
		)
		if err := rows.Scan(&ge.ID, &ge.EpisodeID, &ge.Attempt, &ge.Message, &occurredRaw); err != nil {
			return nil, err
		}
		if occurred, err := parseTimeString(occurredRaw); err == nil {
			ge.OccurredAt = occurred
		}
		errs = append(errs, ge)
	}
	return errs, rows.Err()
}

func (s *Store) requireTransition(ctx context.Context, res sql.Result, id int64, from, to EpisodeStatus) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	actual := "missing"
	if episode, getErr := s.GetEpisode(ctx, id); getErr == nil && episode != nil {
		actual = string(episode.Status)
	}
	return services.Wrap(
		services.ErrInvalidTransition,
		"store", "transition",
		fmt.Sprintf("episode %d: %s -> %s refused, current status %s", id, from, to, actual),
		nil,
	)
}

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*Episode, error) {
	var (
		id              int64
		projectID       string
		idempotencyKey  string
		statusStr       string
		scheduledRaw    string
		startedRaw      sql.NullString
		publishedRaw    sql.NullString
		deliveredRaw    sql.NullString
		deliveredLate   int
		attempts        int
		content         sql.NullString
		sourcesJSON     sql.NullString
		failureReason   sql.NullString
		progressStage   sql.NullString
		progressPercent float64
		progressMessage sql.NullString
		createdRaw      string
		updatedRaw      string
	)

	if err := scanner.Scan(
		&id,
		&projectID,
		&idempotencyKey,
		&statusStr,
		&scheduledRaw,
		&startedRaw,
		&publishedRaw,
		&deliveredRaw,
		&deliveredLate,
		&attempts,
		&content,
		&sourcesJSON,
		&failureReason,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	episode := &Episode{
		ID:                  id,
		ProjectID:           projectID,
		IdempotencyKey:      idempotencyKey,
		Status:              EpisodeStatus(statusStr),
		GenerationStartedAt: parseNullableTime(startedRaw),
		PublishedAt:         parseNullableTime(publishedRaw),
		DeliveredAt:         parseNullableTime(deliveredRaw),
		DeliveredLate:       deliveredLate != 0,
		GenerationAttempts:  attempts,
		Content:             content.String,
		SourcesJSON:         sourcesJSON.String,
		FailureReason:       failureReason.String,
		ProgressStage:       progressStage.String,
		ProgressPercent:     progressPercent,
		ProgressMessage:     progressMessage.String,
	}
	if scheduled, err := parseTimeString(scheduledRaw); err == nil {
		episode.ScheduledFor = scheduled
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		episode.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		episode.UpdatedAt = updated
	}
	return episode, nil
}
