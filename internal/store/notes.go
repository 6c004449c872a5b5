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

const noteColumns = "id, project_id, note, status, applies_to_episode_id, acknowledged_by_episode_id, rollover_count, created_at, updated_at"

// AddNote records subscriber feedback against a project. The note is
// trimmed and bounded by maxLength when maxLength is positive.
func (s *Store) AddNote(ctx context.Context, projectID, note string, appliesTo *int64, maxLength int) (*PlanningNote, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, errors.New("note text is required")
	}
	if maxLength > 0 && len(note) > maxLength {
		return nil, services.Wrap(services.ErrConfiguration, "store", "add note", fmt.Sprintf("note exceeds %d characters", maxLength), nil)
	}
	now := formatTime(time.Now().UTC())

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO planning_notes (project_id, note, status, applies_to_episode_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		projectID,
		note,
		NotePending,
		nullableInt64(appliesTo),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("add note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.getNote(ctx, id)
}

// PendingNotes returns a project's unacknowledged notes, oldest first, so
// the generation context presents feedback in arrival order.
func (s *Store) PendingNotes(ctx context.Context, projectID string) ([]*PlanningNote, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+noteColumns+` FROM planning_notes WHERE project_id = ? AND status = ? ORDER BY id`,
		projectID,
		NotePending,
	)
	if err != nil {
		return nil, fmt.Errorf("pending notes: %w", err)
	}
	defer rows.Close()
	return collectNotes(rows)
}

// AcknowledgeNotes marks a project's pending notes as consumed by a
// published episode. Returns how many were acknowledged.
func (s *Store) AcknowledgeNotes(ctx context.Context, projectID string, episodeID int64) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE planning_notes
         SET status = ?, acknowledged_by_episode_id = ?, updated_at = ?
         WHERE project_id = ? AND status = ?`,
		NoteAcknowledged,
		episodeID,
		formatTime(time.Now().UTC()),
		projectID,
		NotePending,
	)
	if err != nil {
		return 0, fmt.Errorf("acknowledge notes: %w", err)
	}
	return res.RowsAffected()
}

// RolloverNotes carries a project's pending notes forward past a failed or
// cancelled slot, archiving any note that has exceeded maxRollovers.
// maxRollovers of zero rolls notes forward indefinitely.
func (s *Store) RolloverNotes(ctx context.Context, projectID string, maxRollovers int) (rolled, archived int64, err error) {
	now := formatTime(time.Now().UTC())

	if maxRollovers > 0 {
		res, archiveErr := s.execWithRetry(
			ctx,
			`UPDATE planning_notes SET status = ?, updated_at = ?
             WHERE project_id = ? AND status = ? AND rollover_count + 1 > ?`,
			NoteArchived,
			now,
			projectID,
			NotePending,
			maxRollovers,
		)
		if archiveErr != nil {
			return 0, 0, fmt.Errorf("archive stale notes: %w", archiveErr)
		}
		if archived, err = res.RowsAffected(); err != nil {
			return 0, 0, fmt.Errorf("rows affected: %w", err)
		}
	}

	res, rollErr := s.execWithRetry(
		ctx,
		`UPDATE planning_notes SET rollover_count = rollover_count + 1, updated_at = ?
         WHERE project_id = ? AND status = ?`,
		now,
		projectID,
		NotePending,
	)
	if rollErr != nil {
		return 0, archived, fmt.Errorf("rollover notes: %w", rollErr)
	}
	if rolled, err = res.RowsAffected(); err != nil {
		return 0, archived, fmt.Errorf("rows affected: %w", err)
	}
	return rolled, archived, nil
}

// NotesByProject returns all of a project's notes, newest first.
func (s *Store) NotesByProject(ctx context.Context, projectID string, limit int) ([]*PlanningNote, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+noteColumns+` FROM planning_notes WHERE project_id = ? ORDER BY id DESC LIMIT ?`,
		projectID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("notes by project: %w", err)
	}
	defer rows.Close()
	return collectNotes(rows)
}

func (s *Store) getNote(ctx context.Context, id int64) (*PlanningNote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM planning_notes WHERE id = ?`, id)
	note, err := scanNote(row)
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return note, nil
}

func collectNotes(rows *sql.Rows) ([]*PlanningNote, error) {
	var notes []*PlanningNote
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

func scanNote(scanner interface{ Scan(dest ...any) error }) (*PlanningNote, error) {
	var (
		note         PlanningNote
		statusStr    string
		appliesTo    sql.NullInt64
		acknowledged sql.NullInt64
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&note.ID,
		&note.ProjectID,
		&note.Note,
		&statusStr,
		&appliesTo,
		&acknowledged,
		&note.RolloverCount,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	note.Status = NoteStatus(statusStr)
	if appliesTo.Valid {
		value := appliesTo.Int64
		note.AppliesToEpisodeID = &value
	}
	if acknowledged.Valid {
		value := acknowledged.Int64
		note.AcknowledgedByEpisodeID = &value
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		note.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		note.UpdatedAt = updated
	}
	return &note, nil
}
