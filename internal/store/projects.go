package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cadence/internal/schedule"
	"cadence/internal/services"
)

const projectColumns = "id, organization_id, name, timezone, cadence_mode, cadence_days, delivery_hour, priority, brief, is_paused, next_scheduled_at, created_at, updated_at"

func (p *Project) validate() error {
	if p.ID == "" {
		return errors.New("project id is required")
	}
	if p.OrganizationID == "" {
		return errors.New("organization id is required")
	}
	return p.Cadence.Validate()
}

// UpsertProject inserts a project or updates its mutable fields.
func (s *Store) UpsertProject(ctx context.Context, project *Project) error {
	if project == nil {
		return errors.New("project is nil")
	}
	if err := project.validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO projects (
            id, organization_id, name, timezone, cadence_mode, cadence_days,
            delivery_hour, priority, brief, is_paused, next_scheduled_at,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            organization_id = excluded.organization_id,
            name = excluded.name,
            timezone = excluded.timezone,
            cadence_mode = excluded.cadence_mode,
            cadence_days = excluded.cadence_days,
            delivery_hour = excluded.delivery_hour,
            priority = excluded.priority,
            brief = excluded.brief,
            is_paused = excluded.is_paused,
            next_scheduled_at = excluded.next_scheduled_at,
            updated_at = excluded.updated_at`,
		project.ID,
		project.OrganizationID,
		nullableString(project.Name),
		project.Timezone,
		string(project.Cadence.Mode),
		schedule.FormatDays(project.Cadence.Days),
		project.Cadence.DeliveryHour,
		project.Priority,
		nullableString(project.Brief),
		boolToInt(project.IsPaused),
		nullableTime(project.NextScheduledAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// GetProject fetches a project by identifier, or nil when absent.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns all projects ordered by identifier.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// DueProjects returns unpaused projects whose next delivery falls on or
// before the cutoff, ordered by delivery instant.
func (s *Store) DueProjects(ctx context.Context, deliveryCutoff time.Time) ([]*Project, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+projectColumns+` FROM projects
         WHERE is_paused = 0 AND next_scheduled_at IS NOT NULL AND next_scheduled_at <= ?
         ORDER BY next_scheduled_at, id`,
		formatTime(deliveryCutoff),
	)
	if err != nil {
		return nil, fmt.Errorf("due projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

// SetNextScheduledAt updates the denormalized next delivery instant.
func (s *Store) SetNextScheduledAt(ctx context.Context, id string, next *time.Time) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET next_scheduled_at = ?, updated_at = ? WHERE id = ?`,
		nullableTime(next),
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set next scheduled: %w", err)
	}
	return requireRow(res, "project")
}

// SetPaused toggles the paused flag. Pausing clears the scheduled instant;
// resuming leaves it unset until the lifecycle controller recomputes it.
func (s *Store) SetPaused(ctx context.Context, id string, paused bool) error {
	query := `UPDATE projects SET is_paused = ?, updated_at = ? WHERE id = ?`
	if paused {
		query = `UPDATE projects SET is_paused = ?, next_scheduled_at = NULL, updated_at = ? WHERE id = ?`
	}
	res, err := s.execWithRetry(ctx, query, boolToInt(paused), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set paused: %w", err)
	}
	return requireRow(res, "project")
}

// UpdateCadence replaces a project's cadence configuration.
func (s *Store) UpdateCadence(ctx context.Context, id string, cad schedule.Cadence) error {
	if err := cad.Validate(); err != nil {
		return err
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET cadence_mode = ?, cadence_days = ?, delivery_hour = ?, updated_at = ? WHERE id = ?`,
		string(cad.Mode),
		schedule.FormatDays(cad.Days),
		cad.DeliveryHour,
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update cadence: %w", err)
	}
	return requireRow(res, "project")
}

// UpdateTimezone replaces a project's IANA timezone.
func (s *Store) UpdateTimezone(ctx context.Context, id, timezone string) error {
	if _, err := schedule.LoadLocation(timezone); err != nil {
		return err
	}
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET timezone = ?, updated_at = ? WHERE id = ?`,
		timezone,
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("update timezone: %w", err)
	}
	return requireRow(res, "project")
}

// SetPriority adjusts the project's dispatch priority.
func (s *Store) SetPriority(ctx context.Context, id string, priority int) error {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE projects SET priority = ?, updated_at = ? WHERE id = ?`,
		priority,
		formatTime(time.Now().UTC()),
		id,
	)
	if err != nil {
		return fmt.Errorf("set priority: %w", err)
	}
	return requireRow(res, "project")
}

func requireRow(res sql.Result, entity string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "store", "update", entity+" not found", nil)
	}
	return nil
}

func scanProject(scanner interface{ Scan(dest ...any) error }) (*Project, error) {
	var (
		id           string
		orgID        string
		name         sql.NullString
		timezone     string
		cadenceMode  string
		cadenceDays  sql.NullString
		deliveryHour int
		priority     int
		brief        sql.NullString
		isPaused     int
		nextRaw      sql.NullString
		createdRaw   string
		updatedRaw   string
	)

	if err := scanner.Scan(
		&id,
		&orgID,
		&name,
		&timezone,
		&cadenceMode,
		&cadenceDays,
		&deliveryHour,
		&priority,
		&brief,
		&isPaused,
		&nextRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	project := &Project{
		ID:             id,
		OrganizationID: orgID,
		Name:           name.String,
		Timezone:       timezone,
		Cadence: schedule.Cadence{
			Mode:         schedule.Mode(cadenceMode),
			Days:         schedule.ParseDays(cadenceDays.String),
			DeliveryHour: deliveryHour,
		},
		Priority:        priority,
		Brief:           brief.String,
		IsPaused:        isPaused != 0,
		NextScheduledAt: parseNullableTime(nextRaw),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		project.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		project.UpdatedAt = updated
	}
	return project, nil
}
