package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cadence/internal/config"
	"cadence/internal/logging"
	"cadence/internal/notifications"
	"cadence/internal/retryplan"
	"cadence/internal/schedule"
	"cadence/internal/services"
	"cadence/internal/store"
)

// Controller owns episode lifecycle transitions driven by worker callbacks
// and project mutations. The dispatcher starts generations; everything that
// happens after the worker is invoked lands here.
type Controller struct {
	store    *store.Store
	planner  *retryplan.Planner
	notifier notifications.Service
	logger   *slog.Logger

	maxNoteLength int
	maxRollovers  int
}

// New builds a lifecycle controller.
func New(cfg *config.Config, st *store.Store, planner *retryplan.Planner, notifier notifications.Service, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Controller{
		store:         st,
		planner:       planner,
		notifier:      notifier,
		logger:        logging.NewComponentLogger(logger, "lifecycle"),
		maxNoteLength: cfg.PlanningNotes.MaxNoteLength,
		maxRollovers:  cfg.PlanningNotes.MaxRollovers,
	}
}

// HandleProgress records a worker progress report. Progress is advisory and
// never changes episode status; reports against episodes that are no longer
// generating are dropped.
func (c *Controller) HandleProgress(ctx context.Context, episodeID int64, stage string, percent float64, message string) error {
	episode, err := c.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	if episode == nil {
		return services.Wrap(services.ErrNotFound, "lifecycle", "progress", fmt.Sprintf("episode %d", episodeID), nil)
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return c.store.UpdateProgress(ctx, episodeID, stage, message, percent)
}

// HandleCompletion finalizes a successful generation: the episode is
// published, its queue entry completed, the reported cost appended to the
// ledger, pending planning notes acknowledged, and the next slot scheduled.
// A duplicate completion against an already published episode is a no-op.
func (c *Controller) HandleCompletion(ctx context.Context, episodeID int64, content, sourcesJSON string, costUSD float64, now time.Time) error {
	episode, err := c.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	if episode == nil {
		return services.Wrap(services.ErrNotFound, "lifecycle", "complete", fmt.Sprintf("episode %d", episodeID), nil)
	}
	if episode.Status == store.EpisodePublished {
		c.logger.Info("duplicate completion ignored", logging.Int64(logging.FieldEpisodeID, episodeID))
		return nil
	}
	if episode.Status == store.EpisodeCancelled {
		c.logger.Info("completion for cancelled episode ignored", logging.Int64(logging.FieldEpisodeID, episodeID))
		return nil
	}
	if episode.Status != store.EpisodeGenerating {
		return services.Wrap(
			services.ErrInvalidTransition,
			"lifecycle", "complete",
			fmt.Sprintf("episode %d is %s, not generating", episodeID, episode.Status),
			nil,
		)
	}

	project, err := c.store.GetProject(ctx, episode.ProjectID)
	if err != nil {
		return err
	}
	if project == nil {
		return services.Wrap(services.ErrNotFound, "lifecycle", "complete", fmt.Sprintf("project %s", episode.ProjectID), nil)
	}

	if err := c.store.MarkPublished(ctx, episodeID, content, sourcesJSON, now); err != nil {
		// A concurrent duplicate may have published first; the loser of
		// that race is a no-op, same as a duplicate that arrives later.
		if errors.Is(err, services.ErrInvalidTransition) {
			current, readErr := c.store.GetEpisode(ctx, episodeID)
			if readErr == nil && current != nil && current.Status == store.EpisodePublished {
				c.logger.Info("duplicate completion ignored", logging.Int64(logging.FieldEpisodeID, episodeID))
				return nil
			}
		}
		return err
	}
	if err := c.store.SettleEntryForEpisode(ctx, episodeID, store.EntryCompleted, now); err != nil {
		return err
	}
	if costUSD > 0 {
		if err := c.store.AppendCost(ctx, project.OrganizationID, &episodeID, costUSD, now); err != nil {
			return err
		}
	}
	if _, err := c.store.AcknowledgeNotes(ctx, episode.ProjectID, episodeID); err != nil {
		return err
	}

	c.logger.Info("episode published",
		logging.String(logging.FieldProjectID, episode.ProjectID),
		logging.Int64(logging.FieldEpisodeID, episodeID),
		logging.Int("attempts", episode.GenerationAttempts),
		logging.Float64("cost_usd", costUSD),
	)
	if err := c.notifier.NotifyEpisodePublished(ctx, project.Name, episodeID); err != nil {
		c.logger.Warn("publish notification failed", logging.Error(err))
	}

	// A completion arriving past the delivery slot ships immediately rather
	// than waiting for a slot that has already gone.
	if !now.Before(episode.ScheduledFor) {
		if err := c.Deliver(ctx, episodeID, now); err != nil {
			return err
		}
	}

	if _, err := c.ScheduleNext(ctx, episode.ProjectID, now); err != nil {
		return err
	}
	return nil
}

// HandleFailure records a failed generation attempt and either re-arms the
// slot for the next retry checkpoint or finalizes the failure when no
// checkpoint remains. Failure reports against settled episodes are ignored.
func (c *Controller) HandleFailure(ctx context.Context, episodeID int64, reason string, now time.Time) error {
	episode, err := c.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	if episode == nil {
		return services.Wrap(services.ErrNotFound, "lifecycle", "fail", fmt.Sprintf("episode %d", episodeID), nil)
	}
	if episode.Status != store.EpisodeGenerating {
		c.logger.Info("failure report against settled episode ignored",
			logging.Int64(logging.FieldEpisodeID, episodeID),
			logging.String("status", string(episode.Status)),
		)
		return nil
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "worker reported an unspecified error"
	}
	if err := c.store.AppendGenerationError(ctx, episodeID, episode.GenerationAttempts, reason, now); err != nil {
		return err
	}

	checkpoint, ok := c.planner.Next(episode.ScheduledFor, now)
	if ok {
		if err := c.store.RearmDraft(ctx, episodeID, now); err != nil {
			return err
		}
		if err := c.store.RequeueEntryForEpisode(ctx, episodeID, checkpoint, now); err != nil {
			return err
		}
		c.logger.Warn("generation failed, retry scheduled",
			logging.String(logging.FieldProjectID, episode.ProjectID),
			logging.Int64(logging.FieldEpisodeID, episodeID),
			logging.Int("attempt", episode.GenerationAttempts),
			logging.Time("retry_at", checkpoint),
			logging.String("reason", reason),
		)
		return nil
	}
	return c.finalizeFailure(ctx, episode, reason, now)
}

func (c *Controller) finalizeFailure(ctx context.Context, episode *store.Episode, reason string, now time.Time) error {
	if err := c.store.MarkFailed(ctx, episode.ID, store.EpisodeGenerating, reason, now); err != nil {
		return err
	}
	if err := c.store.SettleEntryForEpisode(ctx, episode.ID, store.EntryFailed, now); err != nil {
		return err
	}

	rolled, archived, err := c.store.RolloverNotes(ctx, episode.ProjectID, c.maxRollovers)
	if err != nil {
		return err
	}
	c.logger.Error("episode failed, checkpoints exhausted",
		logging.String(logging.FieldProjectID, episode.ProjectID),
		logging.Int64(logging.FieldEpisodeID, episode.ID),
		logging.Int("attempts", episode.GenerationAttempts),
		logging.Int64("notes_rolled", rolled),
		logging.Int64("notes_archived", archived),
		logging.String("reason", reason),
	)

	project, err := c.store.GetProject(ctx, episode.ProjectID)
	if err == nil && project != nil {
		if notifyErr := c.notifier.NotifyEpisodeFailed(ctx, project.Name, episode.ID, reason); notifyErr != nil {
			c.logger.Warn("failure notification failed", logging.Error(notifyErr))
		}
	}

	// A failed slot never blocks the cadence: the next slot is scheduled
	// the moment this one settles.
	if _, err := c.ScheduleNext(ctx, episode.ProjectID, now); err != nil {
		return err
	}
	return nil
}

// Deliver records delivery of a published episode, flagging it late when the
// clock is past the scheduled slot.
func (c *Controller) Deliver(ctx context.Context, episodeID int64, now time.Time) error {
	episode, err := c.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return err
	}
	if episode == nil {
		return services.Wrap(services.ErrNotFound, "lifecycle", "deliver", fmt.Sprintf("episode %d", episodeID), nil)
	}
	late := now.After(episode.ScheduledFor)
	if err := c.store.MarkDelivered(ctx, episodeID, now, late); err != nil {
		return err
	}

	c.logger.Info("episode delivered",
		logging.String(logging.FieldProjectID, episode.ProjectID),
		logging.Int64(logging.FieldEpisodeID, episodeID),
		logging.Bool("late", late),
	)
	project, err := c.store.GetProject(ctx, episode.ProjectID)
	if err == nil && project != nil {
		if notifyErr := c.notifier.NotifyEpisodeDelivered(ctx, project.Name, episodeID, late); notifyErr != nil {
			c.logger.Warn("delivery notification failed", logging.Error(notifyErr))
		}
	}
	return nil
}

// ScheduleNext advances a project's next delivery slot. The new slot is
// always strictly later than the previous one, so a slot that settles early
// can never be scheduled twice. Paused projects are left unscheduled.
func (c *Controller) ScheduleNext(ctx context.Context, projectID string, now time.Time) (*time.Time, error) {
	project, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "lifecycle", "schedule next", fmt.Sprintf("project %s", projectID), nil)
	}
	if project.IsPaused {
		return nil, nil
	}

	loc, err := schedule.LoadLocation(project.Timezone)
	if err != nil {
		return nil, err
	}
	anchor := now
	if project.NextScheduledAt != nil && project.NextScheduledAt.After(anchor) {
		anchor = *project.NextScheduledAt
	}
	next, err := schedule.NextDelivery(project.Cadence, loc, anchor)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetNextScheduledAt(ctx, projectID, &next); err != nil {
		return nil, err
	}
	c.logger.Info("next slot scheduled",
		logging.String(logging.FieldProjectID, projectID),
		logging.Time("next_delivery", next),
	)
	return &next, nil
}

// EnsureScheduled sets a project's first slot when none exists. Used when a
// project is created or resumed.
func (c *Controller) EnsureScheduled(ctx context.Context, projectID string, now time.Time) (*time.Time, error) {
	project, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "lifecycle", "ensure scheduled", fmt.Sprintf("project %s", projectID), nil)
	}
	if project.IsPaused || project.NextScheduledAt != nil {
		return project.NextScheduledAt, nil
	}
	return c.ScheduleNext(ctx, projectID, now)
}

// PauseProject stops future scheduling and cancels the project's open slot
// and live queue entries, including a generation already in flight; a late
// worker callback against the cancelled episode is dropped.
func (c *Controller) PauseProject(ctx context.Context, projectID string) error {
	if err := c.store.SetPaused(ctx, projectID, true); err != nil {
		return err
	}
	cancelledEntries, err := c.store.CancelEntriesForProject(ctx, projectID)
	if err != nil {
		return err
	}
	cancelledEpisodes, err := c.store.CancelOpenEpisodes(ctx, projectID)
	if err != nil {
		return err
	}
	c.logger.Info("project paused",
		logging.String(logging.FieldProjectID, projectID),
		logging.Int64("cancelled_entries", cancelledEntries),
		logging.Int64("cancelled_episodes", cancelledEpisodes),
	)
	return nil
}

// ResumeProject restarts scheduling from now. Slots that fell inside the
// paused window are never back-filled.
func (c *Controller) ResumeProject(ctx context.Context, projectID string, now time.Time) (*time.Time, error) {
	if err := c.store.SetPaused(ctx, projectID, false); err != nil {
		return nil, err
	}
	return c.ScheduleNext(ctx, projectID, now)
}

// UpdateCadence changes a project's cadence and recomputes its next slot
// from now. The current draft slot is cancelled; a published or generating
// slot resolves under the old cadence.
func (c *Controller) UpdateCadence(ctx context.Context, projectID string, cad schedule.Cadence, now time.Time) (*time.Time, error) {
	if err := cad.Validate(); err != nil {
		return nil, err
	}
	if err := c.store.UpdateCadence(ctx, projectID, cad); err != nil {
		return nil, err
	}
	return c.rescheduleFrom(ctx, projectID, now)
}

// UpdateTimezone changes a project's timezone and recomputes its next slot
// from now in the new zone.
func (c *Controller) UpdateTimezone(ctx context.Context, projectID, timezone string, now time.Time) (*time.Time, error) {
	if _, err := schedule.LoadLocation(timezone); err != nil {
		return nil, err
	}
	if err := c.store.UpdateTimezone(ctx, projectID, timezone); err != nil {
		return nil, err
	}
	return c.rescheduleFrom(ctx, projectID, now)
}

func (c *Controller) rescheduleFrom(ctx context.Context, projectID string, now time.Time) (*time.Time, error) {
	if _, err := c.store.CancelEntriesForProject(ctx, projectID); err != nil {
		return nil, err
	}
	if _, err := c.store.CancelDraftEpisodes(ctx, projectID); err != nil {
		return nil, err
	}
	// Recompute from the clock, not the old slot, so the new settings take
	// effect immediately.
	if err := c.store.SetNextScheduledAt(ctx, projectID, nil); err != nil {
		return nil, err
	}
	return c.ScheduleNext(ctx, projectID, now)
}

// AddNote records subscriber feedback for the project's next generation.
func (c *Controller) AddNote(ctx context.Context, projectID, note string, appliesTo *int64) (*store.PlanningNote, error) {
	project, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, services.Wrap(services.ErrNotFound, "lifecycle", "add note", fmt.Sprintf("project %s", projectID), nil)
	}
	return c.store.AddNote(ctx, projectID, note, appliesTo, c.maxNoteLength)
}
