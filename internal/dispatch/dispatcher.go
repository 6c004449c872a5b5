package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cadence/internal/config"
	"cadence/internal/costguard"
	"cadence/internal/lifecycle"
	"cadence/internal/logging"
	"cadence/internal/notifications"
	"cadence/internal/schedule"
	"cadence/internal/services"
	"cadence/internal/store"
	"cadence/internal/worker"
)

// Dispatcher advances the queue on every tick: due projects get draft
// episodes and pending entries, eligible entries get leased and handed to
// the worker, and published episodes whose slot has arrived get delivered.
type Dispatcher struct {
	store     *store.Store
	guard     *costguard.Guard
	client    worker.Client
	lifecycle *lifecycle.Controller
	notifier  notifications.Service
	logger    *slog.Logger

	lead         time.Duration
	leaseTTL     time.Duration
	maxPerTick   int
	maxRollovers int

	invocations sync.WaitGroup
}

// silentWorkerReason marks attempts whose worker accepted the invocation but
// never reported a completion or an error before the lease lapsed.
const silentWorkerReason = "worker_unreachable: lease expired without a completion or error callback"

// New builds a dispatcher.
func New(cfg *config.Config, st *store.Store, guard *costguard.Guard, client worker.Client, ctrl *lifecycle.Controller, notifier notifications.Service, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Dispatcher{
		store:        st,
		guard:        guard,
		client:       client,
		lifecycle:    ctrl,
		notifier:     notifier,
		logger:       logging.NewComponentLogger(logger, "dispatch"),
		lead:         time.Duration(cfg.Scheduling.LeadTimeMinutes) * time.Minute,
		leaseTTL:     time.Duration(cfg.Dispatch.LeaseTTLSeconds) * time.Second,
		maxPerTick:   cfg.Dispatch.MaxPerTick,
		maxRollovers: cfg.PlanningNotes.MaxRollovers,
	}
}

// Tick runs one dispatch pass against the supplied clock. Passes are safe to
// run concurrently across processes; every claim goes through the store.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) error {
	reclaimed, err := d.store.ReclaimExpiredLeases(ctx, now)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		d.logger.Warn("reclaimed expired leases", logging.Int64("count", reclaimed))
	}

	if err := d.failAbandoned(ctx, now); err != nil {
		return err
	}
	if err := d.planSlots(ctx, now); err != nil {
		return err
	}
	if err := d.dispatchEligible(ctx, now); err != nil {
		return err
	}
	return d.deliverDue(ctx, now)
}

// Wait blocks until all in-flight worker invocations have returned. Tests
// use it; the daemon calls it on shutdown.
func (d *Dispatcher) Wait() {
	d.invocations.Wait()
}

// failAbandoned settles generating episodes whose delivery slot has passed
// with no live queue entry left to redispatch them. Without this pass a
// callback lost after the entry settles would hold the episode in
// generating forever and stop the cadence.
func (d *Dispatcher) failAbandoned(ctx context.Context, now time.Time) error {
	episodes, err := d.store.AbandonedGenerating(ctx, now)
	if err != nil {
		return err
	}
	for _, episode := range episodes {
		d.logger.Warn("abandoned generation past its slot",
			logging.String(logging.FieldProjectID, episode.ProjectID),
			logging.Int64(logging.FieldEpisodeID, episode.ID),
		)
		if err := d.lifecycle.HandleFailure(ctx, episode.ID, silentWorkerReason, now); err != nil {
			d.logger.Error("abandoned generation routing failed",
				logging.Int64(logging.FieldEpisodeID, episode.ID),
				logging.Error(err),
			)
		}
	}
	return nil
}

// planSlots materializes draft episodes and pending entries for projects
// whose next delivery falls inside the lead window.
func (d *Dispatcher) planSlots(ctx context.Context, now time.Time) error {
	projects, err := d.store.DueProjects(ctx, now.Add(d.lead))
	if err != nil {
		return err
	}
	for _, project := range projects {
		if project.NextScheduledAt == nil {
			continue
		}
		delivery := *project.NextScheduledAt
		episode, created, err := d.store.EnsureDraftEpisode(ctx, project.ID, delivery)
		if err != nil {
			d.logger.Error("plan slot failed",
				logging.String(logging.FieldProjectID, project.ID),
				logging.Error(err),
			)
			continue
		}
		if episode.Status != store.EpisodeDraft {
			// Slot already resolved or in flight; nothing to enqueue.
			continue
		}
		if _, _, err := d.store.EnsureEntry(ctx, episode, project.Priority, schedule.GenerationStart(delivery, d.lead)); err != nil {
			d.logger.Error("enqueue slot failed",
				logging.String(logging.FieldProjectID, project.ID),
				logging.Int64(logging.FieldEpisodeID, episode.ID),
				logging.Error(err),
			)
			continue
		}
		if created {
			d.logger.Info("slot planned",
				logging.String(logging.FieldProjectID, project.ID),
				logging.Int64(logging.FieldEpisodeID, episode.ID),
				logging.Time("delivery", delivery),
			)
		}
	}
	return nil
}

// dispatchEligible leases due entries and hands them to the worker.
func (d *Dispatcher) dispatchEligible(ctx context.Context, now time.Time) error {
	entries, err := d.store.NextEligible(ctx, now, d.maxPerTick)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := d.dispatchEntry(ctx, entry, now); err != nil {
			d.logger.Error("dispatch entry failed",
				logging.Int64(logging.FieldEntryID, entry.ID),
				logging.Error(err),
			)
		}
	}
	return nil
}

func (d *Dispatcher) dispatchEntry(ctx context.Context, entry *store.QueueEntry, now time.Time) error {
	project, err := d.store.GetProject(ctx, entry.ProjectID)
	if err != nil {
		return err
	}
	if project == nil {
		return services.Wrap(services.ErrNotFound, "dispatch", "dispatch entry", "project "+entry.ProjectID, nil)
	}

	holder := uuid.NewString()
	leased, err := d.store.AcquireLease(ctx, entry.ID, holder, now, d.leaseTTL)
	if err != nil {
		if errors.Is(err, services.ErrLeaseConflict) {
			// Another dispatcher got there first.
			return nil
		}
		return err
	}

	// The guard runs under the lease so a blocked slot is settled only by
	// its holder, never out from under another dispatcher.
	if err := d.guard.Allow(ctx, project.OrganizationID, now); err != nil {
		if errors.Is(err, services.ErrCostLimit) {
			return d.blockForCost(ctx, leased, holder, project, now)
		}
		// The lease lapses and a later pass reclaims the entry.
		return err
	}

	if err := d.store.MarkGenerating(ctx, leased.EpisodeID, now); err != nil {
		if errors.Is(err, services.ErrInvalidTransition) {
			return d.settleStaleClaim(ctx, leased, holder, now)
		}
		return err
	}

	req, err := d.buildRequest(ctx, leased, project, now)
	if err != nil {
		return err
	}

	d.logger.Info("generation dispatched",
		logging.String(logging.FieldProjectID, project.ID),
		logging.Int64(logging.FieldEpisodeID, leased.EpisodeID),
		logging.Int64(logging.FieldEntryID, leased.ID),
		logging.String(logging.FieldRequestID, req.RequestID),
		logging.Int("attempt", leased.AttemptCount),
	)

	episodeID := leased.EpisodeID
	d.invocations.Add(1)
	go func() {
		defer d.invocations.Done()
		if err := d.client.Invoke(context.WithoutCancel(ctx), req); err != nil {
			d.logger.Error("worker invocation failed",
				logging.Int64(logging.FieldEpisodeID, episodeID),
				logging.String(logging.FieldRequestID, req.RequestID),
				logging.Error(err),
			)
			// An unreachable worker takes the same path as a reported
			// failure: retry at the next checkpoint or finalize.
			if failErr := d.lifecycle.HandleFailure(context.WithoutCancel(ctx), episodeID, err.Error(), now); failErr != nil {
				d.logger.Error("failure routing failed",
					logging.Int64(logging.FieldEpisodeID, episodeID),
					logging.Error(failErr),
				)
			}
		}
	}()
	return nil
}

// settleStaleClaim resolves a claimed entry whose episode refused the
// draft-to-generating transition. An episode still in generating means the
// previous invocation went silent and its lease lapsed; that counts as a
// failed attempt and routes through retry handling. Anything else settled
// elsewhere, so the entry is simply released.
func (d *Dispatcher) settleStaleClaim(ctx context.Context, entry *store.QueueEntry, holder string, now time.Time) error {
	episode, err := d.store.GetEpisode(ctx, entry.EpisodeID)
	if err != nil {
		return err
	}
	if episode != nil && episode.Status == store.EpisodeGenerating {
		d.logger.Warn("worker went silent, booking the attempt as failed",
			logging.String(logging.FieldProjectID, entry.ProjectID),
			logging.Int64(logging.FieldEpisodeID, entry.EpisodeID),
			logging.Int64(logging.FieldEntryID, entry.ID),
		)
		return d.lifecycle.HandleFailure(ctx, entry.EpisodeID, silentWorkerReason, now)
	}
	return d.store.FinishEntry(ctx, entry.ID, holder, store.EntryCancelled, now)
}

func (d *Dispatcher) buildRequest(ctx context.Context, entry *store.QueueEntry, project *store.Project, now time.Time) (worker.InvokeRequest, error) {
	prior, err := d.store.LastPublishedContent(ctx, project.ID)
	if err != nil {
		return worker.InvokeRequest{}, err
	}
	pending, err := d.store.PendingNotes(ctx, project.ID)
	if err != nil {
		return worker.InvokeRequest{}, err
	}
	notes := make([]string, 0, len(pending))
	for _, note := range pending {
		notes = append(notes, note.Note)
	}
	return worker.InvokeRequest{
		RequestID:          uuid.NewString(),
		EpisodeID:          entry.EpisodeID,
		ProjectID:          project.ID,
		OrganizationID:     project.OrganizationID,
		TargetDeliveryTime: entry.TargetDeliveryTime,
		Context: worker.GenerationContext{
			Brief:                project.Brief,
			PriorMemory:          prior,
			PendingPlanningNotes: notes,
		},
	}, nil
}

// blockForCost settles a slot stopped by the cost guard: the held entry is
// blocked, the episode failed, notes roll forward, and the cadence advances.
// Tomorrow's ledger starts empty, so the next slot dispatches normally.
func (d *Dispatcher) blockForCost(ctx context.Context, entry *store.QueueEntry, holder string, project *store.Project, now time.Time) error {
	if err := d.store.FinishEntry(ctx, entry.ID, holder, store.EntryBlocked, now); err != nil {
		return err
	}
	if err := d.store.MarkFailed(ctx, entry.EpisodeID, store.EpisodeDraft, services.FailureReason(services.ErrCostLimit), now); err != nil {
		return err
	}
	if _, _, err := d.store.RolloverNotes(ctx, project.ID, d.maxRollovers); err != nil {
		return err
	}

	d.logger.Warn("slot blocked by cost guard",
		logging.String(logging.FieldProjectID, project.ID),
		logging.String(logging.FieldOrganizationID, project.OrganizationID),
		logging.Int64(logging.FieldEpisodeID, entry.EpisodeID),
	)
	spent := 0.0
	if summary, err := d.store.DailyLedger(ctx, project.OrganizationID, now); err == nil {
		spent = summary.TotalCost
	}
	if err := d.notifier.NotifyCostLimitReached(ctx, project.OrganizationID, spent, d.guard.Limit()); err != nil {
		d.logger.Warn("cost notification failed", logging.Error(err))
	}

	if _, err := d.lifecycle.ScheduleNext(ctx, project.ID, now); err != nil {
		return err
	}
	return nil
}

// deliverDue ships published episodes whose delivery slot has arrived.
func (d *Dispatcher) deliverDue(ctx context.Context, now time.Time) error {
	episodes, err := d.store.UndeliveredDue(ctx, now)
	if err != nil {
		return err
	}
	for _, episode := range episodes {
		if err := d.lifecycle.Deliver(ctx, episode.ID, now); err != nil {
			d.logger.Error("delivery failed",
				logging.Int64(logging.FieldEpisodeID, episode.ID),
				logging.Error(err),
			)
		}
	}
	return nil
}
