package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cadence/internal/services"
	"cadence/internal/store"
	"cadence/internal/testsupport"
)

func TestOpenAppliesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	project := testsupport.SeedProject(t, st, "proj-schema")

	fetched, err := st.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if fetched == nil || fetched.OrganizationID != "org-proj-schema" {
		t.Fatalf("unexpected fetched project: %#v", fetched)
	}
	if fetched.Cadence.DeliveryHour != 9 {
		t.Fatalf("expected delivery hour 9, got %d", fetched.Cadence.DeliveryHour)
	}
}

func TestEnsureDraftEpisodeIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-idem")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	first, created, err := st.EnsureDraftEpisode(ctx, "proj-idem", delivery)
	if err != nil {
		t.Fatalf("EnsureDraftEpisode failed: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the episode")
	}

	// Same slot with sub-minute jitter must collapse onto the same episode.
	second, created, err := st.EnsureDraftEpisode(ctx, "proj-idem", delivery.Add(30*time.Second))
	if err != nil {
		t.Fatalf("EnsureDraftEpisode retry failed: %v", err)
	}
	if created {
		t.Fatal("expected second call to reuse the episode")
	}
	if second.ID != first.ID {
		t.Fatalf("expected episode %d, got %d", first.ID, second.ID)
	}
}

func TestEnsureDraftEpisodeConcurrent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-race")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	const workers = 8
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			episode, _, err := st.EnsureDraftEpisode(ctx, "proj-race", delivery)
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = episode.ID
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("worker %d failed: %v", i, err)
		}
	}
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got episode %d, want %d", i, ids[i], ids[0])
		}
	}
}

func TestEpisodeTransitions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-trans")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	episode := testsupport.SeedDraft(t, st, "proj-trans", delivery)
	now := delivery.Add(-2 * time.Hour)

	if err := st.MarkGenerating(ctx, episode.ID, now); err != nil {
		t.Fatalf("MarkGenerating failed: %v", err)
	}
	// Second attempt against a generating episode must be refused.
	if err := st.MarkGenerating(ctx, episode.ID, now); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	if err := st.MarkPublished(ctx, episode.ID, "episode content", `["https://example.com"]`, now.Add(10*time.Minute)); err != nil {
		t.Fatalf("MarkPublished failed: %v", err)
	}

	fetched, err := st.GetEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if fetched.Status != store.EpisodePublished {
		t.Fatalf("expected published, got %s", fetched.Status)
	}
	if fetched.GenerationAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", fetched.GenerationAttempts)
	}
	if fetched.Content != "episode content" {
		t.Fatalf("unexpected content %q", fetched.Content)
	}

	// Publishing again is a stale transition, not silent success.
	if err := st.MarkPublished(ctx, episode.ID, "dup", "", now); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on duplicate publish, got %v", err)
	}
}

func TestRearmDraftForRetry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-rearm")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	episode := testsupport.SeedDraft(t, st, "proj-rearm", delivery)
	now := delivery.Add(-2 * time.Hour)

	if err := st.MarkGenerating(ctx, episode.ID, now); err != nil {
		t.Fatalf("MarkGenerating failed: %v", err)
	}
	if err := st.AppendGenerationError(ctx, episode.ID, 1, "model timeout", now.Add(time.Minute)); err != nil {
		t.Fatalf("AppendGenerationError failed: %v", err)
	}
	if err := st.RearmDraft(ctx, episode.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("RearmDraft failed: %v", err)
	}

	fetched, err := st.GetEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if fetched.Status != store.EpisodeDraft {
		t.Fatalf("expected draft after rearm, got %s", fetched.Status)
	}
	if fetched.GenerationAttempts != 1 {
		t.Fatalf("attempt count should survive rearm, got %d", fetched.GenerationAttempts)
	}

	generationErrors, err := st.GenerationErrors(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GenerationErrors failed: %v", err)
	}
	if len(generationErrors) != 1 || generationErrors[0].Message != "model timeout" {
		t.Fatalf("unexpected error history: %#v", generationErrors)
	}
}

func TestEnsureEntrySingleActivePerEpisode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-entry")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	episode, entry := testsupport.SeedEntry(t, st, "proj-entry", delivery, 2*time.Hour)

	again, created, err := st.EnsureEntry(ctx, episode, 0, delivery.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("EnsureEntry retry failed: %v", err)
	}
	if created {
		t.Fatal("expected second EnsureEntry to reuse the live entry")
	}
	if again.ID != entry.ID {
		t.Fatalf("expected entry %d, got %d", entry.ID, again.ID)
	}

	// Once the first entry is terminal a fresh one may exist.
	if _, err := st.AcquireLease(ctx, entry.ID, "holder-1", delivery.Add(-2*time.Hour), 5*time.Minute); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if err := st.FinishEntry(ctx, entry.ID, "holder-1", store.EntryFailed, delivery.Add(-time.Hour)); err != nil {
		t.Fatalf("FinishEntry failed: %v", err)
	}
	replacement, created, err := st.EnsureEntry(ctx, episode, 0, delivery.Add(-time.Hour))
	if err != nil {
		t.Fatalf("EnsureEntry after settle failed: %v", err)
	}
	if !created || replacement.ID == entry.ID {
		t.Fatalf("expected a fresh entry after terminal settle, got created=%v id=%d", created, replacement.ID)
	}
}

func TestAcquireLeaseContention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-lease")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, entry := testsupport.SeedEntry(t, st, "proj-lease", delivery, 2*time.Hour)
	now := delivery.Add(-2 * time.Hour)

	const contenders = 6
	winners := 0
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := st.AcquireLease(ctx, entry.ID, testsupport.UniqueProjectID(t, i), now, 5*time.Minute)
			if err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
				return
			}
			if !errors.Is(err, services.ErrLeaseConflict) {
				t.Errorf("contender %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one lease winner, got %d", winners)
	}
}

func TestAcquireLeaseReclaimsExpired(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-expire")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, entry := testsupport.SeedEntry(t, st, "proj-expire", delivery, 2*time.Hour)
	now := delivery.Add(-2 * time.Hour)

	if _, err := st.AcquireLease(ctx, entry.ID, "crashed-holder", now, 5*time.Minute); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	reclaimed, err := st.ReclaimExpiredLeases(ctx, now.Add(6*time.Minute))
	if err != nil {
		t.Fatalf("ReclaimExpiredLeases failed: %v", err)
	}
	if reclaimed != 1 {
		t.Fatalf("expected 1 reclaimed entry, got %d", reclaimed)
	}

	fresh, err := st.AcquireLease(ctx, entry.ID, "new-holder", now.Add(7*time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatalf("AcquireLease after reclaim failed: %v", err)
	}
	if fresh.Lease == nil || fresh.Lease.Holder != "new-holder" {
		t.Fatalf("unexpected lease after reclaim: %#v", fresh.Lease)
	}
	if fresh.AttemptCount != 2 {
		t.Fatalf("expected attempt count 2, got %d", fresh.AttemptCount)
	}
}

func TestFinishEntryRequiresHolder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-holder")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, entry := testsupport.SeedEntry(t, st, "proj-holder", delivery, 2*time.Hour)
	now := delivery.Add(-2 * time.Hour)

	if _, err := st.AcquireLease(ctx, entry.ID, "owner", now, 5*time.Minute); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	if err := st.FinishEntry(ctx, entry.ID, "impostor", store.EntryCompleted, now); !errors.Is(err, services.ErrLeaseConflict) {
		t.Fatalf("expected lease conflict for non-holder, got %v", err)
	}
	if err := st.FinishEntry(ctx, entry.ID, "owner", store.EntryCompleted, now); err != nil {
		t.Fatalf("FinishEntry by holder failed: %v", err)
	}
}

func TestBlockedSettleCannotStealLease(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-block-race")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, entry := testsupport.SeedEntry(t, st, "proj-block-race", delivery, 2*time.Hour)
	now := delivery.Add(-2 * time.Hour)

	if _, err := st.AcquireLease(ctx, entry.ID, "dispatcher-a", now, 5*time.Minute); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}

	// A pass deciding to block the slot for cost must not touch an entry
	// another dispatcher holds.
	if err := st.FinishEntry(ctx, entry.ID, "dispatcher-b", store.EntryBlocked, now); !errors.Is(err, services.ErrLeaseConflict) {
		t.Fatalf("expected lease conflict for non-holder, got %v", err)
	}
	held, err := st.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if held.Status != store.EntryProcessing || held.Lease == nil || held.Lease.Holder != "dispatcher-a" {
		t.Fatalf("lease-held entry must be untouched, got %#v", held)
	}

	if err := st.FinishEntry(ctx, entry.ID, "dispatcher-a", store.EntryBlocked, now); err != nil {
		t.Fatalf("FinishEntry by holder failed: %v", err)
	}
	blocked, err := st.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if blocked.Status != store.EntryBlocked || blocked.Lease != nil {
		t.Fatalf("expected blocked entry with cleared lease, got %#v", blocked)
	}
}

func TestNextEligibleOrderingAndRetryHold(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := delivery.Add(-90 * time.Minute)

	testsupport.SeedProject(t, st, "proj-low")
	testsupport.SeedProject(t, st, "proj-high")
	lowEp, _ := testsupport.SeedEntry(t, st, "proj-low", delivery, 2*time.Hour)
	highEp := testsupport.SeedDraft(t, st, "proj-high", delivery)
	if _, _, err := st.EnsureEntry(ctx, highEp, 5, delivery.Add(-2*time.Hour)); err != nil {
		t.Fatalf("EnsureEntry failed: %v", err)
	}

	// A third entry whose generation start has not arrived stays out.
	testsupport.SeedProject(t, st, "proj-future")
	futureEp := testsupport.SeedDraft(t, st, "proj-future", delivery.Add(24*time.Hour))
	if _, _, err := st.EnsureEntry(ctx, futureEp, 9, delivery.Add(22*time.Hour)); err != nil {
		t.Fatalf("EnsureEntry failed: %v", err)
	}

	eligible, err := st.NextEligible(ctx, now, 10)
	if err != nil {
		t.Fatalf("NextEligible failed: %v", err)
	}
	if len(eligible) != 2 {
		t.Fatalf("expected 2 eligible entries, got %d", len(eligible))
	}
	if eligible[0].EpisodeID != highEp.ID {
		t.Fatalf("expected high-priority episode %d first, got %d", highEp.ID, eligible[0].EpisodeID)
	}
	if eligible[1].EpisodeID != lowEp.ID {
		t.Fatalf("expected low-priority episode %d second, got %d", lowEp.ID, eligible[1].EpisodeID)
	}

	// A retry hold defers eligibility until the checkpoint arrives.
	lowEntry := eligible[1]
	if _, err := st.AcquireLease(ctx, lowEntry.ID, "h", now, 5*time.Minute); err != nil {
		t.Fatalf("AcquireLease failed: %v", err)
	}
	holdUntil := now.Add(15 * time.Minute)
	if err := st.RequeueEntry(ctx, lowEntry.ID, "h", holdUntil, now); err != nil {
		t.Fatalf("RequeueEntry failed: %v", err)
	}
	eligible, err = st.NextEligible(ctx, now.Add(5*time.Minute), 10)
	if err != nil {
		t.Fatalf("NextEligible failed: %v", err)
	}
	if len(eligible) != 1 || eligible[0].EpisodeID != highEp.ID {
		t.Fatalf("held entry should not be eligible yet: %#v", eligible)
	}
	eligible, err = st.NextEligible(ctx, holdUntil, 10)
	if err != nil {
		t.Fatalf("NextEligible failed: %v", err)
	}
	if len(eligible) != 2 {
		t.Fatalf("expected held entry back after checkpoint, got %d entries", len(eligible))
	}
}

func TestCancelEntriesForProject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-cancel")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	episode, _ := testsupport.SeedEntry(t, st, "proj-cancel", delivery, 2*time.Hour)

	cancelled, err := st.CancelEntriesForProject(ctx, "proj-cancel")
	if err != nil {
		t.Fatalf("CancelEntriesForProject failed: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancelled entry, got %d", cancelled)
	}
	active, err := st.ActiveEntryForEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("ActiveEntryForEpisode failed: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active entry after cancel, got %#v", active)
	}
}

func TestMarkDeliveredLate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-late")
	delivery := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	episode := testsupport.SeedDraft(t, st, "proj-late", delivery)

	if err := st.MarkGenerating(ctx, episode.ID, delivery.Add(-time.Hour)); err != nil {
		t.Fatalf("MarkGenerating failed: %v", err)
	}
	lateAt := delivery.Add(20 * time.Minute)
	if err := st.MarkPublished(ctx, episode.ID, "late content", "", lateAt); err != nil {
		t.Fatalf("MarkPublished failed: %v", err)
	}
	if err := st.MarkDelivered(ctx, episode.ID, lateAt, true); err != nil {
		t.Fatalf("MarkDelivered failed: %v", err)
	}
	// Delivery is recorded once.
	if err := st.MarkDelivered(ctx, episode.ID, lateAt.Add(time.Minute), true); !errors.Is(err, services.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition on duplicate delivery, got %v", err)
	}

	fetched, err := st.GetEpisode(ctx, episode.ID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if !fetched.DeliveredLate || fetched.DeliveredAt == nil {
		t.Fatalf("expected late delivery recorded: %#v", fetched)
	}
}

func TestPlanningNoteLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-notes")

	note, err := st.AddNote(ctx, "proj-notes", "  more coverage of funding rounds  ", nil, 500)
	if err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	if note.Note != "more coverage of funding rounds" {
		t.Fatalf("expected trimmed note, got %q", note.Note)
	}
	if _, err := st.AddNote(ctx, "proj-notes", "x", nil, 0); err != nil {
		t.Fatalf("AddNote without bound failed: %v", err)
	}

	pending, err := st.PendingNotes(ctx, "proj-notes")
	if err != nil {
		t.Fatalf("PendingNotes failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending notes, got %d", len(pending))
	}

	// A failed slot rolls notes forward; acknowledgement consumes them.
	rolled, archived, err := st.RolloverNotes(ctx, "proj-notes", 2)
	if err != nil {
		t.Fatalf("RolloverNotes failed: %v", err)
	}
	if rolled != 2 || archived != 0 {
		t.Fatalf("expected 2 rolled / 0 archived, got %d / %d", rolled, archived)
	}

	acked, err := st.AcknowledgeNotes(ctx, "proj-notes", 42)
	if err != nil {
		t.Fatalf("AcknowledgeNotes failed: %v", err)
	}
	if acked != 2 {
		t.Fatalf("expected 2 acknowledged notes, got %d", acked)
	}
	pending, err = st.PendingNotes(ctx, "proj-notes")
	if err != nil {
		t.Fatalf("PendingNotes failed: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending notes after acknowledge, got %d", len(pending))
	}
}

func TestRolloverNotesArchivesPastLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.SeedProject(t, st, "proj-archive")
	if _, err := st.AddNote(ctx, "proj-archive", "short-lived note", nil, 0); err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}

	if _, _, err := st.RolloverNotes(ctx, "proj-archive", 1); err != nil {
		t.Fatalf("first rollover failed: %v", err)
	}
	rolled, archived, err := st.RolloverNotes(ctx, "proj-archive", 1)
	if err != nil {
		t.Fatalf("second rollover failed: %v", err)
	}
	if archived != 1 || rolled != 0 {
		t.Fatalf("expected note archived on second rollover, got rolled=%d archived=%d", rolled, archived)
	}
}

func TestDailyLedgerAggregates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	day := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	if err := st.AppendCost(ctx, "org-ledger", nil, 1.25, day); err != nil {
		t.Fatalf("AppendCost failed: %v", err)
	}
	episodeID := int64(7)
	if err := st.AppendCost(ctx, "org-ledger", &episodeID, 2.50, day.Add(3*time.Hour)); err != nil {
		t.Fatalf("AppendCost failed: %v", err)
	}
	// Next UTC day lands in a different ledger bucket.
	if err := st.AppendCost(ctx, "org-ledger", nil, 99, day.Add(24*time.Hour)); err != nil {
		t.Fatalf("AppendCost failed: %v", err)
	}

	summary, err := st.DailyLedger(ctx, "org-ledger", day)
	if err != nil {
		t.Fatalf("DailyLedger failed: %v", err)
	}
	if summary.RecordCount != 2 {
		t.Fatalf("expected 2 records, got %d", summary.RecordCount)
	}
	if summary.TotalCost != 3.75 {
		t.Fatalf("expected total 3.75, got %v", summary.TotalCost)
	}
}

func TestDueProjects(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	due := testsupport.SeedProject(t, st, "proj-due")
	notYet := testsupport.SeedProject(t, st, "proj-later")
	paused := testsupport.SeedProject(t, st, "proj-paused")

	cutoff := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	within := cutoff.Add(-time.Hour)
	beyond := cutoff.Add(time.Hour)
	if err := st.SetNextScheduledAt(ctx, due.ID, &within); err != nil {
		t.Fatalf("SetNextScheduledAt failed: %v", err)
	}
	if err := st.SetNextScheduledAt(ctx, notYet.ID, &beyond); err != nil {
		t.Fatalf("SetNextScheduledAt failed: %v", err)
	}
	if err := st.SetNextScheduledAt(ctx, paused.ID, &within); err != nil {
		t.Fatalf("SetNextScheduledAt failed: %v", err)
	}
	if err := st.SetPaused(ctx, paused.ID, true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}

	projects, err := st.DueProjects(ctx, cutoff)
	if err != nil {
		t.Fatalf("DueProjects failed: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != due.ID {
		t.Fatalf("expected only %s due, got %#v", due.ID, projects)
	}
}
