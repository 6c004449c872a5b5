package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"cadence/internal/config"
	"cadence/internal/schedule"
	"cadence/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedProject inserts a daily project delivering at 09:00 UTC and returns it.
func SeedProject(t testing.TB, st *store.Store, id string) *store.Project {
	t.Helper()

	project := &store.Project{
		ID:             id,
		OrganizationID: "org-" + id,
		Name:           "Project " + id,
		Timezone:       "UTC",
		Cadence: schedule.Cadence{
			Mode:         schedule.ModeDaily,
			DeliveryHour: 9,
		},
	}
	if err := st.UpsertProject(context.Background(), project); err != nil {
		t.Fatalf("store.UpsertProject: %v", err)
	}
	return project
}

// SeedDraft creates a draft episode for a delivery slot.
func SeedDraft(t testing.TB, st *store.Store, projectID string, deliveryAt time.Time) *store.Episode {
	t.Helper()

	episode, _, err := st.EnsureDraftEpisode(context.Background(), projectID, deliveryAt)
	if err != nil {
		t.Fatalf("store.EnsureDraftEpisode: %v", err)
	}
	return episode
}

// SeedEntry creates a draft episode plus its pending queue entry.
func SeedEntry(t testing.TB, st *store.Store, projectID string, deliveryAt time.Time, lead time.Duration) (*store.Episode, *store.QueueEntry) {
	t.Helper()

	episode := SeedDraft(t, st, projectID, deliveryAt)
	entry, _, err := st.EnsureEntry(context.Background(), episode, 0, deliveryAt.Add(-lead))
	if err != nil {
		t.Fatalf("store.EnsureEntry: %v", err)
	}
	return episode, entry
}

// UniqueProjectID generates a distinct project identifier per call site.
func UniqueProjectID(t testing.TB, n int) string {
	t.Helper()
	return fmt.Sprintf("%s-%d", t.Name(), n)
}
