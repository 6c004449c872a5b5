package store

import (
	"strings"
	"time"

	"cadence/internal/schedule"
)

// EpisodeStatus represents the lifecycle of an episode.
type EpisodeStatus string

const (
	EpisodeDraft      EpisodeStatus = "draft"
	EpisodeGenerating EpisodeStatus = "generating"
	EpisodePublished  EpisodeStatus = "published"
	EpisodeFailed     EpisodeStatus = "failed"
	EpisodeCancelled  EpisodeStatus = "cancelled"
)

var episodeStatuses = map[EpisodeStatus]struct{}{
	EpisodeDraft:      {},
	EpisodeGenerating: {},
	EpisodePublished:  {},
	EpisodeFailed:     {},
	EpisodeCancelled:  {},
}

// ParseEpisodeStatus converts a string into a known EpisodeStatus.
func ParseEpisodeStatus(value string) (EpisodeStatus, bool) {
	normalized := EpisodeStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := episodeStatuses[normalized]
	return normalized, ok
}

// IsTerminal reports whether the status ends the slot's lifecycle.
func (s EpisodeStatus) IsTerminal() bool {
	switch s {
	case EpisodePublished, EpisodeFailed, EpisodeCancelled:
		return true
	default:
		return false
	}
}

// EntryStatus represents the lifecycle of a queue entry.
type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryProcessing EntryStatus = "processing"
	EntryCompleted  EntryStatus = "completed"
	EntryFailed     EntryStatus = "failed"
	EntryCancelled  EntryStatus = "cancelled"
	// EntryBlocked marks an entry stopped by the cost guard. Terminal for
	// this cycle; it does not affect the next cycle's scheduling.
	EntryBlocked EntryStatus = "blocked"
)

// IsActive reports whether the entry still represents live work.
func (s EntryStatus) IsActive() bool {
	return s == EntryPending || s == EntryProcessing
}

// NoteStatus represents the lifecycle of a planning note.
type NoteStatus string

const (
	NotePending      NoteStatus = "pending"
	NoteAcknowledged NoteStatus = "acknowledged"
	NoteArchived     NoteStatus = "archived"
)

// Project is the read-mostly projection of a subscriber project consumed by
// the scheduling core.
type Project struct {
	ID              string
	OrganizationID  string
	Name            string
	Timezone        string
	Cadence         schedule.Cadence
	Priority        int
	Brief           string
	IsPaused        bool
	NextScheduledAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Episode represents one scheduled unit of generated content.
type Episode struct {
	ID                  int64
	ProjectID           string
	IdempotencyKey      string
	Status              EpisodeStatus
	ScheduledFor        time.Time
	GenerationStartedAt *time.Time
	PublishedAt         *time.Time
	DeliveredAt         *time.Time
	DeliveredLate       bool
	GenerationAttempts  int
	Content             string
	SourcesJSON         string
	FailureReason       string
	ProgressStage       string
	ProgressPercent     float64
	ProgressMessage     string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// GenerationError is one recorded failure of a generation attempt.
type GenerationError struct {
	ID         int64
	EpisodeID  int64
	Attempt    int
	Message    string
	OccurredAt time.Time
}

// Lease is a time-bounded exclusive claim on a queue entry.
type Lease struct {
	Holder    string
	ExpiresAt time.Time
}

// QueueEntry is a durable work item derived from a due episode.
type QueueEntry struct {
	ID                  int64
	EpisodeID           int64
	ProjectID           string
	Priority            int
	GenerationStartTime time.Time
	TargetDeliveryTime  time.Time
	Status              EntryStatus
	Lease               *Lease
	AttemptCount        int
	LastAttemptAt       *time.Time
	NextRetryAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PlanningNote carries subscriber feedback across episodes. Its lifetime is
// independent of the episode it was created against.
type PlanningNote struct {
	ID                      int64
	ProjectID               string
	Note                    string
	Status                  NoteStatus
	AppliesToEpisodeID      *int64
	AcknowledgedByEpisodeID *int64
	RolloverCount           int
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// LedgerSummary aggregates an organization's generation spend for one
// calendar day.
type LedgerSummary struct {
	OrganizationID string
	Day            string
	TotalCost      float64
	RecordCount    int
}

// HealthSummary describes aggregated queue counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Blocked    int
}

// IdempotencyKey derives the deterministic episode key for a delivery slot,
// truncated to the minute so duplicate triggers within a slot collide.
func IdempotencyKey(deliveryAt time.Time) string {
	return deliveryAt.UTC().Truncate(time.Minute).Format("200601021504")
}
