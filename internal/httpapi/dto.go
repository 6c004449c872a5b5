package httpapi

// ProgressRequest is the worker's progress callback payload.
type ProgressRequest struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// CompleteRequest is the worker's completion callback payload.
type CompleteRequest struct {
	Content string   `json:"content" binding:"required"`
	Sources []string `json:"sources"`
	CostUSD float64  `json:"cost_usd"`
}

// ErrorRequest is the worker's failure callback payload.
type ErrorRequest struct {
	Error string `json:"error"`
}

// CadenceRequest describes a project's delivery cadence.
type CadenceRequest struct {
	Mode         string   `json:"mode" binding:"required"`
	Days         []string `json:"days"`
	DeliveryHour int      `json:"delivery_hour"`
}

// ProjectRequest creates or replaces a project.
type ProjectRequest struct {
	OrganizationID string         `json:"organization_id" binding:"required"`
	Name           string         `json:"name"`
	Timezone       string         `json:"timezone" binding:"required"`
	Cadence        CadenceRequest `json:"cadence" binding:"required"`
	Priority       int            `json:"priority"`
	Brief          string         `json:"brief"`
}

// TimezoneRequest changes a project's timezone.
type TimezoneRequest struct {
	Timezone string `json:"timezone" binding:"required"`
}

// NoteRequest records subscriber feedback.
type NoteRequest struct {
	Note               string `json:"note" binding:"required"`
	AppliesToEpisodeID *int64 `json:"applies_to_episode_id"`
}

// ProjectResponse is the external view of a project.
type ProjectResponse struct {
	ID              string          `json:"id"`
	OrganizationID  string          `json:"organization_id"`
	Name            string          `json:"name"`
	Timezone        string          `json:"timezone"`
	Cadence         CadenceResponse `json:"cadence"`
	Priority        int             `json:"priority"`
	Brief           string          `json:"brief,omitempty"`
	IsPaused        bool            `json:"is_paused"`
	NextScheduledAt string          `json:"next_scheduled_at,omitempty"`
}

// CadenceResponse mirrors CadenceRequest on the way out.
type CadenceResponse struct {
	Mode         string   `json:"mode"`
	Days         []string `json:"days,omitempty"`
	DeliveryHour int      `json:"delivery_hour"`
}

// EpisodeResponse is the external view of an episode.
type EpisodeResponse struct {
	ID              int64   `json:"id"`
	ProjectID       string  `json:"project_id"`
	Status          string  `json:"status"`
	ScheduledFor    string  `json:"scheduled_for"`
	PublishedAt     string  `json:"published_at,omitempty"`
	DeliveredAt     string  `json:"delivered_at,omitempty"`
	DeliveredLate   bool    `json:"delivered_late,omitempty"`
	Attempts        int     `json:"attempts"`
	FailureReason   string  `json:"failure_reason,omitempty"`
	ProgressStage   string  `json:"progress_stage,omitempty"`
	ProgressPercent float64 `json:"progress_percent,omitempty"`
}

// EntryResponse is the external view of a queue entry.
type EntryResponse struct {
	ID                  int64  `json:"id"`
	EpisodeID           int64  `json:"episode_id"`
	ProjectID           string `json:"project_id"`
	Priority            int    `json:"priority"`
	Status              string `json:"status"`
	GenerationStartTime string `json:"generation_start_time"`
	TargetDeliveryTime  string `json:"target_delivery_time"`
	LeaseHolder         string `json:"lease_holder,omitempty"`
	LeaseExpiresAt      string `json:"lease_expires_at,omitempty"`
	AttemptCount        int    `json:"attempt_count"`
	NextRetryAt         string `json:"next_retry_at,omitempty"`
}

// NoteResponse is the external view of a planning note.
type NoteResponse struct {
	ID            int64  `json:"id"`
	ProjectID     string `json:"project_id"`
	Note          string `json:"note"`
	Status        string `json:"status"`
	RolloverCount int    `json:"rollover_count"`
	CreatedAt     string `json:"created_at"`
}

// StatusResponse summarizes daemon health for the status endpoint.
type StatusResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Queue    struct {
		Total      int `json:"total"`
		Pending    int `json:"pending"`
		Processing int `json:"processing"`
		Completed  int `json:"completed"`
		Failed     int `json:"failed"`
		Blocked    int `json:"blocked"`
	} `json:"queue"`
}
