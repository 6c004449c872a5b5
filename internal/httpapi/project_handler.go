package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cadence/internal/lifecycle"
	"cadence/internal/logging"
	"cadence/internal/schedule"
	"cadence/internal/services"
	"cadence/internal/store"
)

// ProjectHandler serves project CRUD, lifecycle mutations, planning notes,
// and the queue/status read surfaces.
type ProjectHandler struct {
	store     *store.Store
	lifecycle *lifecycle.Controller
	logger    *slog.Logger
}

// NewProjectHandler builds the project handler.
func NewProjectHandler(st *store.Store, ctrl *lifecycle.Controller, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{
		store:     st,
		lifecycle: ctrl,
		logger:    logging.NewComponentLogger(logger, "httpapi"),
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

func parseWeekday(value string) (time.Weekday, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if day, ok := weekdayNames[normalized]; ok {
		return day, true
	}
	if n, err := strconv.Atoi(normalized); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), true
	}
	return 0, false
}

func cadenceFromRequest(req CadenceRequest) (schedule.Cadence, error) {
	mode, ok := schedule.ParseMode(req.Mode)
	if !ok {
		return schedule.Cadence{}, errors.New("unknown cadence mode " + strconv.Quote(req.Mode))
	}
	days := make([]time.Weekday, 0, len(req.Days))
	for _, raw := range req.Days {
		day, ok := parseWeekday(raw)
		if !ok {
			return schedule.Cadence{}, errors.New("unknown weekday " + strconv.Quote(raw))
		}
		days = append(days, day)
	}
	cad := schedule.Cadence{
		Mode:         mode,
		Days:         days,
		DeliveryHour: req.DeliveryHour,
	}
	return cad, cad.Validate()
}

// PutProject handles PUT /projects/:id.
func (h *ProjectHandler) PutProject(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cad, err := cadenceFromRequest(req.Cadence)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := schedule.LoadLocation(req.Timezone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone"})
		return
	}

	ctx := c.Request.Context()
	project := &store.Project{
		ID:             id,
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Timezone:       req.Timezone,
		Cadence:        cad,
		Priority:       req.Priority,
		Brief:          req.Brief,
	}
	if err := h.store.UpsertProject(ctx, project); err != nil {
		h.logger.Error("upsert project failed", logging.String(logging.FieldProjectID, id), logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if _, err := h.lifecycle.EnsureScheduled(ctx, id, time.Now().UTC()); err != nil {
		h.logger.Error("schedule project failed", logging.String(logging.FieldProjectID, id), logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.getProjectByID(c, id)
}

// GetProject handles GET /projects/:id.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	h.getProjectByID(c, c.Param("id"))
}

func (h *ProjectHandler) getProjectByID(c *gin.Context, id string) {
	project, err := h.store.GetProject(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get project failed", logging.String(logging.FieldProjectID, id), logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if project == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	c.JSON(http.StatusOK, projectResponse(project))
}

// ListProjects handles GET /projects.
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	projects, err := h.store.ListProjects(c.Request.Context())
	if err != nil {
		h.logger.Error("list projects failed", logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]ProjectResponse, 0, len(projects))
	for _, project := range projects {
		out = append(out, projectResponse(project))
	}
	c.JSON(http.StatusOK, gin.H{"projects": out})
}

// PostPause handles POST /projects/:id/pause.
func (h *ProjectHandler) PostPause(c *gin.Context) {
	id := c.Param("id")
	if err := h.lifecycle.PauseProject(c.Request.Context(), id); err != nil {
		h.renderProjectError(c, id, err)
		return
	}
	h.getProjectByID(c, id)
}

// PostResume handles POST /projects/:id/resume.
func (h *ProjectHandler) PostResume(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.lifecycle.ResumeProject(c.Request.Context(), id, time.Now().UTC()); err != nil {
		h.renderProjectError(c, id, err)
		return
	}
	h.getProjectByID(c, id)
}

// PutCadence handles PUT /projects/:id/cadence.
func (h *ProjectHandler) PutCadence(c *gin.Context) {
	id := c.Param("id")
	var req CadenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	cad, err := cadenceFromRequest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.lifecycle.UpdateCadence(c.Request.Context(), id, cad, time.Now().UTC()); err != nil {
		h.renderProjectError(c, id, err)
		return
	}
	h.getProjectByID(c, id)
}

// PutTimezone handles PUT /projects/:id/timezone.
func (h *ProjectHandler) PutTimezone(c *gin.Context) {
	id := c.Param("id")
	var req TimezoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if _, err := h.lifecycle.UpdateTimezone(c.Request.Context(), id, req.Timezone, time.Now().UTC()); err != nil {
		if errors.Is(err, services.ErrScheduling) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown timezone"})
			return
		}
		h.renderProjectError(c, id, err)
		return
	}
	h.getProjectByID(c, id)
}

// PostNote handles POST /projects/:id/notes.
func (h *ProjectHandler) PostNote(c *gin.Context) {
	id := c.Param("id")
	var req NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	note, err := h.lifecycle.AddNote(c.Request.Context(), id, req.Note, req.AppliesToEpisodeID)
	if err != nil {
		if errors.Is(err, services.ErrConfiguration) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.renderProjectError(c, id, err)
		return
	}
	c.JSON(http.StatusCreated, noteResponse(note))
}

// ListNotes handles GET /projects/:id/notes.
func (h *ProjectHandler) ListNotes(c *gin.Context) {
	id := c.Param("id")
	notes, err := h.store.NotesByProject(c.Request.Context(), id, 100)
	if err != nil {
		h.logger.Error("list notes failed", logging.String(logging.FieldProjectID, id), logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]NoteResponse, 0, len(notes))
	for _, note := range notes {
		out = append(out, noteResponse(note))
	}
	c.JSON(http.StatusOK, gin.H{"notes": out})
}

// ListEpisodes handles GET /projects/:id/episodes.
func (h *ProjectHandler) ListEpisodes(c *gin.Context) {
	id := c.Param("id")
	episodes, err := h.store.EpisodesByProject(c.Request.Context(), id, 50)
	if err != nil {
		h.logger.Error("list episodes failed", logging.String(logging.FieldProjectID, id), logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]EpisodeResponse, 0, len(episodes))
	for _, episode := range episodes {
		out = append(out, episodeResponse(episode))
	}
	c.JSON(http.StatusOK, gin.H{"episodes": out})
}

// GetQueue handles GET /queue. An optional status query filters entries.
func (h *ProjectHandler) GetQueue(c *gin.Context) {
	var statuses []store.EntryStatus
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, store.EntryStatus(strings.ToLower(strings.TrimSpace(part))))
		}
	}
	entries, err := h.store.ListEntries(c.Request.Context(), statuses, 100)
	if err != nil {
		h.logger.Error("list queue failed", logging.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]EntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entryResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

// GetStatus handles GET /status.
func (h *ProjectHandler) GetStatus(c *gin.Context) {
	health, err := h.store.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "disconnected"})
		return
	}
	res := StatusResponse{Status: "healthy", Database: "connected"}
	res.Queue.Total = health.Total
	res.Queue.Pending = health.Pending
	res.Queue.Processing = health.Processing
	res.Queue.Completed = health.Completed
	res.Queue.Failed = health.Failed
	res.Queue.Blocked = health.Blocked
	c.JSON(http.StatusOK, res)
}

func (h *ProjectHandler) renderProjectError(c *gin.Context, id string, err error) {
	h.logger.Error("project operation failed", logging.String(logging.FieldProjectID, id), logging.Error(err))
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
	case errors.Is(err, services.ErrScheduling):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func projectResponse(project *store.Project) ProjectResponse {
	res := ProjectResponse{
		ID:             project.ID,
		OrganizationID: project.OrganizationID,
		Name:           project.Name,
		Timezone:       project.Timezone,
		Priority:       project.Priority,
		Brief:          project.Brief,
		IsPaused:       project.IsPaused,
		Cadence: CadenceResponse{
			Mode:         string(project.Cadence.Mode),
			DeliveryHour: project.Cadence.DeliveryHour,
		},
	}
	for _, day := range project.Cadence.Days {
		res.Cadence.Days = append(res.Cadence.Days, strings.ToLower(day.String()))
	}
	if project.NextScheduledAt != nil {
		res.NextScheduledAt = project.NextScheduledAt.UTC().Format(time.RFC3339)
	}
	return res
}

func episodeResponse(episode *store.Episode) EpisodeResponse {
	res := EpisodeResponse{
		ID:              episode.ID,
		ProjectID:       episode.ProjectID,
		Status:          string(episode.Status),
		ScheduledFor:    episode.ScheduledFor.UTC().Format(time.RFC3339),
		DeliveredLate:   episode.DeliveredLate,
		Attempts:        episode.GenerationAttempts,
		FailureReason:   episode.FailureReason,
		ProgressStage:   episode.ProgressStage,
		ProgressPercent: episode.ProgressPercent,
	}
	if episode.PublishedAt != nil {
		res.PublishedAt = episode.PublishedAt.UTC().Format(time.RFC3339)
	}
	if episode.DeliveredAt != nil {
		res.DeliveredAt = episode.DeliveredAt.UTC().Format(time.RFC3339)
	}
	return res
}

func entryResponse(entry *store.QueueEntry) EntryResponse {
	res := EntryResponse{
		ID:                  entry.ID,
		EpisodeID:           entry.EpisodeID,
		ProjectID:           entry.ProjectID,
		Priority:            entry.Priority,
		Status:              string(entry.Status),
		GenerationStartTime: entry.GenerationStartTime.UTC().Format(time.RFC3339),
		TargetDeliveryTime:  entry.TargetDeliveryTime.UTC().Format(time.RFC3339),
		AttemptCount:        entry.AttemptCount,
	}
	if entry.Lease != nil {
		res.LeaseHolder = entry.Lease.Holder
		res.LeaseExpiresAt = entry.Lease.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if entry.NextRetryAt != nil {
		res.NextRetryAt = entry.NextRetryAt.UTC().Format(time.RFC3339)
	}
	return res
}

func noteResponse(note *store.PlanningNote) NoteResponse {
	return NoteResponse{
		ID:            note.ID,
		ProjectID:     note.ProjectID,
		Note:          note.Note,
		Status:        string(note.Status),
		RolloverCount: note.RolloverCount,
		CreatedAt:     note.CreatedAt.UTC().Format(time.RFC3339),
	}
}
