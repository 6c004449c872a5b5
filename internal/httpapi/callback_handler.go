package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cadence/internal/lifecycle"
	"cadence/internal/logging"
	"cadence/internal/services"
)

// CallbackHandler receives the worker's progress, completion, and error
// reports. Callbacks are idempotent: the worker may retry them freely.
type CallbackHandler struct {
	lifecycle *lifecycle.Controller
	logger    *slog.Logger
}

// NewCallbackHandler builds the callback handler.
func NewCallbackHandler(ctrl *lifecycle.Controller, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{
		lifecycle: ctrl,
		logger:    logging.NewComponentLogger(logger, "httpapi"),
	}
}

func episodeIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("episodeID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid episode id"})
		return 0, false
	}
	return id, true
}

// PostProgress handles POST /callbacks/:episodeID/progress.
func (h *CallbackHandler) PostProgress(c *gin.Context) {
	episodeID, ok := episodeIDParam(c)
	if !ok {
		return
	}
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.lifecycle.HandleProgress(c.Request.Context(), episodeID, req.Stage, req.Percent, req.Message); err != nil {
		h.renderError(c, "progress", episodeID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PostComplete handles POST /callbacks/:episodeID/complete.
func (h *CallbackHandler) PostComplete(c *gin.Context) {
	episodeID, ok := episodeIDParam(c)
	if !ok {
		return
	}
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sourcesJSON := ""
	if len(req.Sources) > 0 {
		encoded, err := json.Marshal(req.Sources)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sources"})
			return
		}
		sourcesJSON = string(encoded)
	}

	if err := h.lifecycle.HandleCompletion(c.Request.Context(), episodeID, req.Content, sourcesJSON, req.CostUSD, time.Now().UTC()); err != nil {
		h.renderError(c, "complete", episodeID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PostError handles POST /callbacks/:episodeID/error.
func (h *CallbackHandler) PostError(c *gin.Context) {
	episodeID, ok := episodeIDParam(c)
	if !ok {
		return
	}
	var req ErrorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.lifecycle.HandleFailure(c.Request.Context(), episodeID, req.Error, time.Now().UTC()); err != nil {
		h.renderError(c, "error", episodeID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *CallbackHandler) renderError(c *gin.Context, callback string, episodeID int64, err error) {
	h.logger.Error("callback failed",
		logging.String("callback", callback),
		logging.Int64(logging.FieldEpisodeID, episodeID),
		logging.Error(err),
	)
	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
	case errors.Is(err, services.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
