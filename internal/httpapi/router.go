package httpapi

import (
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"cadence/internal/lifecycle"
	"cadence/internal/store"
)

// NewRouter assembles the gin engine: worker callbacks, project management,
// and the queue/status read surfaces.
func NewRouter(st *store.Store, ctrl *lifecycle.Controller, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "X-Request-ID"},
	}))

	callbacks := NewCallbackHandler(ctrl, logger)
	r.POST("/callbacks/:episodeID/progress", callbacks.PostProgress)
	r.POST("/callbacks/:episodeID/complete", callbacks.PostComplete)
	r.POST("/callbacks/:episodeID/error", callbacks.PostError)

	projects := NewProjectHandler(st, ctrl, logger)
	r.PUT("/projects/:id", projects.PutProject)
	r.GET("/projects/:id", projects.GetProject)
	r.GET("/projects", projects.ListProjects)
	r.POST("/projects/:id/pause", projects.PostPause)
	r.POST("/projects/:id/resume", projects.PostResume)
	r.PUT("/projects/:id/cadence", projects.PutCadence)
	r.PUT("/projects/:id/timezone", projects.PutTimezone)
	r.POST("/projects/:id/notes", projects.PostNote)
	r.GET("/projects/:id/notes", projects.ListNotes)
	r.GET("/projects/:id/episodes", projects.ListEpisodes)
	r.GET("/queue", projects.GetQueue)
	r.GET("/status", projects.GetStatus)

	return r
}
