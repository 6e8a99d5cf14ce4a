// Package api assembles the HTTP surface of the pipeline.
package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/voicelingua/voicelingua/internal/api/handler"
	"github.com/voicelingua/voicelingua/internal/api/middleware"
	"github.com/voicelingua/voicelingua/internal/cache"
	"github.com/voicelingua/voicelingua/internal/config"
	"github.com/voicelingua/voicelingua/internal/coordinator"
)

// SetupRouter builds the gin engine with all routes and middleware attached.
// Parameters:
//   - cfg: server configuration (mode, CORS, upload limits).
//   - coord: pipeline coordinator.
//   - db: database handle, used by the health probe.
//   - statusCache: cache, used by the health probe.
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(cfg *config.Config, coord *coordinator.Coordinator, db *gorm.DB, statusCache cache.Cache) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(&cfg.Server.CORS))

	jobs := handler.NewJobHandler(coord, &cfg.Upload)
	translations := handler.NewTranslationHandler(coord)
	artifacts := handler.NewArtifactHandler(coord)
	health := handler.NewHealthHandler(db, statusCache)
	engines := handler.NewEngineHandler(&cfg.Transcription, &cfg.Translation)

	r.GET("/health", health.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", health.Health)

		v1.POST("/jobs/audio", jobs.CreateAudioJob)
		v1.POST("/jobs/text", jobs.CreateTextJob)
		v1.GET("/jobs/:id", jobs.GetJob)
		v1.GET("/jobs/:id/status", jobs.GetJobStatus)
		v1.GET("/jobs/:id/events", jobs.GetJobEvents)
		v1.GET("/jobs/:id/artifact", artifacts.GetArtifact)
		v1.DELETE("/jobs/:id", jobs.CancelJob)

		v1.GET("/translations/:language/:id/:source", translations.GetTranslation)
		v1.GET("/translation/engine/status", engines.EngineStatus)
	}

	return r
}
