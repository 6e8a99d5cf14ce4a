package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/voicelingua/voicelingua/internal/cache"
)

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db    *gorm.DB
	cache cache.Cache
}

// NewHealthHandler creates a new HealthHandler.
// Parameters:
//   - db: database handle probed for readiness.
//   - statusCache: cache probed for readiness.
// Returns:
//   - *HealthHandler: handler instance.
func NewHealthHandler(db *gorm.DB, statusCache cache.Cache) *HealthHandler {
	return &HealthHandler{db: db, cache: statusCache}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if err := h.cache.Ping(c.Request.Context()); err != nil {
		checks["cache"] = err.Error()
		healthy = false
	} else {
		checks["cache"] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}
