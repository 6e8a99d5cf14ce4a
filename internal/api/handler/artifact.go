package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voicelingua/voicelingua/internal/coordinator"
)

// ArtifactHandler serves the packaged result artifact.
type ArtifactHandler struct {
	coord *coordinator.Coordinator
}

// NewArtifactHandler creates a new ArtifactHandler.
// Parameters:
//   - coord: pipeline coordinator.
// Returns:
//   - *ArtifactHandler: handler instance.
func NewArtifactHandler(coord *coordinator.Coordinator) *ArtifactHandler {
	return &ArtifactHandler{coord: coord}
}

// GetArtifact handles GET /api/v1/jobs/:id/artifact. The raw compact blob is
// returned by default; ?decode=true returns the expanded record as JSON.
func (h *ArtifactHandler) GetArtifact(c *gin.Context) {
	record, raw, err := h.coord.GetArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("decode") == "true" {
		c.JSON(http.StatusOK, record)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+c.Param("id")+`.bin"`)
	c.Data(http.StatusOK, "application/octet-stream", raw)
}
