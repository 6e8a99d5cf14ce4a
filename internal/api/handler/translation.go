package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/voicelingua/voicelingua/internal/coordinator"
	"github.com/voicelingua/voicelingua/internal/domain"
)

// TranslationHandler serves translation lookup endpoints.
type TranslationHandler struct {
	coord *coordinator.Coordinator
}

// NewTranslationHandler creates a new TranslationHandler.
// Parameters:
//   - coord: pipeline coordinator.
// Returns:
//   - *TranslationHandler: handler instance.
func NewTranslationHandler(coord *coordinator.Coordinator) *TranslationHandler {
	return &TranslationHandler{coord: coord}
}

// GetTranslation handles GET /api/v1/translations/:language/:id/:source.
// The id segment accepts either a job ID or an external identifier.
func (h *TranslationHandler) GetTranslation(c *gin.Context) {
	source := domain.SourceType(strings.ToUpper(c.Param("source")))
	if !source.Valid() {
		respondBadRequest(c, "source must be AUDIO or TEXT")
		return
	}

	result, err := h.coord.GetTranslation(c.Request.Context(),
		c.Param("language"), c.Param("id"), source)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
