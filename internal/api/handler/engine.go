package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voicelingua/voicelingua/internal/config"
)

// EngineHandler reports which model endpoints the pipeline is configured
// against.
type EngineHandler struct {
	transcription *config.TranscriptionConfig
	translation   *config.TranslationConfig
}

// NewEngineHandler creates a new EngineHandler.
// Parameters:
//   - transcription: speech-to-text endpoint configuration.
//   - translation: translation endpoint configuration.
// Returns:
//   - *EngineHandler: handler instance.
func NewEngineHandler(transcription *config.TranscriptionConfig, translation *config.TranslationConfig) *EngineHandler {
	return &EngineHandler{transcription: transcription, translation: translation}
}

// EngineStatus handles GET /api/v1/translation/engine/status. It is a
// configuration readout for operators, not a liveness probe: the endpoints
// are not contacted, and API keys are never included.
func (h *EngineHandler) EngineStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"transcription": gin.H{
			"base_url":   h.transcription.BaseURL,
			"model":      h.transcription.Model,
			"timeout":    h.transcription.Timeout.String(),
			"configured": h.transcription.BaseURL != "",
		},
		"translation": gin.H{
			"base_url":   h.translation.BaseURL,
			"model":      h.translation.Model,
			"timeout":    h.translation.Timeout.String(),
			"configured": h.translation.BaseURL != "",
		},
	})
}
