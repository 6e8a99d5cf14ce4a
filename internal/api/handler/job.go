package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voicelingua/voicelingua/internal/config"
	"github.com/voicelingua/voicelingua/internal/coordinator"
	"github.com/voicelingua/voicelingua/internal/logger"
)

// JobHandler serves job submission and lifecycle endpoints.
type JobHandler struct {
	coord  *coordinator.Coordinator
	upload *config.UploadConfig
}

// NewJobHandler creates a new JobHandler.
// Parameters:
//   - coord: pipeline coordinator.
//   - upload: upload directory and size limit.
// Returns:
//   - *JobHandler: handler instance.
func NewJobHandler(coord *coordinator.Coordinator, upload *config.UploadConfig) *JobHandler {
	return &JobHandler{coord: coord, upload: upload}
}

// textJobRequest is the JSON body of POST /api/v1/jobs/text.
type textJobRequest struct {
	Text       string   `json:"text" binding:"required"`
	Languages  []string `json:"languages" binding:"required,min=1"`
	ExternalID string   `json:"external_id"`
}

// CreateAudioJob handles POST /api/v1/jobs/audio (multipart form).
// Form fields: audio (file, required), languages (comma-separated, required),
// reference_text (optional).
func (h *JobHandler) CreateAudioJob(c *gin.Context) {
	ctx := c.Request.Context()

	file, err := c.FormFile("audio")
	if err != nil {
		respondBadRequest(c, "audio file is required")
		return
	}
	if h.upload.MaxSizeBytes > 0 && file.Size > h.upload.MaxSizeBytes {
		respondBadRequest(c, fmt.Sprintf("audio file exceeds %d bytes", h.upload.MaxSizeBytes))
		return
	}

	languages := parseLanguages(c.PostForm("languages"))
	if len(languages) == 0 {
		respondBadRequest(c, "at least one target language is required")
		return
	}

	if err := os.MkdirAll(h.upload.Dir, 0755); err != nil {
		logger.CtxError(ctx, "Failed to create upload directory: %v", err)
		respondError(c, err)
		return
	}
	storedName := uuid.New().String() + filepath.Ext(file.Filename)
	storedPath := filepath.Join(h.upload.Dir, storedName)
	if err := c.SaveUploadedFile(file, storedPath); err != nil {
		logger.CtxError(ctx, "Failed to store upload: %v", err)
		respondError(c, err)
		return
	}

	job, err := h.coord.SubmitAudioJob(ctx, coordinator.SubmitAudioRequest{
		AudioPath:     storedPath,
		Filename:      file.Filename,
		Languages:     languages,
		ReferenceText: c.PostForm("reference_text"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// CreateTextJob handles POST /api/v1/jobs/text.
func (h *JobHandler) CreateTextJob(c *gin.Context) {
	var req textJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "text and at least one language are required")
		return
	}

	job, err := h.coord.SubmitTextJob(c.Request.Context(), coordinator.SubmitTextRequest{
		Text:       req.Text,
		Languages:  req.Languages,
		ExternalID: req.ExternalID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// GetJob handles GET /api/v1/jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.coord.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// GetJobStatus handles GET /api/v1/jobs/:id/status, served from the cache
// when warm.
func (h *JobHandler) GetJobStatus(c *gin.Context) {
	status, err := h.coord.GetJobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": status})
}

// GetJobEvents handles GET /api/v1/jobs/:id/events.
func (h *JobHandler) GetJobEvents(c *gin.Context) {
	events, err := h.coord.GetEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// CancelJob handles DELETE /api/v1/jobs/:id. With ?purge=true a terminal job
// is removed entirely, including its stored artifact.
func (h *JobHandler) CancelJob(c *gin.Context) {
	if c.Query("purge") == "true" {
		if err := h.coord.PurgeJob(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "purged": true})
		return
	}
	if err := h.coord.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": "translation_cancelled"})
}

// parseLanguages splits a comma-separated language list, dropping blanks.
func parseLanguages(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if lang := strings.TrimSpace(part); lang != "" {
			out = append(out, lang)
		}
	}
	return out
}
