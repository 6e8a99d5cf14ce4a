package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voicelingua/voicelingua/internal/domain"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// respondError maps domain errors onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrJobNotFound),
		errors.Is(err, domain.ErrTranslationNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrNotCancellable),
		errors.Is(err, domain.ErrJobActive):
		c.JSON(http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrArtifactNotReady):
		c.JSON(http.StatusConflict, errorBody{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// respondBadRequest reports a client-side validation failure.
func respondBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: msg})
}
