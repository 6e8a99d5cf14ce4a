package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/voicelingua/voicelingua/internal/logger"
)

// RequestIDHeader is the header carrying the request ID, generated when the
// client does not supply one.
const RequestIDHeader = "X-Request-ID"

// RequestLogger assigns a request ID, injects it into the request context
// for downstream log correlation, and writes one structured access log line
// per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)

		ctx := logger.SetRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		entry := logger.With(logger.Fields{
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
			logger.FieldStatus:     c.Writer.Status(),
			"method":               c.Request.Method,
			"path":                 c.Request.URL.Path,
		})
		if c.Writer.Status() >= 500 {
			entry.Error(ctx, "Request failed")
		} else {
			entry.Info(ctx, "Request handled")
		}
	}
}
