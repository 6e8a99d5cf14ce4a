package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/voicelingua/voicelingua/internal/config"
)

// CORS handles cross-origin requests according to configuration.
// Parameters:
//   - cfg: allowed origins; AllowAllOrigins echoes any Origin back.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func CORS(cfg *config.CORSConfig) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if cfg.AllowAllOrigins {
				c.Header("Access-Control-Allow-Origin", origin)
			} else if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
