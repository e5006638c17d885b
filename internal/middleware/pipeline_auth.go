package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "stocktracker/internal/errors"
)

// APIKeyHeader carries the shared secret for pipeline routes.
const APIKeyHeader = "X-API-Key"

// PipelineAuthMiddleware guards the refresh, backfill, and admin delete
// routes with a shared API key. An empty key disables the routes entirely.
func PipelineAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			abortWithAppError(c, apperrors.ErrPipelineNotConfigured)
			return
		}
		key := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			abortWithAppError(c, apperrors.ErrInvalidAPIKey)
			return
		}
		c.Next()
	}
}
