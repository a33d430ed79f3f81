package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAdmin gates the admin API behind a static bearer token.
// An empty configured token disables the admin surface entirely.
func RequireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "admin api disabled",
				"request_id": GetRequestID(c),
			})
			return
		}

		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "authentication required",
				"request_id": GetRequestID(c),
			})
			return
		}

		c.Next()
	}
}
