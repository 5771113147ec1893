package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ServiceTokenHeader carries the shared secret for service-to-service routes.
const ServiceTokenHeader = "X-Service-Token"

// RequireServiceToken returns a middleware that guards internal routes with a
// shared secret, compared in constant time. An empty configured token locks
// the routes entirely.
func RequireServiceToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(ServiceTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Valid service token required",
				},
			})
			return
		}
		c.Next()
	}
}
