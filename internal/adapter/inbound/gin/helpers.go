package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetUserIDFromContext extracts user ID from gin context.
// Returns the user ID and true if successful, or uuid.Nil and false if not found.
func GetUserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return uuid.Nil, false
	}

	if userID, ok := userIDVal.(uuid.UUID); ok {
		return userID, true
	}

	if idStr, ok := userIDVal.(string); ok {
		userID, err := uuid.Parse(idStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
			return uuid.Nil, false
		}
		return userID, true
	}

	c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user ID"})
	return uuid.Nil, false
}
