package mw

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"parking-status-backend/internal/model"
)

// OperatorKey is the gin context key under which OperatorAuth stores the
// resolved operator.
const OperatorKey = "operator"

// SensorKey rejects requests that do not carry the shared sensor secret in
// X-Sensor-Key. Bad credentials never reach the ingress logic.
func SensorKey(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "sensor ingress is not configured"})
			return
		}
		key := c.GetHeader("X-Sensor-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// OperatorAuth resolves X-Operator-Id against the operators table and requires
// the ADMIN role. The resolved operator is stored on the context for handlers
// that attribute mutations.
func OperatorAuth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		operatorID := c.GetHeader("X-Operator-Id")
		if operatorID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var operator model.Operator
		if err := db.First(&operator, "id = ?", operatorID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth check failed"})
			return
		}

		if operator.Role != model.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}

		c.Set(OperatorKey, operator)
		c.Next()
	}
}
