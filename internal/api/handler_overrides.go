package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"parking-status-backend/internal/model"
	"parking-status-backend/internal/mw"
	"parking-status-backend/internal/store"
)

type overrideRequest struct {
	ForcedStatus         *string    `json:"forcedStatus" binding:"omitempty,oneof=AVAILABLE LIMITED FULL UNKNOWN"`
	ForcedAvailableCount *int       `json:"forcedAvailableCount" binding:"omitempty,gte=0"`
	Reason               string     `json:"reason" binding:"required"`
	ExpiresAt            *time.Time `json:"expiresAt"`
}

// SetOverride handles PATCH /api/admin/zones/:zone_id/override. Both forced
// fields absent means clear; otherwise the override is created or replaced
// wholesale. Every mutation lands with its audit event in one transaction.
func (h *Handler) SetOverride(c *gin.Context) {
	zoneID := c.Param("zone_id")

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	operator := c.MustGet(mw.OperatorKey).(model.Operator)

	change := store.OverrideChange{
		ForcedAvailableCount: req.ForcedAvailableCount,
		Reason:               req.Reason,
		ExpiresAt:            req.ExpiresAt,
		OperatorID:           operator.ID,
	}
	if req.ForcedStatus != nil {
		forced := model.StatusValue(*req.ForcedStatus)
		change.ForcedStatus = &forced
	}

	result, _, err := h.store.ApplyOverride(c.Request.Context(), zoneID, change)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrZoneNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "zone not found"})
		case errors.Is(err, store.ErrReasonRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	h.publish(result)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetOverrideEvents handles GET /api/admin/zones/:zone_id/override-events:
// the audit trail, newest first.
func (h *Handler) GetOverrideEvents(c *gin.Context) {
	zoneID := c.Param("zone_id")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	events, err := h.store.OverrideEvents(c.Request.Context(), zoneID, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve override events"})
		return
	}
	c.JSON(http.StatusOK, events)
}
