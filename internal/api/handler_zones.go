package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parking-status-backend/internal/model"
	"parking-status-backend/internal/reconcile"
)

// GetZones handles GET /api/zones: the static registry listing.
func (h *Handler) GetZones(c *gin.Context) {
	zones, err := h.store.Zones(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve zones"})
		return
	}
	c.JSON(http.StatusOK, zones)
}

// GetSnapshot handles GET /api/zones/snapshot: every zone's current reconciled
// view. This is the stream's initial payload and the polling fallback for
// clients that cannot hold a stream open.
func (h *Handler) GetSnapshot(c *gin.Context) {
	views, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to build snapshot"})
		return
	}
	c.JSON(http.StatusOK, views)
}

// overviewRow is a reconciled view enriched with the sensor-feed staleness
// classification for the admin console.
type overviewRow struct {
	reconcile.EffectiveZoneView
	StaleLevel model.SensorHealth `json:"staleLevel"`
}

// AdminOverview handles GET /api/admin/overview. The stale level is always
// computed from the raw sensor timestamp so an override cannot mask a silent
// sensor.
func (h *Handler) AdminOverview(c *gin.Context) {
	views, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to build overview"})
		return
	}

	now := time.Now().UTC()
	rows := make([]overviewRow, 0, len(views))
	for _, view := range views {
		rows = append(rows, overviewRow{
			EffectiveZoneView: view,
			StaleLevel:        reconcile.StaleLevel(view.LastUpdated, now),
		})
	}
	c.JSON(http.StatusOK, rows)
}
