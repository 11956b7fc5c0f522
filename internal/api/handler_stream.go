package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-status-backend/internal/reconcile"
)

// StreamZones handles GET /api/stream/zones: a long-lived SSE connection.
// The subscriber receives one snapshot event on registration, then a
// zone_patch event per reconciliation and periodic keep-alives, until the
// peer closes the connection.
func (h *Handler) StreamZones(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// The hub reads the snapshot under its own lock, so a patch broadcast
	// during registration lands after the snapshot instead of being lost.
	id, err := h.hub.Subscribe(c.Writer, func() ([]reconcile.EffectiveZoneView, error) {
		return h.store.Snapshot(c.Request.Context())
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to build snapshot"})
		return
	}
	defer h.hub.Unsubscribe(id)

	// Park until the peer goes away. Broadcasts and keep-alives are written
	// by the hub from other goroutines.
	<-c.Request.Context().Done()
}
