package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parking-status-backend/internal/model"
	"parking-status-backend/internal/store"
)

type zoneStatusRequest struct {
	SensorID       string     `json:"sensorId" binding:"required"`
	ZoneID         string     `json:"zoneId" binding:"required"`
	Status         string     `json:"status" binding:"required,oneof=AVAILABLE LIMITED FULL UNKNOWN"`
	Confidence     string     `json:"confidence" binding:"required,oneof=HIGH MEDIUM LOW"`
	AvailableCount *int       `json:"availableCount" binding:"omitempty,gte=0"`
	LastUpdated    *time.Time `json:"lastUpdated"`
}

// PostZoneStatus handles POST /api/sensors/zone-status: a sensor's status
// report for one zone. A report for a zone the registry does not know is
// persisted but never surfaced.
func (h *Handler) PostZoneStatus(c *gin.Context) {
	var req zoneStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	change, err := h.store.RecordZoneStatus(c.Request.Context(), store.ZoneStatusReport{
		SensorID:       req.SensorID,
		ZoneID:         req.ZoneID,
		Status:         model.StatusValue(req.Status),
		Confidence:     model.Confidence(req.Confidence),
		AvailableCount: req.AvailableCount,
		LastUpdated:    req.LastUpdated,
		SourceIP:       c.ClientIP(),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.publish(change)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// nullableString distinguishes an absent JSON field from an explicit null.
type nullableString struct {
	Present bool
	Value   *string
}

func (n *nullableString) UnmarshalJSON(data []byte) error {
	n.Present = true
	if string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, &n.Value)
}

type heartbeatRequest struct {
	SensorID    string         `json:"sensorId" binding:"required"`
	Type        *string        `json:"type" binding:"omitempty,oneof=UNITV UNITV2 OTHER"`
	ZoneID      nullableString `json:"zoneId"`
	Description *string        `json:"description"`
}

// PostHeartbeat handles POST /api/sensors/heartbeat: liveness only, no status
// mutation and no broadcast. An explicit null zoneId unbinds the sensor; an
// absent one leaves the binding untouched.
func (h *Handler) PostHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hb := store.Heartbeat{
		SensorID:    req.SensorID,
		ZoneID:      req.ZoneID.Value,
		ZoneIDSet:   req.ZoneID.Present,
		Description: req.Description,
		SourceIP:    c.ClientIP(),
	}
	if req.Type != nil {
		sensorType := model.SensorType(*req.Type)
		hb.Type = &sensorType
	}

	if err := h.store.RecordHeartbeat(c.Request.Context(), hb); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AdminSensors handles GET /api/admin/sensors: the sensor fleet with derived
// health.
func (h *Handler) AdminSensors(c *gin.Context) {
	sensors, err := h.store.Sensors(c.Request.Context(), time.Now().UTC())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve sensors"})
		return
	}
	c.JSON(http.StatusOK, sensors)
}
