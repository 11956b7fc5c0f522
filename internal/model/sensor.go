package model

import "time"

// SensorType identifies the hardware family of a field sensor.
type SensorType string

const (
	SensorTypeUnitV  SensorType = "UNITV"
	SensorTypeUnitV2 SensorType = "UNITV2"
	SensorTypeOther  SensorType = "OTHER"
)

// SensorHealth is the derived liveness classification of a sensor or of a
// zone's sensor feed.
type SensorHealth string

const (
	HealthHealthy SensorHealth = "HEALTHY"
	HealthWarning SensorHealth = "WARNING"
	HealthOffline SensorHealth = "OFFLINE"
)

// Sensor tracks the liveness of one field sensor. Upserted by heartbeats and
// by zone-status reports alike. ZoneID is nil while a sensor is unbound.
type Sensor struct {
	ID            string     `gorm:"primaryKey;size:128"`
	Type          SensorType `gorm:"size:16;not null;default:OTHER"`
	ZoneID        *string    `gorm:"size:64;index"`
	Description   string
	LastHeartbeat *time.Time
	LastSeenIP    string    `gorm:"size:64"`
	CreatedAt     time.Time `gorm:"not null"`
}

// SensorEventType classifies an entry in the sensor event log.
type SensorEventType string

const (
	SensorEventHeartbeat    SensorEventType = "HEARTBEAT"
	SensorEventStatusUpdate SensorEventType = "STATUS_UPDATE"
)

// SensorEvent is an append-only record of a sensor contact.
type SensorEvent struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	SensorID  string          `gorm:"index;size:128;not null"`
	EventType SensorEventType `gorm:"size:16;not null"`
	CreatedAt time.Time       `gorm:"not null"`
}
