package model

import "time"

// StatusValue is a zone occupancy status as reported by sensors or forced by
// an override.
type StatusValue string

const (
	StatusAvailable StatusValue = "AVAILABLE"
	StatusLimited   StatusValue = "LIMITED"
	StatusFull      StatusValue = "FULL"
	StatusUnknown   StatusValue = "UNKNOWN"
)

// Confidence is a sensor's self-reported confidence in its reading.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ZoneStatus is the last accepted sensor report for a zone (hot table, one row
// per zone, fully replaced on each accepted report).
type ZoneStatus struct {
	ZoneID         string      `gorm:"primaryKey;size:64"`
	Status         StatusValue `gorm:"size:16;not null;default:UNKNOWN"`
	Confidence     Confidence  `gorm:"size:16;not null;default:LOW"`
	AvailableCount *int
	LastUpdated    time.Time `gorm:"not null"`
}
