package store

import (
	"errors"
	"time"

	"parking-status-backend/internal/model"
	"parking-status-backend/internal/reconcile"
)

var (
	// ErrZoneNotFound is returned when an operation targets a zone that is
	// not in the registry.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrReasonRequired is returned when an override mutation carries no
	// reason.
	ErrReasonRequired = errors.New("override reason is required")
)

// ZoneStatusReport is a validated sensor status report ready for persistence.
type ZoneStatusReport struct {
	SensorID       string
	ZoneID         string
	Status         model.StatusValue
	Confidence     model.Confidence
	AvailableCount *int
	LastUpdated    *time.Time // nil means "now"
	SourceIP       string
}

// Heartbeat is a liveness-only sensor report. Optional fields update the
// sensor record only when provided. ZoneID carries three states: ZoneIDSet
// false leaves the binding alone, ZoneIDSet true with a nil ZoneID unbinds the
// sensor.
type Heartbeat struct {
	SensorID    string
	Type        *model.SensorType
	ZoneID      *string
	ZoneIDSet   bool
	Description *string
	SourceIP    string
}

// OverrideChange is a validated override mutation. Both forced fields nil
// means clear semantics.
type OverrideChange struct {
	ForcedStatus         *model.StatusValue
	ForcedAvailableCount *int
	Reason               string
	ExpiresAt            *time.Time
	OperatorID           string
}

// StatusChange is the result of a mutation that may alter a zone's effective
// view. View is nil when the zone is not in the registry (the mutation is
// still persisted, but there is nothing to surface). BecameAvailable reports
// an effective-status transition into AVAILABLE, used to trigger push
// notifications.
type StatusChange struct {
	View            *reconcile.EffectiveZoneView
	BecameAvailable bool
}

// OverrideEventView is an audit entry joined with the performer's identity.
// PerformedByEmail is nil for system actions.
type OverrideEventView struct {
	ID                   int64                `json:"id"`
	ZoneID               string               `json:"zoneId"`
	Action               model.OverrideAction `json:"action"`
	BeforeStatus         *model.StatusValue   `json:"beforeStatus"`
	BeforeAvailableCount *int                 `json:"beforeAvailableCount"`
	BeforeExpiresAt      *time.Time           `json:"beforeExpiresAt"`
	AfterStatus          *model.StatusValue   `json:"afterStatus"`
	AfterAvailableCount  *int                 `json:"afterAvailableCount"`
	AfterExpiresAt       *time.Time           `json:"afterExpiresAt"`
	Reason               string               `json:"reason"`
	PerformedByEmail     *string              `json:"performedByEmail"`
	CreatedAt            time.Time            `json:"createdAt"`
}

// SensorView is a sensor joined with its zone name and derived health.
type SensorView struct {
	ID            string             `json:"id"`
	Type          model.SensorType   `json:"type"`
	ZoneID        *string            `json:"zoneId"`
	ZoneName      *string            `json:"zoneName"`
	Description   string             `json:"description"`
	LastHeartbeat *time.Time         `json:"lastHeartbeat"`
	LastSeenIP    string             `json:"lastSeenIp"`
	Health        model.SensorHealth `json:"health" gorm:"-"`
}
