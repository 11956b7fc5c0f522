// Package reconcile derives the effective view of a zone from its sensor
// state and any active override. Everything here is pure: the functions never
// touch storage and the same inputs always produce the same output.
package reconcile

import (
	"time"

	"parking-status-backend/internal/model"
)

// Staleness thresholds for sensor data, measured against the raw sensor
// timestamp. An active override never masks sensor silence.
const (
	HealthyWithin = 30 * time.Second
	WarningWithin = 120 * time.Second
)

// EffectiveZoneView is the reconciled read model for one zone. It is computed
// on demand and never persisted; it is the only shape the stream transmits.
type EffectiveZoneView struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Capacity *int    `json:"capacity"`

	// Raw sensor fields, kept for transparency.
	Status         *model.StatusValue `json:"status"`
	Confidence     *model.Confidence  `json:"confidence"`
	AvailableCount *int               `json:"availableCount"`
	LastUpdated    *time.Time         `json:"lastUpdated"`

	// Raw override fields.
	ForcedStatus         *model.StatusValue `json:"forcedStatus"`
	ForcedAvailableCount *int               `json:"forcedAvailableCount"`
	ExpiresAt            *time.Time         `json:"expiresAt"`
	Reason               *string            `json:"reason"`
	OverrideUpdatedAt    *time.Time         `json:"overrideUpdatedAt"`

	// Merged fields.
	EffectiveStatus         model.StatusValue `json:"effectiveStatus"`
	EffectiveAvailableCount *int              `json:"effectiveAvailableCount"`
	EffectiveLastUpdated    *time.Time        `json:"effectiveLastUpdated"`
	OverrideActive          bool              `json:"overrideActive"`
}

// Reconcile merges a zone's sensor-reported state with any active override.
// status and override may each be nil when no row exists.
//
// Precedence: a non-nil forced field wins over the sensor field; an override
// row's presence alone sets OverrideActive and EffectiveLastUpdated, even when
// it forces only one of the two fields.
func Reconcile(zone model.Zone, status *model.ZoneStatus, override *model.ZoneOverride) EffectiveZoneView {
	view := EffectiveZoneView{
		ID:              zone.ID,
		Name:            zone.Name,
		Lat:             zone.Lat,
		Lng:             zone.Lng,
		Capacity:        zone.Capacity,
		EffectiveStatus: model.StatusUnknown,
	}

	if status != nil {
		s := status.Status
		c := status.Confidence
		t := status.LastUpdated
		view.Status = &s
		view.Confidence = &c
		view.AvailableCount = status.AvailableCount
		view.LastUpdated = &t

		view.EffectiveStatus = status.Status
		view.EffectiveAvailableCount = status.AvailableCount
		view.EffectiveLastUpdated = &t
	}

	if override != nil {
		view.ForcedStatus = override.ForcedStatus
		view.ForcedAvailableCount = override.ForcedAvailableCount
		view.ExpiresAt = override.ExpiresAt
		r := override.Reason
		u := override.UpdatedAt
		view.Reason = &r
		view.OverrideUpdatedAt = &u

		view.OverrideActive = true
		view.EffectiveLastUpdated = &u
		if override.ForcedStatus != nil {
			view.EffectiveStatus = *override.ForcedStatus
		}
		if override.ForcedAvailableCount != nil {
			view.EffectiveAvailableCount = override.ForcedAvailableCount
		}
	}

	return view
}

// StaleLevel classifies how recently a sensor last reported. A nil timestamp
// (no data at all) is OFFLINE.
func StaleLevel(lastUpdated *time.Time, now time.Time) model.SensorHealth {
	if lastUpdated == nil {
		return model.HealthOffline
	}
	age := now.Sub(*lastUpdated)
	switch {
	case age < HealthyWithin:
		return model.HealthHealthy
	case age < WarningWithin:
		return model.HealthWarning
	default:
		return model.HealthOffline
	}
}
