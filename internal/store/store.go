package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-status-backend/internal/model"
	"parking-status-backend/internal/reconcile"
)

// DefaultEventLimit caps audit listings when the caller does not ask for a
// specific page size.
const DefaultEventLimit = 50

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	Zones(ctx context.Context) ([]model.Zone, error)
	Snapshot(ctx context.Context) ([]reconcile.EffectiveZoneView, error)
	ZoneView(ctx context.Context, zoneID string) (*reconcile.EffectiveZoneView, error)

	RecordZoneStatus(ctx context.Context, report ZoneStatusReport) (*StatusChange, error)
	RecordHeartbeat(ctx context.Context, hb Heartbeat) error

	ApplyOverride(ctx context.Context, zoneID string, change OverrideChange) (*StatusChange, model.OverrideAction, error)
	ExpiredOverrides(ctx context.Context, now time.Time) ([]model.ZoneOverride, error)
	ExpireOverride(ctx context.Context, zoneID string, now time.Time) (*StatusChange, error)
	OverrideEvents(ctx context.Context, zoneID string, limit int) ([]OverrideEventView, error)

	Sensors(ctx context.Context, now time.Time) ([]SensorView, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Zones lists the zone registry.
func (s *gormStore) Zones(ctx context.Context) ([]model.Zone, error) {
	var zones []model.Zone
	if err := s.db.WithContext(ctx).Order("id").Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	return zones, nil
}

// Snapshot returns the freshly reconciled view of every registered zone.
func (s *gormStore) Snapshot(ctx context.Context) ([]reconcile.EffectiveZoneView, error) {
	db := s.db.WithContext(ctx)

	var zones []model.Zone
	if err := db.Order("id").Find(&zones).Error; err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}

	var statuses []model.ZoneStatus
	if err := db.Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("failed to list zone statuses: %w", err)
	}
	statusMap := make(map[string]model.ZoneStatus, len(statuses))
	for _, st := range statuses {
		statusMap[st.ZoneID] = st
	}

	var overrides []model.ZoneOverride
	if err := db.Find(&overrides).Error; err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	overrideMap := make(map[string]model.ZoneOverride, len(overrides))
	for _, ov := range overrides {
		overrideMap[ov.ZoneID] = ov
	}

	views := make([]reconcile.EffectiveZoneView, 0, len(zones))
	for _, zone := range zones {
		var status *model.ZoneStatus
		if st, ok := statusMap[zone.ID]; ok {
			status = &st
		}
		var override *model.ZoneOverride
		if ov, ok := overrideMap[zone.ID]; ok {
			override = &ov
		}
		views = append(views, reconcile.Reconcile(zone, status, override))
	}
	return views, nil
}

// ZoneView reconciles a single zone from a fresh read. Returns (nil, nil) when
// the zone is not in the registry.
func (s *gormStore) ZoneView(ctx context.Context, zoneID string) (*reconcile.EffectiveZoneView, error) {
	return zoneView(s.db.WithContext(ctx), zoneID)
}

func zoneView(db *gorm.DB, zoneID string) (*reconcile.EffectiveZoneView, error) {
	var zone model.Zone
	if err := db.First(&zone, "id = ?", zoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load zone %s: %w", zoneID, err)
	}

	var status *model.ZoneStatus
	var st model.ZoneStatus
	if err := db.First(&st, "zone_id = ?", zoneID).Error; err == nil {
		status = &st
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load status for zone %s: %w", zoneID, err)
	}

	var override *model.ZoneOverride
	var ov model.ZoneOverride
	if err := db.First(&ov, "zone_id = ?", zoneID).Error; err == nil {
		override = &ov
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load override for zone %s: %w", zoneID, err)
	}

	view := reconcile.Reconcile(zone, status, override)
	return &view, nil
}

// RecordZoneStatus persists a sensor status report: full replace of the zone's
// status row plus a liveness upsert for the reporting sensor, in one
// transaction. The report is persisted even when the zone is unknown; the
// returned change then carries a nil view and nothing is surfaced.
func (s *gormStore) RecordZoneStatus(ctx context.Context, report ZoneStatusReport) (*StatusChange, error) {
	prior, err := s.ZoneView(ctx, report.ZoneID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lastUpdated := now
	if report.LastUpdated != nil {
		lastUpdated = report.LastUpdated.UTC()
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSensor(tx, report.SensorID, now, report.SourceIP, map[string]any{
			"zone_id": &report.ZoneID,
		}); err != nil {
			return err
		}
		if err := tx.Create(&model.SensorEvent{
			SensorID:  report.SensorID,
			EventType: model.SensorEventStatusUpdate,
			CreatedAt: now,
		}).Error; err != nil {
			return fmt.Errorf("failed to record sensor event: %w", err)
		}

		status := model.ZoneStatus{
			ZoneID:         report.ZoneID,
			Status:         report.Status,
			Confidence:     report.Confidence,
			AvailableCount: report.AvailableCount,
			LastUpdated:    lastUpdated,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "zone_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "confidence", "available_count", "last_updated"}),
		}).Create(&status).Error; err != nil {
			return fmt.Errorf("failed to upsert zone status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The report is durable from here on. A failed read-back costs one
	// broadcast, never the caller's success.
	after, err := s.ZoneView(ctx, report.ZoneID)
	if err != nil {
		log.Printf("zone %s: status recorded but read-back failed: %v", report.ZoneID, err)
		return &StatusChange{}, nil
	}
	return &StatusChange{View: after, BecameAvailable: becameAvailable(prior, after)}, nil
}

// RecordHeartbeat updates only the sensor's liveness record. Optional fields
// overwrite the stored ones when provided.
func (s *gormStore) RecordHeartbeat(ctx context.Context, hb Heartbeat) error {
	now := time.Now().UTC()
	extra := make(map[string]any)
	if hb.Type != nil {
		extra["type"] = *hb.Type
	}
	if hb.ZoneIDSet {
		// A present-but-null zone id unbinds the sensor.
		extra["zone_id"] = hb.ZoneID
	}
	if hb.Description != nil {
		extra["description"] = *hb.Description
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertSensor(tx, hb.SensorID, now, hb.SourceIP, extra); err != nil {
			return err
		}
		if err := tx.Create(&model.SensorEvent{
			SensorID:  hb.SensorID,
			EventType: model.SensorEventHeartbeat,
			CreatedAt: now,
		}).Error; err != nil {
			return fmt.Errorf("failed to record sensor event: %w", err)
		}
		return nil
	})
}

func upsertSensor(tx *gorm.DB, sensorID string, now time.Time, sourceIP string, extra map[string]any) error {
	assignments := map[string]any{
		"last_heartbeat": now,
		"last_seen_ip":   sourceIP,
	}
	for k, v := range extra {
		assignments[k] = v
	}

	sensor := model.Sensor{
		ID:            sensorID,
		Type:          model.SensorTypeOther,
		LastHeartbeat: &now,
		LastSeenIP:    sourceIP,
		CreatedAt:     now,
	}
	if t, ok := extra["type"].(model.SensorType); ok {
		sensor.Type = t
	}
	if z, ok := extra["zone_id"].(*string); ok {
		sensor.ZoneID = z
	}
	if d, ok := extra["description"].(string); ok {
		sensor.Description = d
	}

	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&sensor).Error; err != nil {
		return fmt.Errorf("failed to upsert sensor %s: %w", sensorID, err)
	}
	return nil
}

// ApplyOverride performs a set, update, or clear on the zone's override, with
// the matching audit event in the same transaction. Clear semantics apply when
// both forced fields are nil; clearing a zone with no override is a success
// no-op with no audit entry and a returned action of "".
func (s *gormStore) ApplyOverride(ctx context.Context, zoneID string, change OverrideChange) (*StatusChange, model.OverrideAction, error) {
	if strings.TrimSpace(change.Reason) == "" {
		return nil, "", ErrReasonRequired
	}

	var zone model.Zone
	if err := s.db.WithContext(ctx).First(&zone, "id = ?", zoneID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrZoneNotFound
		}
		return nil, "", fmt.Errorf("failed to load zone %s: %w", zoneID, err)
	}

	prior, err := s.ZoneView(ctx, zoneID)
	if err != nil {
		return nil, "", err
	}

	var action model.OverrideAction
	clearing := change.ForcedStatus == nil && change.ForcedAvailableCount == nil

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.ZoneOverride
		found := true
		if err := tx.First(&existing, "zone_id = ?", zoneID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("failed to load override for zone %s: %w", zoneID, err)
			}
			found = false
		}

		now := time.Now().UTC()
		operator := change.OperatorID

		if clearing {
			if !found {
				action = ""
				return nil
			}
			if err := tx.Delete(&model.ZoneOverride{ZoneID: zoneID}).Error; err != nil {
				return fmt.Errorf("failed to delete override for zone %s: %w", zoneID, err)
			}
			action = model.ActionClear
			event := model.OverrideEvent{
				ZoneID:               zoneID,
				Action:               model.ActionClear,
				BeforeStatus:         existing.ForcedStatus,
				BeforeAvailableCount: existing.ForcedAvailableCount,
				BeforeExpiresAt:      existing.ExpiresAt,
				Reason:               change.Reason,
				PerformedBy:          &operator,
				CreatedAt:            now,
			}
			if err := tx.Create(&event).Error; err != nil {
				return fmt.Errorf("failed to record override event: %w", err)
			}
			return nil
		}

		override := model.ZoneOverride{
			ZoneID:               zoneID,
			ForcedStatus:         change.ForcedStatus,
			ForcedAvailableCount: change.ForcedAvailableCount,
			Reason:               change.Reason,
			ExpiresAt:            change.ExpiresAt,
			UpdatedBy:            operator,
			UpdatedAt:            now,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "zone_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"forced_status", "forced_available_count", "reason", "expires_at", "updated_by", "updated_at"}),
		}).Create(&override).Error; err != nil {
			return fmt.Errorf("failed to upsert override for zone %s: %w", zoneID, err)
		}

		if found {
			action = model.ActionUpdate
		} else {
			action = model.ActionSet
		}
		event := model.OverrideEvent{
			ZoneID:              zoneID,
			Action:              action,
			AfterStatus:         change.ForcedStatus,
			AfterAvailableCount: change.ForcedAvailableCount,
			AfterExpiresAt:      change.ExpiresAt,
			Reason:              change.Reason,
			PerformedBy:         &operator,
			CreatedAt:           now,
		}
		if found {
			event.BeforeStatus = existing.ForcedStatus
			event.BeforeAvailableCount = existing.ForcedAvailableCount
			event.BeforeExpiresAt = existing.ExpiresAt
		}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("failed to record override event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	// The mutation is committed; a read-back failure only skips the
	// broadcast.
	after, err := s.ZoneView(ctx, zoneID)
	if err != nil {
		log.Printf("zone %s: override %s applied but read-back failed: %v", zoneID, action, err)
		return &StatusChange{}, action, nil
	}
	return &StatusChange{View: after, BecameAvailable: becameAvailable(prior, after)}, action, nil
}

// ExpiredOverrides lists overrides whose expiry has passed.
func (s *gormStore) ExpiredOverrides(ctx context.Context, now time.Time) ([]model.ZoneOverride, error) {
	var expired []model.ZoneOverride
	if err := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Find(&expired).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired overrides: %w", err)
	}
	return expired, nil
}

// ExpireOverride clears one expired override with an EXPIRE audit event,
// attributed to the system. The override is re-read inside the transaction so
// a concurrent operator update is not clobbered by a stale sweep; a skipped
// expiry returns (nil, nil).
func (s *gormStore) ExpireOverride(ctx context.Context, zoneID string, now time.Time) (*StatusChange, error) {
	prior, err := s.ZoneView(ctx, zoneID)
	if err != nil {
		return nil, err
	}

	expired := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.ZoneOverride
		if err := tx.First(&existing, "zone_id = ?", zoneID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to load override for zone %s: %w", zoneID, err)
		}
		if existing.ExpiresAt == nil || existing.ExpiresAt.After(now) {
			return nil
		}

		if err := tx.Delete(&model.ZoneOverride{ZoneID: zoneID}).Error; err != nil {
			return fmt.Errorf("failed to delete override for zone %s: %w", zoneID, err)
		}
		event := model.OverrideEvent{
			ZoneID:               zoneID,
			Action:               model.ActionExpire,
			BeforeStatus:         existing.ForcedStatus,
			BeforeAvailableCount: existing.ForcedAvailableCount,
			BeforeExpiresAt:      existing.ExpiresAt,
			Reason:               "Auto-expired by system",
			CreatedAt:            time.Now().UTC(),
		}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("failed to record override event: %w", err)
		}
		expired = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !expired {
		return nil, nil
	}

	after, err := s.ZoneView(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	return &StatusChange{View: after, BecameAvailable: becameAvailable(prior, after)}, nil
}

// OverrideEvents returns the newest audit entries for a zone, joined with the
// performer's email where one exists.
func (s *gormStore) OverrideEvents(ctx context.Context, zoneID string, limit int) ([]OverrideEventView, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	var events []OverrideEventView
	err := s.db.WithContext(ctx).
		Table("override_events").
		Select("override_events.id, override_events.zone_id, override_events.action, " +
			"override_events.before_status, override_events.before_available_count, override_events.before_expires_at, " +
			"override_events.after_status, override_events.after_available_count, override_events.after_expires_at, " +
			"override_events.reason, override_events.created_at, operators.email AS performed_by_email").
		Joins("LEFT JOIN operators ON operators.id = override_events.performed_by").
		Where("override_events.zone_id = ?", zoneID).
		Order("override_events.created_at DESC, override_events.id DESC").
		Limit(limit).
		Scan(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list override events for zone %s: %w", zoneID, err)
	}
	return events, nil
}

// Sensors lists the sensor fleet with zone names and derived health.
func (s *gormStore) Sensors(ctx context.Context, now time.Time) ([]SensorView, error) {
	var sensors []SensorView
	err := s.db.WithContext(ctx).
		Table("sensors").
		Select("sensors.id, sensors.type, sensors.zone_id, sensors.description, " +
			"sensors.last_heartbeat, sensors.last_seen_ip, zones.name AS zone_name").
		Joins("LEFT JOIN zones ON zones.id = sensors.zone_id").
		Order("sensors.id").
		Scan(&sensors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sensors: %w", err)
	}

	for i := range sensors {
		sensors[i].Health = reconcile.StaleLevel(sensors[i].LastHeartbeat, now)
	}
	return sensors, nil
}

func becameAvailable(prior, after *reconcile.EffectiveZoneView) bool {
	if after == nil || after.EffectiveStatus != model.StatusAvailable {
		return false
	}
	return prior == nil || prior.EffectiveStatus != model.StatusAvailable
}
