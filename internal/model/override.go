package model

import "time"

// ZoneOverride is an operator-forced status and/or count for a zone. At most
// one row per zone; row presence is what makes an override active, so clearing
// deletes the row instead of nulling its fields.
type ZoneOverride struct {
	ZoneID               string       `gorm:"primaryKey;size:64"`
	ForcedStatus         *StatusValue `gorm:"size:16"`
	ForcedAvailableCount *int
	Reason               string `gorm:"not null"`
	ExpiresAt            *time.Time
	UpdatedBy            string    `gorm:"size:64;not null"`
	UpdatedAt            time.Time `gorm:"not null"`
}

// OverrideAction classifies an override ledger mutation.
type OverrideAction string

const (
	ActionSet    OverrideAction = "SET"
	ActionUpdate OverrideAction = "UPDATE"
	ActionClear  OverrideAction = "CLEAR"
	ActionExpire OverrideAction = "EXPIRE"
)

// OverrideEvent is one entry in the append-only override audit trail. Rows are
// inserted in the same transaction as the override mutation they record and
// are never updated or deleted. PerformedBy is nil for system actions (expiry
// sweep).
type OverrideEvent struct {
	ID                   int64          `gorm:"primaryKey;autoIncrement"`
	ZoneID               string         `gorm:"index;size:64;not null"`
	Action               OverrideAction `gorm:"size:16;not null"`
	BeforeStatus         *StatusValue   `gorm:"size:16"`
	BeforeAvailableCount *int
	BeforeExpiresAt      *time.Time
	AfterStatus          *StatusValue `gorm:"size:16"`
	AfterAvailableCount  *int
	AfterExpiresAt       *time.Time
	Reason               string
	PerformedBy          *string   `gorm:"size:64"`
	CreatedAt            time.Time `gorm:"not null;index"`
}
