package model

import "time"

// OperatorRole gates access to the admin surface.
type OperatorRole string

const (
	RoleAdmin OperatorRole = "ADMIN"
	RoleStaff OperatorRole = "STAFF"
)

// Operator is a human identity that may author overrides. Provisioned by an
// external admin path; this service only reads it for auth checks and for
// rendering audit entries.
type Operator struct {
	ID        string       `gorm:"primaryKey;size:64"`
	Email     string       `gorm:"uniqueIndex;size:255;not null"`
	Role      OperatorRole `gorm:"size:16;not null;default:STAFF"`
	CreatedAt time.Time    `gorm:"not null"`
}
