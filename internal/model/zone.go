package model

// Zone represents a physical parking area. Reference data: created and edited
// by an external admin path, read-only for this service.
type Zone struct {
	ID       string  `gorm:"primaryKey;size:64" json:"id"`
	Name     string  `gorm:"size:128;not null" json:"name"`
	Lat      float64 `gorm:"not null" json:"lat"`
	Lng      float64 `gorm:"not null" json:"lng"`
	Capacity *int    `json:"capacity"`
}
