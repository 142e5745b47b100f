package models

import "time"

// Energy levels a member can declare.
const (
	EnergyLow    = "low"
	EnergyMedium = "medium"
	EnergyHigh   = "high"
)

// CapacityStatus is a member's declared capacity for one day.
type CapacityStatus struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	WorkspaceID   string `gorm:"size:64;not null;uniqueIndex:idx_capacity_day"`
	UserID        string `gorm:"size:64;not null;uniqueIndex:idx_capacity_day"`
	Day           string `gorm:"size:10;not null;uniqueIndex:idx_capacity_day"` // YYYY-MM-DD
	EnergyLevel   string `gorm:"size:8;not null"`
	CognitiveLoad int    // 1-10
	UpdatedAt     time.Time
}
