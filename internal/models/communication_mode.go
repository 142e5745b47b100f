package models

import "time"

// Communication states, in the order the UI presents them.
const (
	StateCalm   = "calm"
	StateTense  = "tense"
	StatePaused = "paused"
)

// State colors. A color is always derived from its state, never set on its own.
const (
	ColorGreen  = "green"
	ColorYellow = "yellow"
	ColorRed    = "red"
)

// Legacy mode values mirrored from the state for older clients.
const (
	ModeNormal         = "normal"
	ModeEmergencyBreak = "emergency_break"
)

// CommunicationMode is the single live state row for a workspace.
type CommunicationMode struct {
	ID                  uint       `gorm:"primaryKey;autoIncrement"`
	WorkspaceID         string     `gorm:"size:64;not null;uniqueIndex"`
	StateDisplay        string     `gorm:"size:16;not null"`
	StateColor          string     `gorm:"size:16;not null"`
	ActiveTopic         string     `gorm:"type:text"`
	CurrentMode         string     `gorm:"size:32;not null"`
	TimeoutEnd          *time.Time `gorm:"index"`
	BreakCountToday     int
	LastBreakTimestamp  *time.Time
	PartnerAcknowledged bool
	UpdatedBy           string `gorm:"size:64"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsPaused reports whether the workspace is in the emergency pause.
func (m *CommunicationMode) IsPaused() bool {
	return m != nil && m.StateDisplay == StatePaused
}
