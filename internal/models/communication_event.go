package models

import "time"

// Event types recorded in the communication log.
const (
	EventAssumptionClarification = "assumption_clarification"
	EventEmergencyBreak          = "emergency_break"
	EventSignal                  = "signal"
)

// SystemUserID marks events and transitions produced without a human actor.
const SystemUserID = "system"

// CommunicationEvent is an append-only entry in a workspace's communication log.
// Only Resolved changes after creation.
type CommunicationEvent struct {
	ID          string    `gorm:"primaryKey;size:36"`
	WorkspaceID string    `gorm:"size:64;not null;index:idx_event_ws_created"`
	UserID      string    `gorm:"size:64;not null"`
	EventType   string    `gorm:"size:32;not null;index"`
	Content     string    `gorm:"type:json"` // free-form JSON payload
	Resolved    bool      `gorm:"index"`
	CreatedAt   time.Time `gorm:"index:idx_event_ws_created"`
}
