package models

import "time"

// Transition triggers.
const (
	TriggerManual      = "manual"
	TriggerTimeout     = "timeout"
	TriggerAutoPattern = "auto_pattern"
)

// CommunicationStateTransition is the audit record of one accepted state change.
// Rows are written once and only read back for analytics.
type CommunicationStateTransition struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	WorkspaceID     string `gorm:"size:64;not null;index:idx_transition_ws_created"`
	FromState       string `gorm:"size:16;not null"`
	ToState         string `gorm:"size:16;not null"`
	TriggerType     string `gorm:"size:16;not null"`
	TriggerUserID   string `gorm:"size:64"`
	TopicContext    string `gorm:"type:text"`
	ConfidenceScore float64
	CreatedAt       time.Time `gorm:"index:idx_transition_ws_created"`
}
