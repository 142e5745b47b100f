package models

import "time"

// Emergency queue actions.
const (
	ActionPause  = "pause"
	ActionResume = "resume"
)

// EmergencyQueueItem is an emergency action that could not be committed and
// waits in the local queue. It lives only in the device-local side-store.
type EmergencyQueueItem struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Action      string    `json:"action"`
	Topic       string    `json:"topic,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"user_id"`
	// TimeoutEnd is the deadline promised to the caller of a queued pause.
	TimeoutEnd *time.Time `json:"timeout_end,omitempty"`
}

// LocalEntry is a key/value row in the device-local side-store.
type LocalEntry struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}
