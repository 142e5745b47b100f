package models

import "time"

// WorkspaceMember links a user to the workspace they share.
type WorkspaceMember struct {
	WorkspaceID string `gorm:"primaryKey;size:64"`
	UserID      string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"size:128"`
	ChatIDs     string `gorm:"type:json"` // JSON array of Slack/Discord user ids
	CreatedAt   time.Time
}
