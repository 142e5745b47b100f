package models

import "time"

// DebugLoop records a recurring, unresolved clarification cycle between the
// two members. It is created open and closed exactly once.
type DebugLoop struct {
	ID                  string `gorm:"primaryKey;size:36"`
	WorkspaceID         string `gorm:"size:64;not null;index"`
	Participants        string `gorm:"type:json"` // JSON array of user ids
	TriggerEvent        string `gorm:"size:36"`
	LoopIndicators      string `gorm:"type:json"` // JSON array of strings
	DurationMinutes     int
	CreatedAt           time.Time  `gorm:"index"`
	ResolvedAt          *time.Time `gorm:"index"`
	ResolutionMethod    string     `gorm:"size:64"`
	EffectivenessRating *int
}

// IsOpen reports whether the loop is still unresolved.
func (l *DebugLoop) IsOpen() bool {
	return l.ResolvedAt == nil
}
