package db

import (
	"encoding/json"
	"fmt"

	"github.com/zulandar/hearth/internal/config"
	"github.com/zulandar/hearth/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model stored in the shared relational store.
func AllModels() []interface{} {
	return []interface{}{
		&models.WorkspaceMember{},
		&models.CommunicationMode{},
		&models.CommunicationEvent{},
		&models.CommunicationStateTransition{},
		&models.DebugLoop{},
		&models.CapacityStatus{},
	}
}

// AutoMigrate creates or updates all shared tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedMembers upserts WorkspaceMember rows from configuration.
func SeedMembers(db *gorm.DB, ws config.WorkspaceConfig) error {
	for _, mc := range ws.Members {
		chatIDs, err := marshalJSON(mc.ChatIDs)
		if err != nil {
			return fmt.Errorf("db: marshal chat_ids for member %q: %w", mc.ID, err)
		}

		member := models.WorkspaceMember{
			WorkspaceID: ws.ID,
			UserID:      mc.ID,
			Name:        mc.Name,
			ChatIDs:     chatIDs,
		}

		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "chat_ids"}),
		}).Create(&member)
		if result.Error != nil {
			return fmt.Errorf("db: seed member %q: %w", mc.ID, result.Error)
		}
	}
	return nil
}

// SeedMode creates the workspace's calm mode row if none exists yet. An
// existing row is left untouched.
func SeedMode(db *gorm.DB, workspaceID string) error {
	mode := models.CommunicationMode{
		WorkspaceID:  workspaceID,
		StateDisplay: models.StateCalm,
		StateColor:   models.ColorGreen,
		CurrentMode:  models.ModeNormal,
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}},
		DoNothing: true,
	}).Create(&mode)
	if result.Error != nil {
		return fmt.Errorf("db: seed mode for %q: %w", workspaceID, result.Error)
	}
	return nil
}

// marshalJSON marshals a value to a JSON string, returning "[]" for nil slices.
func marshalJSON(v []string) (string, error) {
	if v == nil {
		return "[]", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
