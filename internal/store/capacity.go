package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/hearth/internal/models"
	"gorm.io/gorm/clause"
)

// DayKey formats t as the YYYY-MM-DD key used by capacity rows.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SetCapacity upserts a member's declared capacity for the row's day
// (today when Day is empty).
func (s *Store) SetCapacity(ctx context.Context, c *models.CapacityStatus) error {
	if c.WorkspaceID == "" || c.UserID == "" {
		return fmt.Errorf("store: set capacity: workspace id and user id are required")
	}
	switch c.EnergyLevel {
	case models.EnergyLow, models.EnergyMedium, models.EnergyHigh:
	default:
		return fmt.Errorf("store: set capacity: unknown energy level %q", c.EnergyLevel)
	}
	if c.CognitiveLoad < 0 || c.CognitiveLoad > 10 {
		return fmt.Errorf("store: set capacity: cognitive load %d out of range 0-10", c.CognitiveLoad)
	}
	if c.Day == "" {
		c.Day = DayKey(s.now())
	}
	c.UpdatedAt = s.now()
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}, {Name: "user_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"energy_level", "cognitive_load", "updated_at"}),
	}).Create(c)
	if result.Error != nil {
		return fmt.Errorf("store: set capacity %s/%s: %w", c.WorkspaceID, c.UserID, result.Error)
	}
	return nil
}

// Capacity returns a member's capacity for day, or ErrNotFound.
func (s *Store) Capacity(ctx context.Context, workspaceID, userID, day string) (*models.CapacityStatus, error) {
	var c models.CapacityStatus
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND user_id = ? AND day = ?", workspaceID, userID, day).
		First(&c).Error; err != nil {
		return nil, fmt.Errorf("store: capacity %s/%s: %w", workspaceID, userID, notFound(err))
	}
	return &c, nil
}

// WorkspaceCapacity returns every member's capacity row for day.
func (s *Store) WorkspaceCapacity(ctx context.Context, workspaceID, day string) ([]models.CapacityStatus, error) {
	var out []models.CapacityStatus
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND day = ?", workspaceID, day).
		Order("user_id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: workspace capacity %s: %w", workspaceID, err)
	}
	return out, nil
}
