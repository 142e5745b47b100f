package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/hearth/internal/models"
	"gorm.io/gorm/clause"
)

// modeColumns are overwritten on upsert; everything but the key and CreatedAt.
var modeColumns = []string{
	"state_display",
	"state_color",
	"active_topic",
	"current_mode",
	"timeout_end",
	"break_count_today",
	"last_break_timestamp",
	"partner_acknowledged",
	"updated_by",
	"updated_at",
}

// GetMode returns the live mode row for a workspace, or ErrNotFound.
func (s *Store) GetMode(ctx context.Context, workspaceID string) (*models.CommunicationMode, error) {
	var mode models.CommunicationMode
	err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).First(&mode).Error
	if err != nil {
		return nil, fmt.Errorf("store: get mode %s: %w", workspaceID, notFound(err))
	}
	return &mode, nil
}

// UpsertMode writes the mode row keyed by workspace id. Concurrent writers
// are last-write-wins.
func (s *Store) UpsertMode(ctx context.Context, mode *models.CommunicationMode) error {
	if mode.WorkspaceID == "" {
		return fmt.Errorf("store: upsert mode: workspace id is required")
	}
	mode.UpdatedAt = s.now()

	// Insert without the surrogate key so the conflict is always on workspace_id.
	row := *mode
	row.ID = 0
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workspace_id"}},
		DoUpdates: clause.AssignmentColumns(modeColumns),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("store: upsert mode %s: %w", mode.WorkspaceID, result.Error)
	}
	if mode.CreatedAt.IsZero() {
		mode.CreatedAt = row.CreatedAt
	}
	return nil
}

// PausedModes returns every paused row that carries a recovery deadline.
func (s *Store) PausedModes(ctx context.Context) ([]models.CommunicationMode, error) {
	var modes []models.CommunicationMode
	if err := s.db.WithContext(ctx).
		Where("state_display = ? AND timeout_end IS NOT NULL", models.StatePaused).
		Order("timeout_end ASC").Find(&modes).Error; err != nil {
		return nil, fmt.Errorf("store: paused modes: %w", err)
	}
	return modes, nil
}

// SetPartnerAcknowledged flips the acknowledgement flag on the mode row.
func (s *Store) SetPartnerAcknowledged(ctx context.Context, workspaceID string, acknowledged bool) error {
	result := s.db.WithContext(ctx).Model(&models.CommunicationMode{}).
		Where("workspace_id = ?", workspaceID).
		Updates(map[string]interface{}{
			"partner_acknowledged": acknowledged,
			"updated_at":           s.now(),
		})
	if result.Error != nil {
		return fmt.Errorf("store: acknowledge %s: %w", workspaceID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: acknowledge %s: %w", workspaceID, ErrNotFound)
	}
	return nil
}

// ResetDailyBreakCounts zeroes break_count_today on rows whose last break
// happened before dayStart. Returns the number of rows reset.
func (s *Store) ResetDailyBreakCounts(ctx context.Context, dayStart time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.CommunicationMode{}).
		Where("break_count_today > 0 AND (last_break_timestamp IS NULL OR last_break_timestamp < ?)", dayStart).
		Update("break_count_today", 0)
	if result.Error != nil {
		return 0, fmt.Errorf("store: reset break counts: %w", result.Error)
	}
	return result.RowsAffected, nil
}
