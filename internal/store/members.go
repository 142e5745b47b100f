package store

import (
	"context"
	"fmt"

	"github.com/zulandar/hearth/internal/models"
)

// IsMember reports whether userID belongs to the workspace.
func (s *Store) IsMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.WorkspaceMember{}).
		Where("workspace_id = ? AND user_id = ?", workspaceID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("store: membership %s/%s: %w", workspaceID, userID, err)
	}
	return count > 0, nil
}

// Members lists a workspace's members ordered by user id.
func (s *Store) Members(ctx context.Context, workspaceID string) ([]models.WorkspaceMember, error) {
	var out []models.WorkspaceMember
	if err := s.db.WithContext(ctx).Where("workspace_id = ?", workspaceID).
		Order("user_id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: members %s: %w", workspaceID, err)
	}
	return out, nil
}
