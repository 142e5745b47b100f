package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/hearth/internal/models"
)

// CreateLoop appends an open debugging loop.
func (s *Store) CreateLoop(ctx context.Context, loop *models.DebugLoop) error {
	if loop.WorkspaceID == "" {
		return fmt.Errorf("store: create loop: workspace id is required")
	}
	if loop.ID == "" {
		loop.ID = uuid.NewString()
	}
	if loop.CreatedAt.IsZero() {
		loop.CreatedAt = s.now()
	}
	if loop.Participants == "" {
		loop.Participants = "[]"
	}
	if loop.LoopIndicators == "" {
		loop.LoopIndicators = "[]"
	}
	loop.ResolvedAt = nil
	if err := s.db.WithContext(ctx).Create(loop).Error; err != nil {
		return fmt.Errorf("store: create loop: %w", err)
	}
	return nil
}

// GetLoop returns a loop by id, or ErrNotFound.
func (s *Store) GetLoop(ctx context.Context, loopID string) (*models.DebugLoop, error) {
	var loop models.DebugLoop
	if err := s.db.WithContext(ctx).Where("id = ?", loopID).First(&loop).Error; err != nil {
		return nil, fmt.Errorf("store: get loop %s: %w", loopID, notFound(err))
	}
	return &loop, nil
}

// OpenLoops returns a workspace's unresolved loops, oldest first.
func (s *Store) OpenLoops(ctx context.Context, workspaceID string) ([]models.DebugLoop, error) {
	var out []models.DebugLoop
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND resolved_at IS NULL", workspaceID).
		Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: open loops %s: %w", workspaceID, err)
	}
	return out, nil
}

// RecentOrOpenLoops returns loops that are unresolved or were created at or
// after since.
func (s *Store) RecentOrOpenLoops(ctx context.Context, workspaceID string, since time.Time) ([]models.DebugLoop, error) {
	var out []models.DebugLoop
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND (resolved_at IS NULL OR created_at >= ?)", workspaceID, since).
		Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: recent loops %s: %w", workspaceID, err)
	}
	return out, nil
}

// LoopsSince returns loops created at or after since.
func (s *Store) LoopsSince(ctx context.Context, workspaceID string, since time.Time) ([]models.DebugLoop, error) {
	var out []models.DebugLoop
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND created_at >= ?", workspaceID, since).
		Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: loops %s: %w", workspaceID, err)
	}
	return out, nil
}

// CloseLoop resolves an open loop. A loop closes exactly once; closing it
// again returns ErrAlreadyResolved.
func (s *Store) CloseLoop(ctx context.Context, loopID, method string, rating int) (*models.DebugLoop, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("store: close loop %s: rating %d out of range 1-5", loopID, rating)
	}
	now := s.now()
	result := s.db.WithContext(ctx).Model(&models.DebugLoop{}).
		Where("id = ? AND resolved_at IS NULL", loopID).
		Updates(map[string]interface{}{
			"resolved_at":          now,
			"resolution_method":    method,
			"effectiveness_rating": rating,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("store: close loop %s: %w", loopID, result.Error)
	}
	loop, err := s.GetLoop(ctx, loopID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("store: close loop %s: %w", loopID, ErrAlreadyResolved)
	}
	return loop, nil
}
