package store

import (
	"context"
	"fmt"
	"time"

	"github.com/zulandar/hearth/internal/models"
)

// AppendTransition writes one audit record. Records are never updated.
func (s *Store) AppendTransition(ctx context.Context, tr *models.CommunicationStateTransition) error {
	if tr.WorkspaceID == "" {
		return fmt.Errorf("store: append transition: workspace id is required")
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = s.now()
	}
	if err := s.db.WithContext(ctx).Create(tr).Error; err != nil {
		return fmt.Errorf("store: append transition %s %s->%s: %w", tr.WorkspaceID, tr.FromState, tr.ToState, err)
	}
	return nil
}

// TransitionsSince returns a workspace's transitions created at or after since,
// oldest first.
func (s *Store) TransitionsSince(ctx context.Context, workspaceID string, since time.Time) ([]models.CommunicationStateTransition, error) {
	var out []models.CommunicationStateTransition
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND created_at >= ?", workspaceID, since).
		Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: transitions %s: %w", workspaceID, err)
	}
	return out, nil
}
