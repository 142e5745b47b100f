package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/hearth/internal/models"
)

// RecordEvent appends a communication event, assigning an id and timestamp
// when missing.
func (s *Store) RecordEvent(ctx context.Context, ev *models.CommunicationEvent) error {
	if ev.WorkspaceID == "" {
		return fmt.Errorf("store: record event: workspace id is required")
	}
	if ev.EventType == "" {
		return fmt.Errorf("store: record event: event type is required")
	}
	if ev.UserID == "" {
		ev.UserID = models.SystemUserID
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	if ev.Content == "" {
		ev.Content = "{}"
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("store: record event %s: %w", ev.EventType, err)
	}
	return nil
}

// RecordClarification appends an assumption_clarification event.
func (s *Store) RecordClarification(ctx context.Context, workspaceID, userID string, content map[string]any) (*models.CommunicationEvent, error) {
	payload, err := marshalContent(content)
	if err != nil {
		return nil, fmt.Errorf("store: record clarification: %w", err)
	}
	ev := &models.CommunicationEvent{
		WorkspaceID: workspaceID,
		UserID:      userID,
		EventType:   models.EventAssumptionClarification,
		Content:     payload,
	}
	if err := s.RecordEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// RecordEmergencyBreak appends an emergency_break event for a pause.
func (s *Store) RecordEmergencyBreak(ctx context.Context, workspaceID, userID, topic string, timeoutEnd time.Time) (*models.CommunicationEvent, error) {
	payload, err := marshalContent(map[string]any{
		"topic":       topic,
		"timeout_end": timeoutEnd.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("store: record emergency break: %w", err)
	}
	ev := &models.CommunicationEvent{
		WorkspaceID: workspaceID,
		UserID:      userID,
		EventType:   models.EventEmergencyBreak,
		Content:     payload,
	}
	if err := s.RecordEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// RecentEvents returns a workspace's events created at or after since,
// oldest first.
func (s *Store) RecentEvents(ctx context.Context, workspaceID string, since time.Time) ([]models.CommunicationEvent, error) {
	var out []models.CommunicationEvent
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND created_at >= ?", workspaceID, since).
		Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: recent events %s: %w", workspaceID, err)
	}
	return out, nil
}

// EventsOfType returns a workspace's events of one type created at or after since.
func (s *Store) EventsOfType(ctx context.Context, workspaceID, eventType string, since time.Time) ([]models.CommunicationEvent, error) {
	var out []models.CommunicationEvent
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND event_type = ? AND created_at >= ?", workspaceID, eventType, since).
		Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: %s events %s: %w", eventType, workspaceID, err)
	}
	return out, nil
}

// ResolveEvent marks an event resolved. Resolving twice is a no-op.
func (s *Store) ResolveEvent(ctx context.Context, eventID string) error {
	result := s.db.WithContext(ctx).Model(&models.CommunicationEvent{}).
		Where("id = ?", eventID).
		Update("resolved", true)
	if result.Error != nil {
		return fmt.Errorf("store: resolve event %s: %w", eventID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: resolve event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

func marshalContent(content map[string]any) (string, error) {
	if content == nil {
		return "{}", nil
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
