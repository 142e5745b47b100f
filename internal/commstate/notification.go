package commstate

import (
	"context"
	"time"
)

// Notification kinds.
const (
	KindStateChange  = "state_change"
	KindAcknowledged = "acknowledged"
)

// Notification is the payload broadcast to the other member after a change.
type Notification struct {
	Kind        string     `json:"kind"`
	WorkspaceID string     `json:"workspace_id"`
	State       string     `json:"state"`
	Color       string     `json:"color"`
	Topic       string     `json:"topic,omitempty"`
	ActorID     string     `json:"actor_id,omitempty"`
	Trigger     string     `json:"trigger,omitempty"`
	TimeoutEnd  *time.Time `json:"timeout_end,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Notifier delivers notifications on a best-effort basis.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
