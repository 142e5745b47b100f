// Package notify delivers state-change notifications to the other member of
// a workspace: an in-process hub for live subscribers (the dashboard stream),
// the chat channel, and an optional local shell hook.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/zulandar/hearth/internal/commstate"
)

// subscriberBuffer is how many notifications a slow subscriber may fall
// behind before new ones are dropped for it.
const subscriberBuffer = 16

// Hub fans notifications out to per-workspace subscribers. Publishing never
// blocks: a subscriber whose buffer is full misses the notification.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan commstate.Notification
	nextID int
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan commstate.Notification)}
}

// Subscribe registers for notifications of one workspace. The returned
// cancel func unsubscribes and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(workspaceID string) (<-chan commstate.Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan commstate.Notification, subscriberBuffer)
	if h.subs[workspaceID] == nil {
		h.subs[workspaceID] = make(map[int]chan commstate.Notification)
	}
	h.subs[workspaceID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[workspaceID], id)
			if len(h.subs[workspaceID]) == 0 {
				delete(h.subs, workspaceID)
			}
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers for a workspace.
func (h *Hub) Subscribers(workspaceID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[workspaceID])
}

// Notify implements commstate.Notifier.
func (h *Hub) Notify(_ context.Context, n commstate.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs[n.WorkspaceID] {
		select {
		case ch <- n:
		default:
			log.Printf("notify: subscriber %d of %s is full, dropping %s", id, n.WorkspaceID, n.Kind)
		}
	}
	return nil
}

// Multi sends every notification to each notifier in order. All of them are
// attempted; their errors are joined.
type Multi []commstate.Notifier

// Notify implements commstate.Notifier.
func (m Multi) Notify(ctx context.Context, n commstate.Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
