package commstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zulandar/hearth/internal/localstore"
	"github.com/zulandar/hearth/internal/metrics"
	"github.com/zulandar/hearth/internal/models"
)

// QueueKey is the side-store key holding the serialized queue.
const QueueKey = "emergency_queue"

// Queue keeps emergency actions that could not be committed and replays them
// in order once the store is reachable. It is owned by one process; only
// that process drains what it queued.
type Queue struct {
	mu    sync.Mutex
	items []models.EmergencyQueueItem

	drainMu sync.Mutex

	machine *Machine
	kv      localstore.KV
	key     string
	metrics *metrics.Metrics
	now     func() time.Time
}

// QueueOpts holds parameters for creating a Queue.
type QueueOpts struct {
	Machine *Machine
	KV      localstore.KV
	Key     string // defaults to QueueKey
	Metrics *metrics.Metrics
}

// DrainResult summarizes one pass of Process.
type DrainResult struct {
	Drained   int `json:"drained"`
	Dropped   int `json:"dropped"`
	Remaining int `json:"remaining"`
}

// NewQueue creates an empty queue. Call Initialize to restore persisted items.
func NewQueue(opts QueueOpts) (*Queue, error) {
	if opts.Machine == nil {
		return nil, fmt.Errorf("commstate: machine is required")
	}
	if opts.KV == nil {
		return nil, fmt.Errorf("commstate: local store is required")
	}
	key := opts.Key
	if key == "" {
		key = QueueKey
	}
	return &Queue{
		machine: opts.Machine,
		kv:      opts.KV,
		key:     key,
		metrics: opts.Metrics,
		now:     opts.Machine.now,
	}, nil
}

// Initialize loads persisted items into the queue. Items already present
// are not duplicated, so calling it twice is safe.
func (q *Queue) Initialize(ctx context.Context) error {
	stored, err := q.restore(ctx)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	seen := make(map[string]bool, len(q.items))
	for _, it := range q.items {
		seen[it.ID] = true
	}
	for _, it := range stored {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		q.items = append(q.items, it)
	}
	q.metrics.SetQueueDepth(len(q.items))
	return nil
}

// TriggerEmergencyPauseReliable pauses the workspace, falling back to the
// local queue when the store cannot be written. The pause always appears to
// succeed; only an unauthorized actor or an invalid transition is returned
// as an error.
func (q *Queue) TriggerEmergencyPauseReliable(ctx context.Context, workspaceID, topic, actorID string, duration time.Duration) (PauseResult, error) {
	if duration <= 0 {
		duration = q.machine.defaultDuration
	}
	now := q.now()
	res, err := q.machine.PauseUntil(ctx, workspaceID, topic, actorID, now.Add(duration))
	if err == nil {
		return res, nil
	}
	if rejected(err) {
		return PauseResult{}, err
	}
	log.Printf("commstate: pause %s failed, queuing: %v", workspaceID, err)
	end := now.Add(duration)
	q.enqueue(ctx, models.EmergencyQueueItem{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Action:      models.ActionPause,
		Topic:       topic,
		Timestamp:   now,
		UserID:      actorID,
		TimeoutEnd:  &end,
	})
	return PauseResult{Success: true, Queued: true, TimeoutEnd: end}, nil
}

// ResumeReliable resumes the workspace, queuing the request when the store
// cannot be written. The returned bool reports whether it was queued.
func (q *Queue) ResumeReliable(ctx context.Context, workspaceID, actorID string) (bool, error) {
	_, err := q.machine.Resume(ctx, workspaceID, actorID)
	if err == nil {
		return false, nil
	}
	if rejected(err) {
		return false, err
	}
	log.Printf("commstate: resume %s failed, queuing: %v", workspaceID, err)
	q.enqueue(ctx, models.EmergencyQueueItem{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Action:      models.ActionResume,
		Timestamp:   q.now(),
		UserID:      actorID,
	})
	return true, nil
}

// Process replays queued items oldest first. Each replayed item is removed
// from the side-store before the next is attempted; the first failure stops
// the pass and leaves that item and the rest queued. Items the machine
// rejects outright are dropped.
func (q *Queue) Process(ctx context.Context) (DrainResult, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	var res DrainResult
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			break
		}
		item := q.items[0]
		q.mu.Unlock()

		err := q.replay(ctx, item)
		if err != nil && !rejected(err) {
			res.Remaining = q.Len()
			return res, fmt.Errorf("commstate: drain %s %s: %w", item.Action, item.ID, err)
		}
		if err != nil {
			log.Printf("commstate: dropping queued %s %s: %v", item.Action, item.ID, err)
			q.metrics.RecordQueueEvent(item.Action, "dropped")
			res.Dropped++
		} else {
			q.metrics.RecordQueueEvent(item.Action, "drained")
			res.Drained++
		}

		q.mu.Lock()
		q.items = q.items[1:]
		ferr := q.flushLocked(ctx)
		q.mu.Unlock()
		if ferr != nil {
			res.Remaining = q.Len()
			return res, ferr
		}
	}
	return res, nil
}

// replay applies one queued item through the immediate path. A pause whose
// deadline passed while queued is recorded as history but not applied.
func (q *Queue) replay(ctx context.Context, item models.EmergencyQueueItem) error {
	switch item.Action {
	case models.ActionPause:
		end := item.Timestamp.Add(q.machine.defaultDuration)
		if item.TimeoutEnd != nil {
			end = *item.TimeoutEnd
		}
		if !end.After(q.now()) {
			if err := q.machine.authorize(ctx, item.WorkspaceID, item.UserID, models.TriggerManual); err != nil {
				return err
			}
			if q.machine.events == nil {
				return nil
			}
			if _, err := q.machine.events.RecordEmergencyBreak(ctx, item.WorkspaceID, item.UserID, item.Topic, end); err != nil {
				return persistenceErr("record expired pause", err)
			}
			return nil
		}
		_, err := q.machine.PauseUntil(ctx, item.WorkspaceID, item.Topic, item.UserID, end)
		return err
	case models.ActionResume:
		_, err := q.machine.Resume(ctx, item.WorkspaceID, item.UserID)
		return err
	default:
		return fmt.Errorf("%w: unknown queued action %q", ErrInvalidTransition, item.Action)
	}
}

// Items returns a copy of the queued items, oldest first.
func (q *Queue) Items() []models.EmergencyQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.EmergencyQueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Flush writes the in-process queue to the side-store.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.flushLocked(ctx)
}

func (q *Queue) enqueue(ctx context.Context, item models.EmergencyQueueItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	q.metrics.RecordQueueEvent(item.Action, "queued")
	if err := q.flushLocked(ctx); err != nil {
		// The item stays in memory and is flushed with the next change.
		log.Printf("commstate: persist queue: %v", err)
	}
}

func (q *Queue) flushLocked(ctx context.Context) error {
	q.metrics.SetQueueDepth(len(q.items))
	if len(q.items) == 0 {
		if err := q.kv.Delete(ctx, q.key); err != nil {
			return fmt.Errorf("commstate: clear queue: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(q.items)
	if err != nil {
		return fmt.Errorf("commstate: encode queue: %w", err)
	}
	if err := q.kv.Put(ctx, q.key, string(data)); err != nil {
		return fmt.Errorf("commstate: persist queue: %w", err)
	}
	return nil
}

func (q *Queue) restore(ctx context.Context) ([]models.EmergencyQueueItem, error) {
	raw, ok, err := q.kv.Get(ctx, q.key)
	if err != nil {
		return nil, fmt.Errorf("commstate: restore queue: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var items []models.EmergencyQueueItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("commstate: decode queue: %w", err)
	}
	return items, nil
}

// rejected reports errors that replaying can never fix.
func rejected(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidTransition)
}
