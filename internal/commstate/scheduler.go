package commstate

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/zulandar/hearth/internal/metrics"
)

// recoveryTimeout bounds one recovery attempt fired from a timer.
const recoveryTimeout = 30 * time.Second

// Timer is a handle to a pending one-shot callback.
type Timer interface {
	Stop() bool
}

// AfterFunc arms f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type recoverFunc func(ctx context.Context, workspaceID string) (bool, error)

// Scheduler holds at most one pending recovery timer per workspace. A timer
// that fires re-checks the workspace before acting, so late or duplicate
// firings are harmless.
type Scheduler struct {
	mu        sync.Mutex
	timers    map[string]Timer
	afterFunc AfterFunc
	now       func() time.Time
	recover   recoverFunc
	metrics   *metrics.Metrics
	stopped   bool
}

func newScheduler(af AfterFunc, now func() time.Time, recover recoverFunc, m *metrics.Metrics) *Scheduler {
	if af == nil {
		af = stdAfterFunc
	}
	return &Scheduler{
		timers:    make(map[string]Timer),
		afterFunc: af,
		now:       now,
		recover:   recover,
		metrics:   m,
	}
}

// Schedule arms recovery for a workspace at timeoutEnd, replacing any timer
// already pending for it. A deadline in the past recovers immediately.
func (s *Scheduler) Schedule(workspaceID string, timeoutEnd time.Time) {
	delay := timeoutEnd.Sub(s.now())

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if t, ok := s.timers[workspaceID]; ok {
		t.Stop()
		delete(s.timers, workspaceID)
	}
	if delay <= 0 {
		s.mu.Unlock()
		s.Fire(workspaceID)
		return
	}
	var handle Timer
	handle = s.afterFunc(delay, func() {
		s.mu.Lock()
		if s.timers[workspaceID] == handle {
			delete(s.timers, workspaceID)
		}
		s.mu.Unlock()
		s.Fire(workspaceID)
	})
	s.timers[workspaceID] = handle
	s.mu.Unlock()
}

// Cancel stops the pending timer for a workspace, if any.
func (s *Scheduler) Cancel(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[workspaceID]; ok {
		t.Stop()
		delete(s.timers, workspaceID)
	}
}

// Pending reports whether a timer is armed for a workspace.
func (s *Scheduler) Pending(workspaceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[workspaceID]
	return ok
}

// Stop cancels every pending timer and refuses new ones.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.stopped = true
}

// Fire runs the guarded recovery for a workspace now. It reports whether
// the workspace was returned to calm.
func (s *Scheduler) Fire(workspaceID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), recoveryTimeout)
	defer cancel()

	recovered, err := s.recover(ctx, workspaceID)
	switch {
	case err != nil:
		log.Printf("commstate: recover %s: %v", workspaceID, err)
		s.metrics.RecordRecovery("failed")
	case recovered:
		s.metrics.RecordRecovery("recovered")
	default:
		s.metrics.RecordRecovery("skipped")
	}
	return recovered
}
