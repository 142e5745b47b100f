package commstate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/hearth/internal/models"
	"github.com/zulandar/hearth/internal/store"
)

var (
	testStart = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	errDown   = errors.New("store unreachable")
)

const testWS = "ws-home"

// fakeStore implements every store-side collaborator of the machine in memory.
type fakeStore struct {
	mu          sync.Mutex
	modes       map[string]models.CommunicationMode
	transitions []models.CommunicationStateTransition
	events      []models.CommunicationEvent
	members     map[string]bool

	failReads    bool
	failWrites   bool
	failAudit    bool
	failMembers  bool
	failEvents   bool
	failWriteFor map[string]bool
	upserts      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		modes:        make(map[string]models.CommunicationMode),
		members:      make(map[string]bool),
		failWriteFor: make(map[string]bool),
	}
}

func (f *fakeStore) addMember(ws, user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[ws+"/"+user] = true
}

func (f *fakeStore) setFail(fn func(f *fakeStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeStore) seed(mode models.CommunicationMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes[mode.WorkspaceID] = mode
}

func (f *fakeStore) mode(ws string) (models.CommunicationMode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.modes[ws]
	return m, ok
}

func (f *fakeStore) allTransitions() []models.CommunicationStateTransition {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CommunicationStateTransition, len(f.transitions))
	copy(out, f.transitions)
	return out
}

func (f *fakeStore) allEvents() []models.CommunicationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CommunicationEvent, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeStore) GetMode(_ context.Context, ws string) (*models.CommunicationMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errDown
	}
	m, ok := f.modes[ws]
	if !ok {
		return nil, fmt.Errorf("fake: get mode %s: %w", ws, store.ErrNotFound)
	}
	return &m, nil
}

func (f *fakeStore) UpsertMode(_ context.Context, mode *models.CommunicationMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites || f.failWriteFor[mode.WorkspaceID] {
		return errDown
	}
	f.upserts++
	f.modes[mode.WorkspaceID] = *mode
	return nil
}

func (f *fakeStore) PausedModes(_ context.Context) ([]models.CommunicationMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errDown
	}
	var out []models.CommunicationMode
	for _, m := range f.modes {
		if m.StateDisplay == models.StatePaused && m.TimeoutEnd != nil {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out, nil
}

func (f *fakeStore) SetPartnerAcknowledged(_ context.Context, ws string, ack bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return errDown
	}
	m, ok := f.modes[ws]
	if !ok {
		return store.ErrNotFound
	}
	m.PartnerAcknowledged = ack
	f.modes[ws] = m
	return nil
}

func (f *fakeStore) AppendTransition(_ context.Context, tr *models.CommunicationStateTransition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAudit {
		return errDown
	}
	f.transitions = append(f.transitions, *tr)
	return nil
}

func (f *fakeStore) IsMember(_ context.Context, ws, user string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMembers {
		return false, errDown
	}
	return f.members[ws+"/"+user], nil
}

func (f *fakeStore) RecordEmergencyBreak(_ context.Context, ws, user, topic string, end time.Time) (*models.CommunicationEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEvents {
		return nil, errDown
	}
	ev := models.CommunicationEvent{
		ID:          fmt.Sprintf("ev-%d", len(f.events)+1),
		WorkspaceID: ws,
		UserID:      user,
		EventType:   models.EventEmergencyBreak,
		Content:     fmt.Sprintf(`{"topic":%q,"timeout_end":%q}`, topic, end.Format(time.RFC3339)),
	}
	f.events = append(f.events, ev)
	return &ev, nil
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *fakeNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

// fakeClock is a manual clock whose AfterFunc timers fire on Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
	clock   *fakeClock
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testStart}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f, clock: c}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// activeTimers counts timers neither stopped nor fired.
func (c *fakeClock) activeTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type harness struct {
	store    *fakeStore
	notifier *fakeNotifier
	clock    *fakeClock
	machine  *Machine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := newFakeStore()
	fs.addMember(testWS, "alice")
	fs.addMember(testWS, "bob")
	h := &harness{store: fs, notifier: &fakeNotifier{}, clock: newFakeClock()}
	m, err := New(Opts{
		Modes:     fs,
		Audit:     fs,
		Members:   fs,
		Events:    fs,
		Notifier:  h.notifier,
		Now:       h.clock.Now,
		AfterFunc: h.clock.AfterFunc,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(m.Close)
	h.machine = m
	return h
}

// transitions returns the audit trail once async appends have landed.
func (h *harness) transitions() []models.CommunicationStateTransition {
	h.machine.Wait()
	return h.store.allTransitions()
}

func (h *harness) seedState(state string) {
	h.store.seed(models.CommunicationMode{
		WorkspaceID:  testWS,
		StateDisplay: state,
		StateColor:   ColorFor(state),
		CurrentMode:  modeFor(state),
	})
}
