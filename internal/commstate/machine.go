package commstate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/zulandar/hearth/internal/metrics"
	"github.com/zulandar/hearth/internal/models"
	"github.com/zulandar/hearth/internal/store"
)

// DefaultPauseDuration applies when a pause is requested without a duration.
const DefaultPauseDuration = 20 * time.Minute

// ModeStore reads and upserts the per-workspace mode row. GetMode returns an
// error matching store.ErrNotFound when the workspace has no row yet.
type ModeStore interface {
	GetMode(ctx context.Context, workspaceID string) (*models.CommunicationMode, error)
	UpsertMode(ctx context.Context, mode *models.CommunicationMode) error
	PausedModes(ctx context.Context) ([]models.CommunicationMode, error)
	SetPartnerAcknowledged(ctx context.Context, workspaceID string, acknowledged bool) error
}

// TransitionAuditor appends audit records.
type TransitionAuditor interface {
	AppendTransition(ctx context.Context, tr *models.CommunicationStateTransition) error
}

// Membership answers whether a user belongs to a workspace.
type Membership interface {
	IsMember(ctx context.Context, workspaceID, userID string) (bool, error)
}

// EventRecorder appends the emergency_break event for a pause.
type EventRecorder interface {
	RecordEmergencyBreak(ctx context.Context, workspaceID, userID, topic string, timeoutEnd time.Time) (*models.CommunicationEvent, error)
}

// StateChange is a requested move to a new state.
type StateChange struct {
	State      string
	Topic      string
	Color      string     // ignored; the color is always derived from State
	Trigger    string     // defaults to manual
	Confidence *float64   // nil records full confidence
	TimeoutEnd *time.Time // pause deadline; defaults to now + DefaultPauseDuration
}

// EmergencyState is the read-only projection of the pause state.
type EmergencyState struct {
	IsEmergency   bool   `json:"is_emergency"`
	CanPause      bool   `json:"can_pause"`
	CurrentTopic  string `json:"current_topic,omitempty"`
	TimeRemaining *int   `json:"time_remaining,omitempty"` // minutes; nil unless paused
}

// PauseResult is returned by the pause operations.
type PauseResult struct {
	Success    bool                      `json:"success"`
	Queued     bool                      `json:"queued"`
	TimeoutEnd time.Time                 `json:"timeout_end"`
	Mode       *models.CommunicationMode `json:"mode,omitempty"`
}

// Machine owns the calm/tense/paused state of workspaces.
type Machine struct {
	modes    ModeStore
	audit    TransitionAuditor
	members  Membership
	events   EventRecorder
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time

	defaultDuration time.Duration
	scheduler       *Scheduler

	pending sync.WaitGroup
}

// Opts holds parameters for creating a Machine.
type Opts struct {
	Modes    ModeStore
	Audit    TransitionAuditor
	Members  Membership
	Events   EventRecorder // optional
	Notifier Notifier      // optional
	Metrics  *metrics.Metrics
	Now      func() time.Time

	DefaultDuration time.Duration
	AfterFunc       AfterFunc // timer primitive; defaults to time.AfterFunc
}

// New creates a Machine.
func New(opts Opts) (*Machine, error) {
	if opts.Modes == nil {
		return nil, fmt.Errorf("commstate: mode store is required")
	}
	if opts.Audit == nil {
		return nil, fmt.Errorf("commstate: transition auditor is required")
	}
	if opts.Members == nil {
		return nil, fmt.Errorf("commstate: membership is required")
	}
	m := &Machine{
		modes:           opts.Modes,
		audit:           opts.Audit,
		members:         opts.Members,
		events:          opts.Events,
		notifier:        opts.Notifier,
		metrics:         opts.Metrics,
		now:             opts.Now,
		defaultDuration: opts.DefaultDuration,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.defaultDuration <= 0 {
		m.defaultDuration = DefaultPauseDuration
	}
	m.scheduler = newScheduler(opts.AfterFunc, m.now, m.recoverIfPaused, opts.Metrics)
	return m, nil
}

// Scheduler returns the recovery scheduler owned by the machine.
func (m *Machine) Scheduler() *Scheduler {
	return m.scheduler
}

// Wait blocks until in-flight audit appends and notifications finish.
func (m *Machine) Wait() {
	m.pending.Wait()
}

// Close stops pending recovery timers and waits for audit appends and
// notifications.
func (m *Machine) Close() {
	m.scheduler.Stop()
	m.Wait()
}

// UpdateState validates and applies a state change for a workspace. The
// actor must be a workspace member; system triggers (timeout, auto_pattern)
// may pass an empty actor. Requesting the current state is a no-op that
// returns the current row without writing.
func (m *Machine) UpdateState(ctx context.Context, workspaceID string, change StateChange, actorID string) (*models.CommunicationMode, error) {
	mode, _, err := m.updateState(ctx, workspaceID, change, actorID)
	return mode, err
}

// updateState reports whether the row changed alongside the resulting mode.
func (m *Machine) updateState(ctx context.Context, workspaceID string, change StateChange, actorID string) (*models.CommunicationMode, bool, error) {
	mode, changed, err := m.applyState(ctx, workspaceID, change, actorID)
	if err != nil {
		m.metrics.RecordRejection(rejectionReason(err))
	}
	return mode, changed, err
}

func (m *Machine) applyState(ctx context.Context, workspaceID string, change StateChange, actorID string) (*models.CommunicationMode, bool, error) {
	if change.Trigger == "" {
		change.Trigger = models.TriggerManual
	}
	if err := m.authorize(ctx, workspaceID, actorID, change.Trigger); err != nil {
		return nil, false, err
	}

	current, err := m.currentMode(ctx, workspaceID)
	if err != nil {
		return nil, false, err
	}
	from := current.StateDisplay
	if err := ValidateTransition(from, change.State); err != nil {
		return nil, false, err
	}
	if from == change.State {
		return current, false, nil
	}

	now := m.now()
	next := *current
	next.StateDisplay = change.State
	next.StateColor = ColorFor(change.State)
	next.CurrentMode = modeFor(change.State)
	next.PartnerAcknowledged = false
	next.UpdatedBy = actorID
	if next.UpdatedBy == "" {
		next.UpdatedBy = models.SystemUserID
	}

	switch change.State {
	case models.StateCalm:
		next.ActiveTopic = ""
		next.TimeoutEnd = nil
	case models.StateTense:
		if change.Topic != "" {
			next.ActiveTopic = change.Topic
		}
		next.TimeoutEnd = nil
	case models.StatePaused:
		if change.Topic != "" {
			next.ActiveTopic = change.Topic
		}
		end := now.Add(m.defaultDuration)
		if change.TimeoutEnd != nil {
			end = *change.TimeoutEnd
		}
		next.TimeoutEnd = &end
		if current.LastBreakTimestamp == nil || !sameDay(*current.LastBreakTimestamp, now) {
			next.BreakCountToday = 0
		}
		next.BreakCountToday++
		stamp := now
		next.LastBreakTimestamp = &stamp
	}

	if err := m.modes.UpsertMode(ctx, &next); err != nil {
		return nil, false, persistenceErr("write mode", err)
	}

	confidence := 1.0
	if change.Confidence != nil {
		confidence = math.Max(0, math.Min(*change.Confidence, 1))
	}
	tr := &models.CommunicationStateTransition{
		WorkspaceID:     workspaceID,
		FromState:       from,
		ToState:         change.State,
		TriggerType:     change.Trigger,
		TriggerUserID:   actorID,
		TopicContext:    next.ActiveTopic,
		ConfidenceScore: confidence,
		CreatedAt:       now,
	}
	if change.State == models.StateCalm {
		tr.TopicContext = current.ActiveTopic
	}
	m.metrics.RecordTransition(from, change.State, change.Trigger)

	if from == models.StatePaused {
		m.scheduler.Cancel(workspaceID)
	}
	if change.State == models.StatePaused {
		m.scheduler.Schedule(workspaceID, *next.TimeoutEnd)
	}

	m.publish(tr, Notification{
		Kind:        KindStateChange,
		WorkspaceID: workspaceID,
		State:       next.StateDisplay,
		Color:       next.StateColor,
		Topic:       next.ActiveTopic,
		ActorID:     actorID,
		Trigger:     change.Trigger,
		TimeoutEnd:  next.TimeoutEnd,
		Timestamp:   now,
	})
	return &next, true, nil
}

// authorize checks membership for a supplied actor. Manual changes must
// name an actor.
func (m *Machine) authorize(ctx context.Context, workspaceID, actorID, trigger string) error {
	if actorID == "" {
		if trigger == models.TriggerManual {
			return fmt.Errorf("%w: manual change without an actor", ErrUnauthorized)
		}
		return nil
	}
	ok, err := m.members.IsMember(ctx, workspaceID, actorID)
	if err != nil {
		return persistenceErr("check membership", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a member of %s", ErrUnauthorized, actorID, workspaceID)
	}
	return nil
}

// currentMode reads the mode row. A workspace without a row starts calm.
func (m *Machine) currentMode(ctx context.Context, workspaceID string) (*models.CommunicationMode, error) {
	mode, err := m.modes.GetMode(ctx, workspaceID)
	if errors.Is(err, store.ErrNotFound) {
		return &models.CommunicationMode{
			WorkspaceID:  workspaceID,
			StateDisplay: models.StateCalm,
			StateColor:   models.ColorGreen,
			CurrentMode:  models.ModeNormal,
		}, nil
	}
	if err != nil {
		return nil, persistenceErr("read mode", err)
	}
	return mode, nil
}

// notify publishes in the background. Failures are logged, never returned.
func (m *Machine) notify(n Notification) {
	m.publish(nil, n)
}

// publish runs the side effects of a committed change in the background:
// the audit append first, then the partner notification. Failures are
// logged, never returned. Wait blocks until they finish.
func (m *Machine) publish(tr *models.CommunicationStateTransition, n Notification) {
	if tr == nil && m.notifier == nil {
		return
	}
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if tr != nil {
			if err := m.audit.AppendTransition(ctx, tr); err != nil {
				log.Printf("commstate: audit %s %s->%s: %v", tr.WorkspaceID, tr.FromState, tr.ToState, err)
				m.metrics.RecordSideEffectError("audit")
			}
		}
		if m.notifier == nil {
			return
		}
		if err := m.notifier.Notify(ctx, n); err != nil {
			log.Printf("commstate: notify %s (%s): %v", n.WorkspaceID, n.State, err)
			m.metrics.RecordSideEffectError("notify")
		}
	}()
}

// TriggerEmergencyPause pauses the workspace for duration (the machine's
// default when zero) and arms the recovery timer. Pausing an already paused
// workspace succeeds and reports the existing deadline.
func (m *Machine) TriggerEmergencyPause(ctx context.Context, workspaceID, topic, actorID string, duration time.Duration) (PauseResult, error) {
	if duration <= 0 {
		duration = m.defaultDuration
	}
	return m.PauseUntil(ctx, workspaceID, topic, actorID, m.now().Add(duration))
}

// PauseUntil pauses the workspace with an explicit deadline and records the
// emergency_break event.
func (m *Machine) PauseUntil(ctx context.Context, workspaceID, topic, actorID string, timeoutEnd time.Time) (PauseResult, error) {
	mode, changed, err := m.updateState(ctx, workspaceID, StateChange{
		State:      models.StatePaused,
		Topic:      topic,
		Trigger:    models.TriggerManual,
		TimeoutEnd: &timeoutEnd,
	}, actorID)
	if err != nil {
		return PauseResult{}, err
	}
	if !changed {
		// Already paused: the existing pause and its timer stand.
		res := PauseResult{Success: true, Mode: mode}
		if mode.TimeoutEnd != nil {
			res.TimeoutEnd = *mode.TimeoutEnd
		}
		return res, nil
	}
	m.recordBreak(ctx, workspaceID, actorID, mode.ActiveTopic, timeoutEnd)
	return PauseResult{Success: true, TimeoutEnd: timeoutEnd, Mode: mode}, nil
}

func (m *Machine) recordBreak(ctx context.Context, workspaceID, actorID, topic string, timeoutEnd time.Time) {
	if m.events == nil {
		return
	}
	if _, err := m.events.RecordEmergencyBreak(ctx, workspaceID, actorID, topic, timeoutEnd); err != nil {
		log.Printf("commstate: record emergency break %s: %v", workspaceID, err)
		m.metrics.RecordSideEffectError("event")
	}
}

// Resume returns a workspace to calm on a member's request.
func (m *Machine) Resume(ctx context.Context, workspaceID, actorID string) (*models.CommunicationMode, error) {
	return m.UpdateState(ctx, workspaceID, StateChange{
		State:   models.StateCalm,
		Trigger: models.TriggerManual,
	}, actorID)
}

// Acknowledge records that the partner has seen the pause. The member who
// started the pause cannot acknowledge it.
func (m *Machine) Acknowledge(ctx context.Context, workspaceID, actorID string) (*models.CommunicationMode, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: acknowledge without an actor", ErrUnauthorized)
	}
	if err := m.authorize(ctx, workspaceID, actorID, models.TriggerManual); err != nil {
		return nil, err
	}
	mode, err := m.currentMode(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if !mode.IsPaused() {
		return nil, ErrNotPaused
	}
	if mode.UpdatedBy == actorID {
		return nil, fmt.Errorf("%w: %s started this pause", ErrUnauthorized, actorID)
	}
	if mode.PartnerAcknowledged {
		return mode, nil
	}
	if err := m.modes.SetPartnerAcknowledged(ctx, workspaceID, true); err != nil {
		return nil, persistenceErr("acknowledge", err)
	}
	mode.PartnerAcknowledged = true
	m.notify(Notification{
		Kind:        KindAcknowledged,
		WorkspaceID: workspaceID,
		State:       mode.StateDisplay,
		Color:       mode.StateColor,
		Topic:       mode.ActiveTopic,
		ActorID:     actorID,
		TimeoutEnd:  mode.TimeoutEnd,
		Timestamp:   m.now(),
	})
	return mode, nil
}

// GetEmergencyState projects the pause state. It never fails: on a read
// error it returns the safe default with both flags false.
func (m *Machine) GetEmergencyState(ctx context.Context, workspaceID string) EmergencyState {
	mode, err := m.currentMode(ctx, workspaceID)
	if err != nil {
		log.Printf("commstate: emergency state %s: %v", workspaceID, err)
		return EmergencyState{}
	}
	if !mode.IsPaused() {
		return EmergencyState{CanPause: true}
	}
	state := EmergencyState{IsEmergency: true, CurrentTopic: mode.ActiveTopic}
	if mode.TimeoutEnd != nil {
		minutes := int(math.Ceil(mode.TimeoutEnd.Sub(m.now()).Minutes()))
		if minutes < 0 {
			minutes = 0
		}
		state.TimeRemaining = &minutes
	}
	return state
}

// GetMode returns the workspace's current mode row; a workspace that was
// never written reads as calm.
func (m *Machine) GetMode(ctx context.Context, workspaceID string) (*models.CommunicationMode, error) {
	return m.currentMode(ctx, workspaceID)
}

// ScheduleStateRecovery arms recovery for a workspace at timeoutEnd.
func (m *Machine) ScheduleStateRecovery(workspaceID string, timeoutEnd time.Time) {
	m.scheduler.Schedule(workspaceID, timeoutEnd)
}

// Rearm schedules recovery for every paused workspace with a deadline.
// Deadlines already past recover immediately. Returns the number of
// workspaces scheduled.
func (m *Machine) Rearm(ctx context.Context) (int, error) {
	paused, err := m.modes.PausedModes(ctx)
	if err != nil {
		return 0, persistenceErr("list paused", err)
	}
	for _, mode := range paused {
		m.scheduler.Schedule(mode.WorkspaceID, *mode.TimeoutEnd)
	}
	return len(paused), nil
}

// recoverIfPaused returns a workspace to calm if it is still paused and its
// deadline has passed. A workspace that changed state since the timer was
// armed is left alone. One still paused with a later stored deadline (a
// re-pause elsewhere, or the store rounding the timestamp) is re-armed for
// that deadline.
func (m *Machine) recoverIfPaused(ctx context.Context, workspaceID string) (bool, error) {
	mode, err := m.currentMode(ctx, workspaceID)
	if err != nil {
		return false, err
	}
	if !mode.IsPaused() {
		return false, nil
	}
	if mode.TimeoutEnd != nil && mode.TimeoutEnd.After(m.now()) {
		m.scheduler.Schedule(workspaceID, *mode.TimeoutEnd)
		return false, nil
	}
	if _, err := m.UpdateState(ctx, workspaceID, StateChange{
		State:   models.StateCalm,
		Trigger: models.TriggerTimeout,
	}, ""); err != nil {
		return false, err
	}
	return true, nil
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
