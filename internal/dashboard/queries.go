package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/models"
	"github.com/zulandar/hearth/internal/store"
)

// modeView is the JSON shape of a workspace's live state.
type modeView struct {
	WorkspaceID         string     `json:"workspace_id"`
	State               string     `json:"state"`
	Color               string     `json:"color"`
	Mode                string     `json:"mode"`
	Topic               string     `json:"topic,omitempty"`
	TimeoutEnd          *time.Time `json:"timeout_end,omitempty"`
	BreakCountToday     int        `json:"break_count_today"`
	PartnerAcknowledged bool       `json:"partner_acknowledged"`
	UpdatedBy           string     `json:"updated_by,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type stateResponse struct {
	Mode       modeView                 `json:"mode"`
	Emergency  commstate.EmergencyState `json:"emergency"`
	QueueDepth int                      `json:"queue_depth"`
}

type eventView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"event_type"`
	Content   string    `json:"content"`
	Resolved  bool      `json:"resolved"`
	CreatedAt time.Time `json:"created_at"`
}

type loopView struct {
	ID                  string     `json:"id"`
	Participants        []string   `json:"participants"`
	TriggerEvent        string     `json:"trigger_event,omitempty"`
	Indicators          []string   `json:"indicators"`
	DurationMinutes     int        `json:"duration_minutes"`
	CreatedAt           time.Time  `json:"created_at"`
	ResolvedAt          *time.Time `json:"resolved_at,omitempty"`
	ResolutionMethod    string     `json:"resolution_method,omitempty"`
	EffectivenessRating *int       `json:"effectiveness_rating,omitempty"`
}

func toModeView(m *models.CommunicationMode) modeView {
	return modeView{
		WorkspaceID:         m.WorkspaceID,
		State:               m.StateDisplay,
		Color:               m.StateColor,
		Mode:                m.CurrentMode,
		Topic:               m.ActiveTopic,
		TimeoutEnd:          m.TimeoutEnd,
		BreakCountToday:     m.BreakCountToday,
		PartnerAcknowledged: m.PartnerAcknowledged,
		UpdatedBy:           m.UpdatedBy,
		UpdatedAt:           m.UpdatedAt,
	}
}

func toEventView(ev *models.CommunicationEvent) eventView {
	return eventView{
		ID:        ev.ID,
		UserID:    ev.UserID,
		Type:      ev.EventType,
		Content:   ev.Content,
		Resolved:  ev.Resolved,
		CreatedAt: ev.CreatedAt,
	}
}

func toLoopView(l *models.DebugLoop) loopView {
	return loopView{
		ID:                  l.ID,
		Participants:        store.DecodeList(l.Participants),
		TriggerEvent:        l.TriggerEvent,
		Indicators:          store.DecodeList(l.LoopIndicators),
		DurationMinutes:     l.DurationMinutes,
		CreatedAt:           l.CreatedAt,
		ResolvedAt:          l.ResolvedAt,
		ResolutionMethod:    l.ResolutionMethod,
		EffectivenessRating: l.EffectivenessRating,
	}
}

// loadState reads the mode row and the derived emergency view.
func (s *Server) loadState(ctx context.Context) (stateResponse, error) {
	mode, err := s.machine.GetMode(ctx, s.workspaceID)
	if err != nil {
		return stateResponse{}, err
	}
	return stateResponse{
		Mode:       toModeView(mode),
		Emergency:  s.machine.GetEmergencyState(ctx, s.workspaceID),
		QueueDepth: s.queue.Len(),
	}, nil
}

// recentEvents returns the workspace's events since the given time.
func (s *Server) recentEvents(ctx context.Context, since time.Time) ([]eventView, error) {
	events, err := s.store.RecentEvents(ctx, s.workspaceID, since)
	if err != nil {
		return nil, err
	}
	out := make([]eventView, 0, len(events))
	for i := range events {
		out = append(out, toEventView(&events[i]))
	}
	return out, nil
}

// loopsSince returns loops opened since the given time plus any still open.
func (s *Server) loopsSince(ctx context.Context, since time.Time) ([]loopView, error) {
	loops, err := s.store.RecentOrOpenLoops(ctx, s.workspaceID, since)
	if err != nil {
		return nil, err
	}
	out := make([]loopView, 0, len(loops))
	for i := range loops {
		out = append(out, toLoopView(&loops[i]))
	}
	return out, nil
}

// encodeContent serializes an event payload; an empty payload is "{}".
func encodeContent(content map[string]any) (string, error) {
	if len(content) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	return string(data), nil
}
