package dashboard

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/models"
)

func TestNew_Validation(t *testing.T) {
	env := newTestEnv(t)
	full := Opts{
		WorkspaceID: testWS,
		Machine:     env.machine,
		Queue:       env.queue,
		Analyzer:    env.server.analyzer,
		Store:       env.store,
		Hub:         env.hub,
	}
	_, err := New(full)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(o *Opts)
		want   string
	}{
		{"workspace", func(o *Opts) { o.WorkspaceID = "" }, "workspace id is required"},
		{"machine", func(o *Opts) { o.Machine = nil }, "machine is required"},
		{"queue", func(o *Opts) { o.Queue = nil }, "queue is required"},
		{"analyzer", func(o *Opts) { o.Analyzer = nil }, "analyzer is required"},
		{"store", func(o *Opts) { o.Store = nil }, "store is required"},
		{"hub", func(o *Opts) { o.Hub = nil }, "hub is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := full
			tt.mutate(&o)
			_, err := New(o)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStart_InvalidOpts(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workspace id is required")
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.do(t, http.MethodPost, "/api/pause", "alice", pauseRequest{Topic: "money"})
	rec = env.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hearth_state_transitions_total")
}

func TestGetState_DefaultsToCalm(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/state", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got stateResponse
	decode(t, rec, &got)
	assert.Equal(t, models.StateCalm, got.Mode.State)
	assert.Equal(t, models.ColorGreen, got.Mode.Color)
	assert.False(t, got.Emergency.IsEmergency)
	assert.True(t, got.Emergency.CanPause)
	assert.Zero(t, got.QueueDepth)
}

func TestPauseResumeAck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/pause", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/pause", "mallory", pauseRequest{Topic: "money"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/pause", "alice", pauseRequest{Topic: "money", DurationMinutes: 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var paused struct {
		Success bool     `json:"success"`
		Queued  bool     `json:"queued"`
		Mode    modeView `json:"mode"`
	}
	decode(t, rec, &paused)
	assert.True(t, paused.Success)
	assert.False(t, paused.Queued)
	assert.Equal(t, models.StatePaused, paused.Mode.State)
	assert.Equal(t, "money", paused.Mode.Topic)
	assert.Equal(t, 1, paused.Mode.BreakCountToday)

	rec = env.do(t, http.MethodPost, "/api/ack", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var acked modeView
	decode(t, rec, &acked)
	assert.True(t, acked.PartnerAcknowledged)

	rec = env.do(t, http.MethodPost, "/api/resume", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resumed stateResponse
	decode(t, rec, &resumed)
	assert.Equal(t, models.StateCalm, resumed.Mode.State)
	assert.Empty(t, resumed.Mode.Topic)

	rec = env.do(t, http.MethodPost, "/api/ack", "bob", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "ack while calm")
}

func TestPause_RejectsNegativeDuration(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/pause", "alice", pauseRequest{DurationMinutes: -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPause_QueuedWhenStoreDown(t *testing.T) {
	env := newTestEnv(t)
	env.breakStore(t)

	rec := env.do(t, http.MethodPost, "/api/pause", "alice", pauseRequest{Topic: "money"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.queue.Len())

	rec = env.do(t, http.MethodGet, "/api/queue", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var q struct {
		Items []models.EmergencyQueueItem `json:"items"`
	}
	decode(t, rec, &q)
	require.Len(t, q.Items, 1)
	assert.Equal(t, models.ActionPause, q.Items[0].Action)

	rec = env.do(t, http.MethodPost, "/api/queue/drain", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 1, env.queue.Len())

	rec = env.do(t, http.MethodGet, "/api/state", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSetState(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/state", "alice", stateRequest{State: "furious"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/state", "alice", stateRequest{State: models.StateTense, Topic: "chores"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got modeView
	decode(t, rec, &got)
	assert.Equal(t, models.StateTense, got.State)
	assert.Equal(t, models.ColorYellow, got.Color)
	assert.Equal(t, "chores", got.Topic)
	assert.Equal(t, "alice", got.UpdatedBy)
}

func TestRisk(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/events", "alice", eventRequest{
			EventType: models.EventAssumptionClarification,
			Content:   map[string]any{"assumption": "you meant today"},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(t, http.MethodGet, "/api/risk", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got analysis.RiskAssessment
	decode(t, rec, &got)
	assert.Equal(t, analysis.RiskHigh, got.Level)
	assert.Equal(t, analysis.ActionCircuitBreak, got.Action)
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/analytics?range=12", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/analytics?range=30", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Metrics   analysis.PartnershipMetrics `json:"metrics"`
		Available bool                        `json:"available"`
	}
	decode(t, rec, &got)
	assert.True(t, got.Available)
	assert.Equal(t, 30, got.Metrics.TimeRangeDays)
}

func TestAnalytics_UnavailableDegrades(t *testing.T) {
	env := newTestEnv(t)
	env.breakStore(t)

	rec := env.do(t, http.MethodGet, "/api/analytics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":false`)
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/events", "mallory", eventRequest{EventType: models.EventSignal})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/events", "alice", eventRequest{EventType: models.EventEmergencyBreak})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/events", "alice", eventRequest{EventType: models.EventSignal})
	require.Equal(t, http.StatusCreated, rec.Code)
	var ev eventView
	decode(t, rec, &ev)
	assert.Equal(t, "{}", ev.Content)
	assert.Equal(t, "alice", ev.UserID)

	rec = env.do(t, http.MethodPost, "/api/events/"+ev.ID+"/resolve", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/events/nope/resolve", "bob", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/events?range=7", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Events []eventView `json:"events"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Events, 1)
	assert.True(t, list.Events[0].Resolved)
}

func TestLoops(t *testing.T) {
	env := newTestEnv(t)
	for _, user := range []string{"alice", "bob", "alice"} {
		rec := env.do(t, http.MethodPost, "/api/events", user, eventRequest{EventType: models.EventAssumptionClarification})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	loop, err := env.server.analyzer.DetectLoop(context.Background(), testWS)
	require.NoError(t, err)
	require.NotNil(t, loop)

	rec := env.do(t, http.MethodGet, "/api/loops", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Loops []loopView `json:"loops"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Loops, 1)
	assert.Equal(t, []string{"alice", "bob"}, list.Loops[0].Participants)

	path := "/api/loops/" + loop.ID + "/resolve"
	rec = env.do(t, http.MethodPost, path, "alice", resolveLoopRequest{Method: "walk", Rating: 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, path, "alice", resolveLoopRequest{Method: "walk", Rating: 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var closed loopView
	decode(t, rec, &closed)
	require.NotNil(t, closed.EffectivenessRating)
	assert.Equal(t, 4, *closed.EffectivenessRating)
	assert.Equal(t, "walk", closed.ResolutionMethod)

	rec = env.do(t, http.MethodPost, path, "alice", resolveLoopRequest{Method: "walk", Rating: 4})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCapacity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/capacity", "alice", capacityRequest{EnergyLevel: "exhausted"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/capacity", "alice", capacityRequest{EnergyLevel: models.EnergyLow, CognitiveLoad: 11})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/capacity", "alice", capacityRequest{EnergyLevel: models.EnergyLow, CognitiveLoad: 9})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/risk", "", nil)
	var got analysis.RiskAssessment
	decode(t, rec, &got)
	assert.Equal(t, analysis.RiskMedium, got.Level)
	assert.Equal(t, analysis.ActionGentleMode, got.Action)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{commstate.ErrUnauthorized, http.StatusForbidden},
		{&commstate.TransitionError{From: "calm", To: "x"}, http.StatusConflict},
		{commstate.ErrNotPaused, http.StatusConflict},
		{commstate.ErrPersistence, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		c, _ := ginTestContext(rec)
		writeError(c, tt.err)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}

func TestStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), "event: ") {
				return strings.TrimPrefix(lines.Text(), "event: ")
			}
		}
		return ""
	}
	require.Equal(t, "state", next())

	require.Eventually(t, func() bool { return env.hub.Subscribers(testWS) == 1 }, time.Second, 10*time.Millisecond)
	_, err = env.machine.TriggerEmergencyPause(context.Background(), testWS, "money", "alice", 0)
	require.NoError(t, err)

	assert.Equal(t, commstate.KindStateChange, next())
	lines.Scan()
	assert.Contains(t, lines.Text(), `"state":"paused"`)
}
