package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zulandar/hearth/internal/models"
	"github.com/zulandar/hearth/internal/store"
)

func clarify(t *testing.T, st *store.Store, clock *testClock, users ...string) []*models.CommunicationEvent {
	t.Helper()
	var out []*models.CommunicationEvent
	for _, u := range users {
		ev, err := st.RecordClarification(context.Background(), testWS, u, map[string]any{"q": "which budget?"})
		if err != nil {
			t.Fatalf("RecordClarification: %v", err)
		}
		out = append(out, ev)
		clock.Advance(5 * time.Minute)
	}
	return out
}

func TestDetectLoop_OpensLoop(t *testing.T) {
	ctx := context.Background()
	st, clock := openTestStore(t)
	a := newTestAnalyzer(t, st, clock)
	events := clarify(t, st, clock, "bob", "alice", "bob")

	loop, err := a.DetectLoop(ctx, testWS)
	if err != nil {
		t.Fatalf("DetectLoop: %v", err)
	}
	if loop == nil {
		t.Fatal("expected a loop")
	}
	if !loop.IsOpen() {
		t.Error("new loop should be open")
	}
	if got := store.DecodeList(loop.Participants); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Errorf("Participants = %v", got)
	}
	if loop.TriggerEvent != events[0].ID {
		t.Errorf("TriggerEvent = %s, want %s", loop.TriggerEvent, events[0].ID)
	}
	if loop.DurationMinutes != 10 {
		t.Errorf("DurationMinutes = %d, want 10", loop.DurationMinutes)
	}
	if len(store.DecodeList(loop.LoopIndicators)) != 1 {
		t.Errorf("LoopIndicators = %s", loop.LoopIndicators)
	}

	again, err := a.DetectLoop(ctx, testWS)
	if err != nil {
		t.Fatal(err)
	}
	if again != nil {
		t.Error("a second loop must not open while one is open")
	}
}

func TestDetectLoop_BelowThreshold(t *testing.T) {
	st, clock := openTestStore(t)
	a := newTestAnalyzer(t, st, clock)
	clarify(t, st, clock, "alice", "bob")

	loop, err := a.DetectLoop(context.Background(), testWS)
	if err != nil || loop != nil {
		t.Errorf("DetectLoop = %v, %v; want nil, nil", loop, err)
	}
}

func TestDetectLoop_IgnoresResolvedAndOld(t *testing.T) {
	ctx := context.Background()
	st, clock := openTestStore(t)
	a := newTestAnalyzer(t, st, clock)

	clarify(t, st, clock, "alice")
	clock.Advance(time.Hour)
	events := clarify(t, st, clock, "alice", "bob", "bob")
	if err := st.ResolveEvent(ctx, events[2].ID); err != nil {
		t.Fatal(err)
	}

	loop, err := a.DetectLoop(ctx, testWS)
	if err != nil || loop != nil {
		t.Errorf("DetectLoop = %v, %v; want nil, nil", loop, err)
	}
}

func TestDetectLoop_CustomThreshold(t *testing.T) {
	st, clock := openTestStore(t)
	a, err := New(Opts{Store: st, Now: clock.Now, LoopThreshold: 2})
	if err != nil {
		t.Fatal(err)
	}
	clarify(t, st, clock, "alice", "bob")
	loop, err := a.DetectLoop(context.Background(), testWS)
	if err != nil || loop == nil {
		t.Errorf("DetectLoop = %v, %v; want a loop", loop, err)
	}
}

func TestResolveLoop(t *testing.T) {
	ctx := context.Background()
	st, clock := openTestStore(t)
	a := newTestAnalyzer(t, st, clock)
	clarify(t, st, clock, "alice", "bob", "alice")
	loop, err := a.DetectLoop(ctx, testWS)
	if err != nil || loop == nil {
		t.Fatalf("DetectLoop = %v, %v", loop, err)
	}

	closed, err := a.ResolveLoop(ctx, loop.ID, "emergency_break", 5)
	if err != nil {
		t.Fatalf("ResolveLoop: %v", err)
	}
	if closed.IsOpen() || closed.ResolutionMethod != "emergency_break" || *closed.EffectivenessRating != 5 {
		t.Errorf("closed = %+v", closed)
	}

	_, err = a.ResolveLoop(ctx, loop.ID, "talk", 3)
	if !errors.Is(err, store.ErrAlreadyResolved) {
		t.Errorf("second resolve err = %v, want ErrAlreadyResolved", err)
	}
}
