package telegraph

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/hearth/internal/models"
)

func TestNewCommandHandler_Validation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		opts CommandHandlerOpts
	}{
		{"workspace", CommandHandlerOpts{Machine: env.machine, Queue: env.queue, Members: lookupMember}},
		{"machine", CommandHandlerOpts{WorkspaceID: testWS, Queue: env.queue, Members: lookupMember}},
		{"queue", CommandHandlerOpts{WorkspaceID: testWS, Machine: env.machine, Members: lookupMember}},
		{"members", CommandHandlerOpts{WorkspaceID: testWS, Machine: env.machine, Queue: env.queue}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCommandHandler(tt.opts); err == nil {
				t.Errorf("expected error for missing %s", tt.name)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"!hearth", nil},
		{"!hearth ", nil},
		{"!hearth status", []string{"status"}},
		{"  !hearth pause  budget talk ", []string{"pause", "budget", "talk"}},
	}
	for _, tt := range tests {
		got := parseCommand(tt.in)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("parseCommand(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSplitDuration(t *testing.T) {
	d, rest := splitDuration([]string{"30m", "budget"})
	if d != 30*time.Minute || len(rest) != 1 || rest[0] != "budget" {
		t.Errorf("got %v %v", d, rest)
	}
	d, rest = splitDuration([]string{"budget"})
	if d != 0 || len(rest) != 1 {
		t.Errorf("got %v %v", d, rest)
	}
	d, rest = splitDuration([]string{"-5m"})
	if d != 0 || len(rest) != 1 {
		t.Errorf("negative duration should be treated as topic: %v %v", d, rest)
	}
}

func TestExecute_Help(t *testing.T) {
	env := newTestEnv(t)
	for _, text := range []string{"!hearth", "!hearth help"} {
		got := env.handler.Execute(context.Background(), "U-ALICE", text)
		if !strings.Contains(got.Text, "Hearth Commands") {
			t.Errorf("%q: got %q", text, got.Text)
		}
	}
}

func TestExecute_Unknown(t *testing.T) {
	env := newTestEnv(t)
	got := env.handler.Execute(context.Background(), "U-ALICE", "!hearth dance")
	if !strings.Contains(got.Text, "Unknown command: `dance`") {
		t.Errorf("got %q", got.Text)
	}
}

func TestExecute_StrangerCannotChangeState(t *testing.T) {
	env := newTestEnv(t)
	got := env.handler.Execute(context.Background(), "U-MALLORY", "!hearth pause")
	if !strings.Contains(got.Text, "Only the two workspace members") {
		t.Errorf("got %q", got.Text)
	}
	if env.mode(t).StateDisplay != models.StateCalm {
		t.Error("stranger changed the state")
	}

	status := env.handler.Execute(context.Background(), "U-MALLORY", "!hearth status")
	if len(status.Events) != 1 {
		t.Errorf("status should be readable by anyone: %+v", status)
	}
}

func TestExecute_PauseAndResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	got := env.handler.Execute(ctx, "U-ALICE", "!hearth pause budget")
	if !strings.HasPrefix(got.Text, "Paused until") {
		t.Errorf("pause reply = %q", got.Text)
	}
	mode := env.mode(t)
	if mode.StateDisplay != models.StatePaused || mode.ActiveTopic != "budget" || mode.UpdatedBy != "alice" {
		t.Errorf("mode = %+v", mode)
	}

	got = env.handler.Execute(ctx, "U-BOB", "!hearth resume")
	if got.Text != "Back to calm." {
		t.Errorf("resume reply = %q", got.Text)
	}
	if env.mode(t).StateDisplay != models.StateCalm {
		t.Error("expected calm after resume")
	}
}

func TestExecute_PauseWithDuration(t *testing.T) {
	env := newTestEnv(t)
	before := time.Now()
	env.handler.Execute(context.Background(), "U-ALICE", "!hearth pause 45m the move")

	mode := env.mode(t)
	if mode.ActiveTopic != "the move" {
		t.Errorf("ActiveTopic = %q", mode.ActiveTopic)
	}
	if mode.TimeoutEnd == nil {
		t.Fatal("TimeoutEnd not set")
	}
	if d := mode.TimeoutEnd.Sub(before); d < 44*time.Minute || d > 46*time.Minute {
		t.Errorf("pause length = %v, want about 45m", d)
	}
}

func TestExecute_Ack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	got := env.handler.Execute(ctx, "U-BOB", "!hearth ack")
	if !strings.Contains(got.Text, "not paused") {
		t.Errorf("ack while calm = %q", got.Text)
	}

	env.handler.Execute(ctx, "U-ALICE", "!hearth pause")
	got = env.handler.Execute(ctx, "U-ALICE", "!hearth ack")
	if !strings.HasPrefix(got.Text, "Not allowed") {
		t.Errorf("self ack = %q", got.Text)
	}
	got = env.handler.Execute(ctx, "U-BOB", "!hearth ack")
	if !strings.HasPrefix(got.Text, "Acknowledged") {
		t.Errorf("partner ack = %q", got.Text)
	}
	if !env.mode(t).PartnerAcknowledged {
		t.Error("PartnerAcknowledged not set")
	}
}

func TestExecute_Tense(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Execute(context.Background(), "U-BOB", "!hearth tense chores")
	mode := env.mode(t)
	if mode.StateDisplay != models.StateTense || mode.StateColor != models.ColorYellow || mode.ActiveTopic != "chores" {
		t.Errorf("mode = %+v", mode)
	}
}

func TestExecute_ClarifyFeedsRisk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if got := env.handler.Execute(ctx, "U-ALICE", "!hearth clarify"); !strings.HasPrefix(got.Text, "Usage") {
		t.Errorf("empty clarify = %q", got.Text)
	}
	env.handler.Execute(ctx, "U-ALICE", "!hearth clarify I thought you meant Friday")
	env.handler.Execute(ctx, "U-BOB", "!hearth clarify I assumed the car was free")

	events, err := env.store.EventsOfType(ctx, testWS, models.EventAssumptionClarification, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("clarifications = %d, want 2", len(events))
	}

	got := env.handler.Execute(ctx, "U-ALICE", "!hearth risk")
	if len(got.Events) != 1 || got.Events[0].Title != "Risk: high" {
		t.Errorf("risk = %+v", got)
	}
}

func TestExecute_Status(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.handler.Execute(ctx, "U-ALICE", "!hearth pause budget")

	got := env.handler.Execute(ctx, "U-BOB", "!hearth status")
	if len(got.Events) != 1 {
		t.Fatalf("status = %+v", got)
	}
	ev := got.Events[0]
	if ev.Title != "Hearth is paused" || ev.Color != ColorError {
		t.Errorf("status event = %+v", ev)
	}
	if !strings.Contains(ev.Body, "Topic: budget") || !strings.Contains(ev.Body, "minutes remaining") {
		t.Errorf("status body = %q", ev.Body)
	}
}
