package telegraph

import (
	"context"
	"io"
	"strings"
	"testing"
)

func newTestRouter(t *testing.T) (*Router, *MockAdapter) {
	t.Helper()
	env := newTestEnv(t)
	adapter := NewMockAdapter()
	if err := adapter.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	r, err := NewRouter(RouterOpts{
		CmdHandler: env.handler,
		Adapter:    adapter,
		BotUserID:  "U-BOT",
		Out:        io.Discard,
	})
	if err != nil {
		t.Fatal(err)
	}
	return r, adapter
}

func TestNewRouter_Validation(t *testing.T) {
	if _, err := NewRouter(RouterOpts{Adapter: NewMockAdapter()}); err == nil {
		t.Error("expected error for missing command handler")
	}
	env := newTestEnv(t)
	if _, err := NewRouter(RouterOpts{CmdHandler: env.handler}); err == nil {
		t.Error("expected error for missing adapter")
	}
}

func TestRouter_IgnoresSelfAndChatter(t *testing.T) {
	r, adapter := newTestRouter(t)
	ctx := context.Background()

	r.Handle(ctx, InboundMessage{UserID: "U-BOT", Text: "!hearth status"})
	r.Handle(ctx, InboundMessage{UserID: "U-ALICE", Text: "are we still on for dinner?"})
	r.Handle(ctx, InboundMessage{UserID: "U-ALICE", Text: "!hearthstatus"})
	r.Handle(ctx, InboundMessage{UserID: "U-ALICE", Text: "<@U0BOT> what do you think"})

	if adapter.SentCount() != 0 {
		t.Errorf("sent %d messages, want 0: %+v", adapter.SentCount(), adapter.AllSent())
	}
}

func TestRouter_CommandRepliesInThread(t *testing.T) {
	r, adapter := newTestRouter(t)
	r.Handle(context.Background(), InboundMessage{
		ChannelID: "C1",
		ThreadID:  "T1",
		UserID:    "U-ALICE",
		Text:      "!hearth help",
	})

	msg, ok := adapter.LastSent()
	if !ok {
		t.Fatal("expected a reply")
	}
	if msg.ChannelID != "C1" || msg.ThreadID != "T1" {
		t.Errorf("reply went to %s/%s", msg.ChannelID, msg.ThreadID)
	}
	if !strings.Contains(msg.Text, "Hearth Commands") {
		t.Errorf("reply = %q", msg.Text)
	}
}

func TestRouter_MentionCommand(t *testing.T) {
	r, adapter := newTestRouter(t)
	r.Handle(context.Background(), InboundMessage{ChannelID: "C1", UserID: "U-ALICE", Text: "<@U0BOT> pause budget"})

	msg, ok := adapter.LastSent()
	if !ok || !strings.HasPrefix(msg.Text, "Paused until") {
		t.Errorf("reply = %+v", msg)
	}
}

func TestExtractMentionCommand(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<@123456> status", "status"},
		{"<@!123456> pause money", "pause money"},
		{"<@U0BOT>", ""},
		{"<@U0BOT> hello there", ""},
		{"status", ""},
	}
	for _, tt := range tests {
		if got := extractMentionCommand(tt.in); got != tt.want {
			t.Errorf("extractMentionCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("got %q", got)
	}
	if got := truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
}
