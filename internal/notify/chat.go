package notify

import (
	"context"
	"fmt"

	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/telegraph"
)

// Sender is the part of a chat adapter the notifier needs.
type Sender interface {
	Send(ctx context.Context, msg telegraph.OutboundMessage) error
}

// Chat posts notifications to the workspace's shared chat channel.
type Chat struct {
	sender  Sender
	channel string
}

// ChatOpts holds parameters for creating a Chat notifier.
type ChatOpts struct {
	Sender  Sender
	Channel string // empty uses the adapter's default channel
}

// NewChat creates a Chat notifier.
func NewChat(opts ChatOpts) (*Chat, error) {
	if opts.Sender == nil {
		return nil, fmt.Errorf("notify: sender is required")
	}
	return &Chat{sender: opts.Sender, channel: opts.Channel}, nil
}

// Notify implements commstate.Notifier.
func (c *Chat) Notify(ctx context.Context, n commstate.Notification) error {
	msg := telegraph.OutboundMessage{
		ChannelID: c.channel,
		Events:    []telegraph.FormattedEvent{telegraph.FormatNotification(n)},
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: chat: %w", err)
	}
	return nil
}
