// Package telegraph bridges Hearth to chat platforms (Slack, Discord): it
// posts state changes to the shared channel and turns "!hearth" messages
// into state machine calls.
package telegraph

import (
	"context"
	"time"
)

// Adapter is the interface that platform-specific implementations must satisfy.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the adapter is closed. Listen must only be
	// called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a message received from the chat platform.
type InboundMessage struct {
	Platform  string    // e.g. "slack", "discord"
	ChannelID string    // platform-specific channel identifier
	ThreadID  string    // thread identifier (empty if top-level)
	UserID    string    // platform-specific user identifier
	UserName  string    // human-readable username
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundMessage represents a message to be sent to the chat platform.
type OutboundMessage struct {
	ChannelID string           // target channel; adapters fall back to their default
	ThreadID  string           // thread to reply in (empty for a top-level message)
	Text      string           // message text (platform-native formatting)
	Events    []FormattedEvent // structured attachments
}

// FormattedEvent is a colored attachment: a state change, a risk report or
// a digest.
type FormattedEvent struct {
	Title    string
	Body     string
	Severity string // "info", "warning", "error", "success"
	Color    string // sidebar color, e.g. "#36a64f"
	Fields   []Field
}

// Field is a key-value pair displayed in an attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}

// BotUserIDer is an optional interface that adapters can implement to
// expose the bot's own user ID. This enables self-message filtering.
type BotUserIDer interface {
	BotUserID() string
}
