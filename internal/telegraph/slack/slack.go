// Package slack implements the telegraph Adapter for Slack using Socket Mode.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/hearth/internal/telegraph"
)

const (
	maxRetries           = 3
	baseBackoff          = 2 * time.Second
	maxBackoff           = 2 * time.Minute
	maxReconnectAttempts = 10
)

// slackClient is the subset of the Web API the adapter calls.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient is the subset of the Socket Mode client the adapter calls.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) Run() error                        { return r.client.Run() }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements telegraph.Adapter for Slack Socket Mode.
type Adapter struct {
	client    slackClient
	socket    socketClient
	appToken  string
	botToken  string
	channelID string // default channel for notifications

	mu        sync.Mutex
	botUserID string
	connected bool
	closed    bool
	cancel    context.CancelFunc
	names     map[string]string // user id -> display name

	inbound      chan telegraph.InboundMessage
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	maxReconnect int
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken  string // xapp-... app-level token for Socket Mode
	BotToken  string // xoxb-... bot token
	ChannelID string // default channel to post to
	// Injected in tests instead of the real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	return &Adapter{
		client:       opts.Client,
		socket:       opts.Socket,
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		channelID:    opts.ChannelID,
		names:        make(map[string]string),
		inbound:      make(chan telegraph.InboundMessage, 100),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}, nil
}

// Connect authenticates the bot and prepares the Socket Mode client.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}
	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID
	a.connected = true
	return nil
}

// Listen starts the Socket Mode loop and returns the inbound channel.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("slack: not connected")
	}
	listenCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go a.runWithReconnect(listenCtx)
	go a.pumpEvents(listenCtx)
	return a.inbound, nil
}

// Send posts a message, rendering formatted events as colored attachments.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("slack: not connected")
	}

	channelID := msg.ChannelID
	if channelID == "" {
		channelID = a.channelID
	}
	if channelID == "" {
		return fmt.Errorf("slack: no channel specified")
	}

	options := buildMessageOptions(msg)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// Close stops the event loop and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancel != nil {
		a.cancel()
	}
	close(a.inbound)
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// runWithReconnect runs the Socket Mode client, restarting it with
// exponential backoff when Run returns an error.
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < a.maxReconnect; attempt++ {
		err := a.socket.Run()
		if err == nil || ctx.Err() != nil {
			return
		}
		wait := backoff(a.baseBackoff, a.maxBackoff, attempt)
		log.Printf("slack: socket mode disconnected (attempt %d/%d): %v; reconnecting in %v",
			attempt+1, a.maxReconnect, err, wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	log.Printf("slack: socket mode exhausted %d reconnection attempts, giving up", a.maxReconnect)
}

func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(ctx, evt)
		}
	}
}

func (a *Adapter) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		if apiEvent.Type != slackevents.CallbackEvent {
			return
		}
		switch ev := apiEvent.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			// Edits, deletes and other bots are not commands.
			if ev.BotID != "" || ev.SubType != "" {
				return
			}
			a.deliver(ctx, ev.Channel, ev.ThreadTimeStamp, ev.User, ev.Text, ev.TimeStamp)
		case *slackevents.AppMentionEvent:
			a.deliver(ctx, ev.Channel, ev.ThreadTimeStamp, ev.User, ev.Text, ev.TimeStamp)
		}
	case socketmode.EventTypeConnected:
		log.Printf("slack: connected to Socket Mode")
	case socketmode.EventTypeConnectionError:
		log.Printf("slack: connection error: %v", evt.Data)
	case socketmode.EventTypeDisconnect:
		log.Printf("slack: server requested disconnect, will reconnect")
	}
}

// deliver forwards a user message to the inbound channel. Messages from
// the bot itself are dropped.
func (a *Adapter) deliver(ctx context.Context, channel, thread, user, text, ts string) {
	if user == "" || user == a.BotUserID() {
		return
	}
	msg := telegraph.InboundMessage{
		Platform:  "slack",
		ChannelID: channel,
		ThreadID:  thread,
		UserID:    user,
		UserName:  a.userName(user),
		Text:      text,
		Timestamp: parseSlackTimestamp(ts),
	}
	select {
	case a.inbound <- msg:
	case <-ctx.Done():
	}
}

// userName resolves and caches a display name, falling back to the id.
func (a *Adapter) userName(userID string) string {
	a.mu.Lock()
	name, ok := a.names[userID]
	a.mu.Unlock()
	if ok {
		return name
	}
	name = userID
	if user, err := a.client.GetUserInfo(userID); err == nil {
		name = user.RealName
		if user.Profile.DisplayName != "" {
			name = user.Profile.DisplayName
		}
	}
	a.mu.Lock()
	a.names[userID] = name
	a.mu.Unlock()
	return name
}

// buildMessageOptions translates an OutboundMessage into Slack MsgOptions.
func buildMessageOptions(msg telegraph.OutboundMessage) []slackapi.MsgOption {
	var options []slackapi.MsgOption
	if msg.ThreadID != "" {
		options = append(options, slackapi.MsgOptionTS(msg.ThreadID))
	}
	if msg.Text != "" || len(msg.Events) == 0 {
		options = append(options, slackapi.MsgOptionText(msg.Text, false))
	}
	if len(msg.Events) > 0 {
		attachments := make([]slackapi.Attachment, 0, len(msg.Events))
		for _, evt := range msg.Events {
			attachments = append(attachments, eventToAttachment(evt))
		}
		options = append(options, slackapi.MsgOptionAttachments(attachments...))
	}
	return options
}

func eventToAttachment(evt telegraph.FormattedEvent) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    evt.Title,
		Text:     evt.Body,
		Color:    evt.Color,
		Fallback: evt.Title,
	}
	for _, f := range evt.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn, retrying Slack rate-limit errors after the
// RetryAfter the API asked for.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		var rle *slackapi.RateLimitedError
		if err == nil || !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}
		wait := rle.RetryAfter
		if wait <= 0 {
			wait = backoff(time.Second, maxBackoff, attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

// backoff returns base doubled attempt times, capped at limit.
func backoff(base, limit time.Duration, attempt int) time.Duration {
	wait := base << attempt
	if wait <= 0 || wait > limit {
		return limit
	}
	return wait
}

// parseSlackTimestamp converts a Slack timestamp ("1234567890.123456").
func parseSlackTimestamp(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var nsec int64
	if frac != "" {
		if us, err := strconv.ParseInt(frac, 10, 64); err == nil && len(frac) == 6 {
			nsec = us * 1000
		}
	}
	return time.Unix(s, nsec)
}
