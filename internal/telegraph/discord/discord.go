// Package discord implements the telegraph Adapter for Discord over the Gateway.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/hearth/internal/telegraph"
)

const (
	maxRetries  = 3
	baseBackoff = 2 * time.Second
	maxBackoff  = 2 * time.Minute
)

// session is the subset of *discordgo.Session the adapter calls.
type session interface {
	Open() error
	Close() error
	Channel(channelID string) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	AddHandler(handler interface{}) func()
}

type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }

// Channel reads the gateway state cache only; it never hits the REST API.
func (r *realSession) Channel(channelID string) (*discordgo.Channel, error) {
	return r.s.State.Channel(channelID)
}

func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}

func (r *realSession) AddHandler(handler interface{}) func() { return r.s.AddHandler(handler) }

// Adapter implements telegraph.Adapter for Discord.
type Adapter struct {
	sess      session
	botToken  string
	channelID string // default channel for notifications

	mu        sync.Mutex
	botUserID string
	connected bool
	closed    bool
	listenCtx context.Context
	cancel    context.CancelFunc
	removers  []func()

	inbound     chan telegraph.InboundMessage
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken  string
	ChannelID string
	// Injected in tests instead of a real gateway session.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	return &Adapter{
		sess:        opts.Session,
		botToken:    opts.BotToken,
		channelID:   opts.ChannelID,
		inbound:     make(chan telegraph.InboundMessage, 100),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}, nil
}

// Connect opens the gateway. discordgo reconnects on its own afterwards;
// the Ready handler refreshes the bot user id each time it does.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
		a.sess = &realSession{s: dg}
	}

	a.removers = append(a.removers,
		a.sess.AddHandler(a.onReady),
		a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			log.Printf("discord: gateway disconnected")
		}),
	)
	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.connected = true
	return nil
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		return
	}
	a.mu.Lock()
	a.botUserID = r.User.ID
	a.mu.Unlock()
	log.Printf("discord: connected as %s", r.User.Username)
}

// Listen registers the message handler and returns the inbound channel.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	a.listenCtx, a.cancel = context.WithCancel(ctx)
	a.removers = append(a.removers, a.sess.AddHandler(a.onMessage))
	return a.inbound, nil
}

// Send posts a message with formatted events rendered as embeds. Threads
// are channels in Discord, so a ThreadID is used as the target directly.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	a.mu.Lock()
	connected := a.connected
	a.mu.Unlock()
	if !connected {
		return fmt.Errorf("discord: not connected")
	}

	target := firstNonEmpty(msg.ThreadID, msg.ChannelID, a.channelID)
	if target == "" {
		return fmt.Errorf("discord: no channel specified")
	}
	data := buildMessageSend(msg)
	err := a.retryOnRateLimit(ctx, func() error {
		_, sendErr := a.sess.ChannelMessageSendComplex(target, data)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// Close removes the handlers, closes the gateway and the inbound channel.
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
	for _, remove := range a.removers {
		remove()
	}
	a.removers = nil
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's user id once the gateway reported Ready.
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

func (a *Adapter) onMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	a.mu.Lock()
	botID, ctx, closed := a.botUserID, a.listenCtx, a.closed
	a.mu.Unlock()
	if closed || m.Author.ID == botID {
		return
	}

	channelID, threadID := m.ChannelID, ""
	if ch, err := a.sess.Channel(m.ChannelID); err == nil && ch.IsThread() {
		channelID, threadID = ch.ParentID, m.ChannelID
	}
	ts, err := discordgo.SnowflakeTimestamp(m.ID)
	if err != nil {
		ts = m.Timestamp
	}

	msg := telegraph.InboundMessage{
		Platform:  "discord",
		ChannelID: channelID,
		ThreadID:  threadID,
		UserID:    m.Author.ID,
		UserName:  displayName(m),
		Text:      m.Content,
		Timestamp: ts,
	}
	select {
	case a.inbound <- msg:
	case <-ctx.Done():
	}
}

// displayName prefers the guild nickname, then the global name.
func displayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func buildMessageSend(msg telegraph.OutboundMessage) *discordgo.MessageSend {
	data := &discordgo.MessageSend{Content: msg.Text}
	for _, evt := range msg.Events {
		data.Embeds = append(data.Embeds, eventToEmbed(evt))
	}
	return data
}

func eventToEmbed(evt telegraph.FormattedEvent) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       evt.Title,
		Description: evt.Body,
		Color:       parseHexColor(evt.Color),
	}
	for _, f := range evt.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// parseHexColor converts "#36a64f" to its integer value; invalid input is 0.
func parseHexColor(hex string) int {
	v, err := strconv.ParseUint(strings.TrimPrefix(hex, "#"), 16, 32)
	if err != nil {
		return 0
	}
	return int(v)
}

// retryOnRateLimit retries fn with exponential backoff while Discord
// answers 429.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !isRateLimited(err) || attempt == maxRetries {
			return err
		}
		wait := a.baseBackoff << attempt
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		log.Printf("discord: rate limited (attempt %d/%d), retrying in %v", attempt+1, maxRetries, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}

func isRateLimited(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusTooManyRequests
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
