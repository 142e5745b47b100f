package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// Daemon is the chat-side process. It connects to a chat platform via an
// Adapter and pumps inbound messages through the Router until the context
// is cancelled. Outbound notifications are posted by notify.Chat through
// the same adapter.
type Daemon struct {
	adapter    Adapter
	cmdHandler *CommandHandler
	channel    string
	announce   bool
	out        io.Writer
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	Adapter    Adapter
	CmdHandler *CommandHandler
	Channel    string    // channel for online/offline announcements
	Announce   bool      // post online/offline messages
	Out        io.Writer // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: adapter is required")
	}
	if opts.CmdHandler == nil {
		return nil, fmt.Errorf("telegraph: command handler is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		adapter:    opts.Adapter,
		cmdHandler: opts.CmdHandler,
		channel:    opts.Channel,
		announce:   opts.Announce,
		out:        out,
	}, nil
}

// Run connects the adapter and handles inbound messages until ctx is
// cancelled. On shutdown it closes the adapter.
func (d *Daemon) Run(ctx context.Context) error {
	fmt.Fprintf(d.out, "Telegraph connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("telegraph: connect: %w", err)
	}

	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	router, err := NewRouter(RouterOpts{
		CmdHandler: d.cmdHandler,
		Adapter:    d.adapter,
		BotUserID:  botUserID,
		Out:        d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("telegraph: listen: %w", err)
	}

	fmt.Fprintf(d.out, "Telegraph online\n")
	d.post(ctx, "Hearth is listening. Type `!hearth help` for commands.")

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Telegraph shutting down...\n")
			d.post(context.Background(), "Hearth is going offline.")
			if err := d.adapter.Close(); err != nil {
				log.Printf("telegraph: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Telegraph stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				fmt.Fprintf(d.out, "Telegraph inbound channel closed\n")
				return nil
			}
			router.Handle(ctx, msg)
		}
	}
}

// post sends an announcement when announcements are enabled (best-effort).
func (d *Daemon) post(ctx context.Context, text string) {
	if !d.announce {
		return
	}
	if err := d.adapter.Send(ctx, OutboundMessage{ChannelID: d.channel, Text: text}); err != nil {
		log.Printf("telegraph: announce: %v", err)
	}
}
