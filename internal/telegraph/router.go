package telegraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
)

// commandPrefix is the prefix that triggers command handling.
const commandPrefix = "!hearth"

// Router filters inbound chat messages and hands commands to the
// CommandHandler. Everything that is not a command is ignored.
type Router struct {
	cmdHandler *CommandHandler
	adapter    Adapter
	botUserID  string // the bot's own user ID (to filter self-messages)
	out        io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	CmdHandler *CommandHandler
	Adapter    Adapter
	BotUserID  string    // bot's user ID for self-message filtering
	Out        io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.CmdHandler == nil {
		return nil, fmt.Errorf("telegraph: router: command handler is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("telegraph: router: adapter is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		cmdHandler: opts.CmdHandler,
		adapter:    opts.Adapter,
		botUserID:  opts.BotUserID,
		out:        out,
	}, nil
}

// Handle routes a single inbound message:
//  1. Bot self-message: ignore
//  2. "!hearth ..." or a bot mention followed by a known command: execute
//  3. Everything else: ignore
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	if r.isSelfMessage(msg) {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if !isCommand(text) {
		cmd := extractMentionCommand(text)
		if cmd == "" {
			return
		}
		text = commandPrefix + " " + cmd
	}

	fmt.Fprintf(r.out, "telegraph: router: command from %s: %q\n", msg.UserName, truncate(text, 80))
	resp := r.cmdHandler.Execute(ctx, msg.UserID, text)
	resp.ChannelID = msg.ChannelID
	resp.ThreadID = msg.ThreadID
	if err := r.adapter.Send(ctx, resp); err != nil {
		log.Printf("telegraph: router: send command response: %v", err)
	}
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// isSelfMessage returns true if the message is from the bot itself.
func (r *Router) isSelfMessage(msg InboundMessage) bool {
	return r.botUserID != "" && msg.UserID == r.botUserID
}

// isCommand returns true if the text starts with the command prefix.
func isCommand(text string) bool {
	return strings.HasPrefix(text, commandPrefix+" ") || text == commandPrefix
}

// mentionRe matches Discord (<@ID>, <@!ID>) and Slack (<@U123>) mentions.
var mentionRe = regexp.MustCompile(`<@!?[A-Za-z0-9]+>`)

// knownCommands is the set of top-level commands the CommandHandler supports.
var knownCommands = map[string]bool{
	"pause":   true,
	"resume":  true,
	"calm":    true,
	"tense":   true,
	"ack":     true,
	"clarify": true,
	"status":  true,
	"risk":    true,
	"help":    true,
}

// extractMentionCommand returns the command text when the message is a bot
// mention followed by a known command ("@hearth pause budget"), or "".
func extractMentionCommand(text string) string {
	if !mentionRe.MatchString(text) {
		return ""
	}
	stripped := strings.TrimSpace(mentionRe.ReplaceAllString(text, ""))
	if stripped == "" {
		return ""
	}
	if knownCommands[strings.Fields(stripped)[0]] {
		return stripped
	}
	return ""
}
