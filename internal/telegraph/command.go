package telegraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/models"
)

// MemberLookup maps a chat user id to a workspace member id.
type MemberLookup func(chatUserID string) (memberID string, ok bool)

// RiskSource evaluates a workspace's current risk.
type RiskSource interface {
	EvaluateWorkspace(ctx context.Context, workspaceID string) analysis.RiskAssessment
}

// ClarificationRecorder appends assumption_clarification events.
type ClarificationRecorder interface {
	RecordClarification(ctx context.Context, workspaceID, userID string, content map[string]any) (*models.CommunicationEvent, error)
}

// CommandHandler processes "!hearth" commands from chat for one workspace.
type CommandHandler struct {
	workspaceID string
	machine     *commstate.Machine
	queue       *commstate.Queue
	risk        RiskSource
	events      ClarificationRecorder
	members     MemberLookup
}

// CommandHandlerOpts holds parameters for creating a CommandHandler.
type CommandHandlerOpts struct {
	WorkspaceID string
	Machine     *commstate.Machine
	Queue       *commstate.Queue // pause and resume go through the queue's reliable path
	Risk        RiskSource       // optional; disables "risk" when nil
	Events      ClarificationRecorder
	Members     MemberLookup
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(opts CommandHandlerOpts) (*CommandHandler, error) {
	if opts.WorkspaceID == "" {
		return nil, fmt.Errorf("telegraph: command handler: workspace id is required")
	}
	if opts.Machine == nil {
		return nil, fmt.Errorf("telegraph: command handler: machine is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("telegraph: command handler: queue is required")
	}
	if opts.Members == nil {
		return nil, fmt.Errorf("telegraph: command handler: member lookup is required")
	}
	return &CommandHandler{
		workspaceID: opts.WorkspaceID,
		machine:     opts.Machine,
		queue:       opts.Queue,
		risk:        opts.Risk,
		events:      opts.Events,
		members:     opts.Members,
	}, nil
}

// Execute parses and executes a "!hearth" command sent by chatUserID and
// returns the reply to post back.
func (ch *CommandHandler) Execute(ctx context.Context, chatUserID, text string) OutboundMessage {
	args := parseCommand(text)
	if len(args) == 0 {
		return reply(helpText())
	}

	switch args[0] {
	case "help":
		return reply(helpText())
	case "status":
		return ch.cmdStatus(ctx)
	case "risk":
		return ch.cmdRisk(ctx)
	}

	actor, ok := ch.members(chatUserID)
	if !ok {
		return reply("Only the two workspace members can change Hearth. Ask to have your chat id added to hearth.yaml.")
	}

	switch args[0] {
	case "pause":
		return ch.cmdPause(ctx, actor, args[1:])
	case "resume", "calm":
		return ch.cmdResume(ctx, actor)
	case "tense":
		return ch.cmdTense(ctx, actor, args[1:])
	case "ack":
		return ch.cmdAck(ctx, actor)
	case "clarify":
		return ch.cmdClarify(ctx, actor, args[1:])
	default:
		return reply(fmt.Sprintf("Unknown command: `%s`\n\n%s", args[0], helpText()))
	}
}

// parseCommand strips the "!hearth" prefix and splits the remaining text.
func parseCommand(text string) []string {
	text = strings.TrimSpace(text)
	if text == commandPrefix {
		return nil
	}
	text = strings.TrimPrefix(text, commandPrefix+" ")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return strings.Fields(text)
}

// splitDuration takes an optional leading duration ("30m", "1h") off args.
func splitDuration(args []string) (time.Duration, []string) {
	if len(args) == 0 {
		return 0, args
	}
	d, err := time.ParseDuration(args[0])
	if err != nil || d <= 0 {
		return 0, args
	}
	return d, args[1:]
}

func (ch *CommandHandler) cmdPause(ctx context.Context, actor string, args []string) OutboundMessage {
	duration, rest := splitDuration(args)
	topic := strings.Join(rest, " ")
	res, err := ch.queue.TriggerEmergencyPauseReliable(ctx, ch.workspaceID, topic, actor, duration)
	if err != nil {
		return reply(errorText("pause", err))
	}
	text := fmt.Sprintf("Paused until %s.", res.TimeoutEnd.Format("15:04"))
	if res.Queued {
		text += " The store is unreachable, so the pause is queued and will sync when it is back."
	}
	return reply(text)
}

func (ch *CommandHandler) cmdResume(ctx context.Context, actor string) OutboundMessage {
	queued, err := ch.queue.ResumeReliable(ctx, ch.workspaceID, actor)
	if err != nil {
		return reply(errorText("resume", err))
	}
	if queued {
		return reply("Resume queued; it will apply when the store is reachable.")
	}
	return reply("Back to calm.")
}

func (ch *CommandHandler) cmdTense(ctx context.Context, actor string, args []string) OutboundMessage {
	_, err := ch.machine.UpdateState(ctx, ch.workspaceID, commstate.StateChange{
		State: models.StateTense,
		Topic: strings.Join(args, " "),
	}, actor)
	if err != nil {
		return reply(errorText("tense", err))
	}
	return reply("Marked as tense. Go gently.")
}

func (ch *CommandHandler) cmdAck(ctx context.Context, actor string) OutboundMessage {
	_, err := ch.machine.Acknowledge(ctx, ch.workspaceID, actor)
	if err != nil {
		return reply(errorText("ack", err))
	}
	return reply("Acknowledged. Take the time you need.")
}

func (ch *CommandHandler) cmdClarify(ctx context.Context, actor string, args []string) OutboundMessage {
	if ch.events == nil {
		return reply("Clarifications are not recorded here.")
	}
	if len(args) == 0 {
		return reply("Usage: `!hearth clarify <what you assumed>`")
	}
	if _, err := ch.events.RecordClarification(ctx, ch.workspaceID, actor, map[string]any{
		"assumption": strings.Join(args, " "),
	}); err != nil {
		return reply(fmt.Sprintf("Error recording clarification: %v", err))
	}
	return reply("Clarification noted.")
}

func (ch *CommandHandler) cmdStatus(ctx context.Context) OutboundMessage {
	mode, err := ch.machine.GetMode(ctx, ch.workspaceID)
	if err != nil {
		return reply(fmt.Sprintf("Error getting status: %v", err))
	}
	es := ch.machine.GetEmergencyState(ctx, ch.workspaceID)
	ev := FormatStatus(mode, es)
	return OutboundMessage{Text: ev.Title, Events: []FormattedEvent{ev}}
}

func (ch *CommandHandler) cmdRisk(ctx context.Context) OutboundMessage {
	if ch.risk == nil {
		return reply("Risk analysis is not enabled.")
	}
	ev := FormatRisk(ch.risk.EvaluateWorkspace(ctx, ch.workspaceID))
	return OutboundMessage{Text: ev.Title, Events: []FormattedEvent{ev}}
}

func reply(text string) OutboundMessage {
	return OutboundMessage{Text: text}
}

// errorText turns a machine error into a chat reply.
func errorText(op string, err error) string {
	var te *commstate.TransitionError
	switch {
	case errors.Is(err, commstate.ErrUnauthorized):
		return fmt.Sprintf("Not allowed to %s: %v", op, err)
	case errors.As(err, &te):
		return fmt.Sprintf("Cannot move from %s to %s.", te.From, te.To)
	case errors.Is(err, commstate.ErrNotPaused):
		return "Nothing to acknowledge; Hearth is not paused."
	default:
		return fmt.Sprintf("Error during %s: %v", op, err)
	}
}

// helpText returns usage information for all commands.
func helpText() string {
	return "**Hearth Commands**\n" +
		"`!hearth pause [30m] [topic]` - Emergency pause (default 20m)\n" +
		"`!hearth resume` - Back to calm\n" +
		"`!hearth tense [topic]` - Flag that things feel tense\n" +
		"`!hearth ack` - Acknowledge your partner's pause\n" +
		"`!hearth clarify <assumption>` - Record a clarified assumption\n" +
		"`!hearth status` - Current state\n" +
		"`!hearth risk` - Current escalation risk\n" +
		"`!hearth help` - This message"
}
