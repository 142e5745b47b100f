package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/zulandar/hearth/internal/commstate"
)

// Command runs a shell command for every notification, e.g. a desktop
// notifier. Placeholders: {{.Workspace}} {{.Kind}} {{.State}} {{.Topic}}
// {{.Actor}} {{.Trigger}} {{.Until}}.
type Command struct {
	template string
	shell    string
}

// NewCommand returns nil when template is empty, so the result can be put
// straight into a Multi.
func NewCommand(template string) *Command {
	if strings.TrimSpace(template) == "" {
		return nil
	}
	return &Command{template: template, shell: "sh"}
}

// Notify implements commstate.Notifier.
func (c *Command) Notify(ctx context.Context, n commstate.Notification) error {
	if c == nil {
		return nil
	}
	out, err := exec.CommandContext(ctx, c.shell, "-c", expand(c.template, n)).CombinedOutput()
	if err != nil {
		return fmt.Errorf("notify: command: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// expand replaces placeholders in a command template. Values are
// single-quote escaped so a topic cannot break out of a quoted argument.
func expand(template string, n commstate.Notification) string {
	until := ""
	if n.TimeoutEnd != nil {
		until = n.TimeoutEnd.Local().Format(time.Kitchen)
	}
	r := strings.NewReplacer(
		"{{.Workspace}}", quoteSafe(n.WorkspaceID),
		"{{.Kind}}", quoteSafe(n.Kind),
		"{{.State}}", quoteSafe(n.State),
		"{{.Topic}}", quoteSafe(n.Topic),
		"{{.Actor}}", quoteSafe(n.ActorID),
		"{{.Trigger}}", quoteSafe(n.Trigger),
		"{{.Until}}", until,
	)
	return r.Replace(template)
}

func quoteSafe(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}
