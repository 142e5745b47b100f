package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/config"
	"github.com/zulandar/hearth/internal/telegraph"
)

// actorEnv names the member when --as is not given.
const actorEnv = "HEARTH_USER"

// resolveActor maps --as (or $HEARTH_USER) to a workspace member id. Chat
// ids are accepted too.
func resolveActor(cfg *config.Config, as string) (string, error) {
	if as == "" {
		as = os.Getenv(actorEnv)
	}
	if as == "" {
		return "", fmt.Errorf("no member given: pass --as or set %s", actorEnv)
	}
	m, ok := cfg.Member(as)
	if !ok {
		return "", fmt.Errorf("%q is not a member of workspace %q", as, cfg.Workspace.ID)
	}
	return m.ID, nil
}

// withApp loads the config and opens the app for a one-shot command. State
// changes are announced over chat and the notify hook.
func withApp(cmd *cobra.Command, configPath string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	notifier, closeChat := oneShotNotifier(ctx, cfg)
	defer closeChat()

	a, err := openApp(ctx, cfg, appOpts{Notifier: notifier})
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

// withReadOnlyApp opens the app without any notifier.
func withReadOnlyApp(cmd *cobra.Command, configPath string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg, appOpts{})
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func newPauseCmd() *cobra.Command {
	var (
		configPath string
		as         string
		duration   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pause [topic]",
		Short: "Call an emergency pause",
		Long: `Pauses the conversation for both partners. The pause always goes through:
if the store is unreachable it is queued locally and replayed by the server.
The running server returns the workspace to calm when the pause ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPause(cmd, configPath, as, strings.Join(args, " "), duration)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().StringVar(&as, "as", "", "member calling the pause (default $"+actorEnv+")")
	cmd.Flags().DurationVar(&duration, "for", 0, "pause length (default emergency.default_duration_minutes)")
	return cmd
}

func runPause(cmd *cobra.Command, configPath, as, topic string, duration time.Duration) error {
	out := cmd.OutOrStdout()
	if duration < 0 {
		return fmt.Errorf("--for must be positive")
	}
	return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
		actor, err := resolveActor(a.cfg, as)
		if err != nil {
			return err
		}
		res, err := a.queue.TriggerEmergencyPauseReliable(ctx, a.cfg.Workspace.ID, topic, actor, duration)
		if err != nil {
			return err
		}
		if res.Queued {
			fmt.Fprintf(out, "Store unreachable: pause queued until %s and will be applied when it is back.\n", res.TimeoutEnd.Local().Format(time.Kitchen))
			return nil
		}
		fmt.Fprintf(out, "Paused until %s.\n", res.TimeoutEnd.Local().Format(time.Kitchen))
		if res.Mode != nil && res.Mode.ActiveTopic != "" {
			fmt.Fprintf(out, "Topic: %s\n", res.Mode.ActiveTopic)
		}
		return nil
	})
}

func newResumeCmd() *cobra.Command {
	var configPath, as string

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "End the pause and return to calm",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResume(cmd, configPath, as)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().StringVar(&as, "as", "", "member resuming (default $"+actorEnv+")")
	return cmd
}

func runResume(cmd *cobra.Command, configPath, as string) error {
	out := cmd.OutOrStdout()
	return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
		actor, err := resolveActor(a.cfg, as)
		if err != nil {
			return err
		}
		queued, err := a.queue.ResumeReliable(ctx, a.cfg.Workspace.ID, actor)
		if err != nil {
			return err
		}
		if queued {
			fmt.Fprintln(out, "Store unreachable: resume queued and will be applied when it is back.")
			return nil
		}
		fmt.Fprintln(out, "Resumed. Hearth is calm.")
		return nil
	})
}

func newAckCmd() *cobra.Command {
	var configPath, as string

	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledge your partner's pause",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAck(cmd, configPath, as)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().StringVar(&as, "as", "", "member acknowledging (default $"+actorEnv+")")
	return cmd
}

func runAck(cmd *cobra.Command, configPath, as string) error {
	out := cmd.OutOrStdout()
	return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
		actor, err := resolveActor(a.cfg, as)
		if err != nil {
			return err
		}
		if _, err := a.machine.Acknowledge(ctx, a.cfg.Workspace.ID, actor); err != nil {
			return err
		}
		fmt.Fprintln(out, "Pause acknowledged.")
		return nil
	})
}

func newSetCmd() *cobra.Command {
	var configPath, as, topic string

	cmd := &cobra.Command{
		Use:   "set <calm|tense|paused>",
		Short: "Move the workspace to a state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSet(cmd, configPath, as, args[0], topic)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().StringVar(&as, "as", "", "member making the change (default $"+actorEnv+")")
	cmd.Flags().StringVar(&topic, "topic", "", "topic under discussion")
	return cmd
}

func runSet(cmd *cobra.Command, configPath, as, state, topic string) error {
	out := cmd.OutOrStdout()
	if !commstate.ValidState(state) {
		return fmt.Errorf("unknown state %q (use calm, tense or paused)", state)
	}
	return withApp(cmd, configPath, func(ctx context.Context, a *app) error {
		actor, err := resolveActor(a.cfg, as)
		if err != nil {
			return err
		}
		mode, err := a.machine.UpdateState(ctx, a.cfg.Workspace.ID, commstate.StateChange{State: state, Topic: topic}, actor)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Hearth is %s.\n", mode.StateDisplay)
		return nil
	})
}

func newStatusCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath, asJSON)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string, asJSON bool) error {
	out := cmd.OutOrStdout()
	return withReadOnlyApp(cmd, configPath, func(ctx context.Context, a *app) error {
		mode, err := a.machine.GetMode(ctx, a.cfg.Workspace.ID)
		if err != nil {
			return err
		}
		es := a.machine.GetEmergencyState(ctx, a.cfg.Workspace.ID)
		if asJSON {
			return writeJSON(out, map[string]any{
				"mode":        mode,
				"emergency":   es,
				"queue_depth": a.queue.Len(),
			})
		}
		renderEvent(out, telegraph.FormatStatus(mode, es))
		if n := a.queue.Len(); n > 0 {
			fmt.Fprintf(out, "\n%d emergency action(s) queued locally\n", n)
		}
		return nil
	})
}

func newRiskCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Assess the current risk of a debugging loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRisk(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	return cmd
}

func runRisk(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	return withReadOnlyApp(cmd, configPath, func(ctx context.Context, a *app) error {
		renderEvent(out, telegraph.FormatRisk(a.analyzer.EvaluateWorkspace(ctx, a.cfg.Workspace.ID)))
		return nil
	})
}

func newAnalyticsCmd() *cobra.Command {
	var (
		configPath string
		window     string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show partnership metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalytics(cmd, configPath, window, asJSON)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().StringVarP(&window, "range", "r", "7d", "window: 7d, 30d or 90d")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func runAnalytics(cmd *cobra.Command, configPath, window string, asJSON bool) error {
	out := cmd.OutOrStdout()
	r, err := analysis.ParseTimeRange(window)
	if err != nil {
		return err
	}
	return withReadOnlyApp(cmd, configPath, func(ctx context.Context, a *app) error {
		m, err := a.analyzer.GetPartnershipMetrics(ctx, a.cfg.Workspace.ID, r)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "analytics unavailable: %v\n", err)
		}
		if asJSON {
			return writeJSON(out, m)
		}
		renderEvent(out, telegraph.FormatDigest(m))
		return nil
	})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
