package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/hearth/internal/analysis"
	"github.com/zulandar/hearth/internal/commstate"
	"github.com/zulandar/hearth/internal/config"
	"github.com/zulandar/hearth/internal/daemon"
	"github.com/zulandar/hearth/internal/dashboard"
	"github.com/zulandar/hearth/internal/metrics"
	"github.com/zulandar/hearth/internal/notify"
	"github.com/zulandar/hearth/internal/telegraph"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
		noChat     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Hearth server",
		Long: `Runs the HTTP API, the chat bridge and the background scheduler until
interrupted. Pauses survive restarts: recovery timers are re-armed from the
store and queued emergency actions are replayed on startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port, noChat)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides dashboard.port)")
	cmd.Flags().BoolVar(&noChat, "no-chat", false, "do not connect to the chat platform")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int, noChat bool) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Dashboard.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var adapter telegraph.Adapter
	if cfg.Telegraph.Platform != "" && !noChat {
		adapter, err = createAdapter(cfg)
		if err != nil {
			return err
		}
	}

	hub := notify.NewHub()
	notifiers := notify.Multi{hub}
	if adapter != nil {
		chat, err := notify.NewChat(notify.ChatOpts{Sender: adapter, Channel: cfg.Telegraph.Channel})
		if err != nil {
			return err
		}
		notifiers = append(notifiers, chat)
	}
	if c := notify.NewCommand(cfg.Notify.Command); c != nil {
		notifiers = append(notifiers, c)
	}

	m := metrics.New()
	a, err := openApp(ctx, cfg, appOpts{Notifier: notifiers, Metrics: m, QueueKey: commstate.QueueKey})
	if err != nil {
		return err
	}
	defer a.close()

	handoff, err := commstate.NewQueue(commstate.QueueOpts{Machine: a.machine, KV: a.kv, Key: cliQueueKey, Metrics: m})
	if err != nil {
		return err
	}

	sched, err := newScheduler(cfg, a, handoff, adapter, out)
	if err != nil {
		return err
	}

	tasks := map[string]func(context.Context) error{
		"scheduler": sched.Run,
		"dashboard": func(ctx context.Context) error {
			return dashboard.Start(ctx, dashboard.StartOpts{
				Opts: dashboard.Opts{
					WorkspaceID: cfg.Workspace.ID,
					Machine:     a.machine,
					Queue:       a.queue,
					Analyzer:    a.analyzer,
					Store:       a.store,
					Hub:         hub,
					Metrics:     m,
				},
				Port: cfg.Dashboard.Port,
				Out:  out,
			})
		},
	}
	if adapter != nil {
		handler, err := telegraph.NewCommandHandler(telegraph.CommandHandlerOpts{
			WorkspaceID: cfg.Workspace.ID,
			Machine:     a.machine,
			Queue:       a.queue,
			Risk:        a.analyzer,
			Events:      a.store,
			Members:     lookupMember(cfg),
		})
		if err != nil {
			return err
		}
		bridge, err := telegraph.NewDaemon(telegraph.DaemonOpts{
			Adapter:    adapter,
			CmdHandler: handler,
			Channel:    cfg.Telegraph.Channel,
			Announce:   true,
			Out:        out,
		})
		if err != nil {
			return err
		}
		tasks["telegraph"] = bridge.Run
	}

	fmt.Fprintf(out, "Hearth serving workspace %q\n", cfg.Workspace.ID)
	err = runAll(ctx, tasks)
	fmt.Fprintln(out, "Hearth stopped.")
	return err
}

func newScheduler(cfg *config.Config, a *app, handoff *commstate.Queue, adapter telegraph.Adapter, out io.Writer) (*daemon.Daemon, error) {
	advisor, err := analysis.NewAdvisor(analysis.AdvisorOpts{
		Analyzer:  a.analyzer,
		Machine:   a.machine,
		AutoApply: cfg.Analysis.AutoApply,
	})
	if err != nil {
		return nil, err
	}
	opts := daemon.Opts{
		WorkspaceID:      cfg.Workspace.ID,
		Machine:          a.machine,
		Queue:            a.queue,
		Handoff:          handoff,
		Breaks:           a.store,
		DrainSchedule:    cfg.Emergency.DrainSchedule,
		Advisor:          advisor,
		EvaluateInterval: time.Duration(cfg.Analysis.EvaluateIntervalSec) * time.Second,
		Out:              out,
	}
	if cfg.Digest.Enabled && adapter != nil {
		opts.Digest = a.analyzer
		opts.Sender = adapter
		opts.DigestChannel = cfg.Telegraph.Channel
		opts.DigestSchedule = cfg.Digest.Schedule
		opts.DigestRange = analysis.TimeRange(cfg.Digest.RangeDays)
	}
	return daemon.New(opts)
}

// runAll runs every task until ctx is cancelled or one of them fails, in
// which case the rest are cancelled too. It returns after all have exited.
func runAll(ctx context.Context, tasks map[string]func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for name, task := range tasks {
		name, task := name, task
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
