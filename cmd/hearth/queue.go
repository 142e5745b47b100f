package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/hearth/internal/commstate"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the local emergency queue",
	}

	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueDrainCmd())
	return cmd
}

// queueKeyFor maps --server to the key the running server owns.
func queueKeyFor(server bool) string {
	if server {
		return commstate.QueueKey
	}
	return cliQueueKey
}

func newQueueListCmd() *cobra.Command {
	var (
		configPath string
		server     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued emergency actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueList(cmd, configPath, queueKeyFor(server))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().BoolVar(&server, "server", false, "show the server's queue instead of the command line's")
	return cmd
}

func runQueueList(cmd *cobra.Command, configPath, key string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := openApp(cmd.Context(), cfg, appOpts{QueueKey: key})
	if err != nil {
		return err
	}
	defer a.close()

	items := a.queue.Items()
	if len(items) == 0 {
		fmt.Fprintln(out, "No queued emergency actions.")
		return nil
	}
	fmt.Fprintf(out, "%-36s  %-6s  %-10s  %-8s  %s\n", "ID", "ACTION", "MEMBER", "QUEUED", "TOPIC")
	for _, it := range items {
		fmt.Fprintf(out, "%-36s  %-6s  %-10s  %-8s  %s\n",
			it.ID, it.Action, truncate(it.UserID, 10), formatAge(time.Since(it.Timestamp)), it.Topic)
	}
	return nil
}

func newQueueDrainCmd() *cobra.Command {
	var (
		configPath string
		server     bool
	)

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay queued emergency actions now",
		Long: `Replays queued pauses and resumes oldest first. Stops at the first action
the store still cannot accept; the rest stay queued. Only drain the server's
queue while the server is stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueueDrain(cmd, configPath, queueKeyFor(server))
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().BoolVar(&server, "server", false, "drain the server's queue instead of the command line's")
	return cmd
}

func runQueueDrain(cmd *cobra.Command, configPath, key string) error {
	out := cmd.OutOrStdout()
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

	a, err := openApp(ctx, cfg, appOpts{Notifier: notifier, QueueKey: key})
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.queue.Process(ctx)
	fmt.Fprintf(out, "Replayed %d, dropped %d, %d remaining\n", res.Drained, res.Dropped, res.Remaining)
	return err
}
