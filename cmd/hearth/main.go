package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const defaultConfigPath = "hearth.yaml"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "hearth",
		Short:        "Hearth: a shared calm/tense/paused signal for two people",
		Long:         "Hearth tracks how a conversation between two partners is going, lets either of them call an emergency pause, and brings things back to calm when the break is over.",
		SilenceUsage: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPauseCmd())
	cmd.AddCommand(newResumeCmd())
	cmd.AddCommand(newAckCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRiskCmd())
	cmd.AddCommand(newAnalyticsCmd())
	cmd.AddCommand(newQueueCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hearth %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
