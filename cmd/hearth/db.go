package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/hearth/internal/config"
	"github.com/zulandar/hearth/internal/db"
	"golang.org/x/term"
	"gorm.io/gorm"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBResetCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the Hearth database",
		Long:  "Creates the database (MySQL/Dolt only), migrates all tables, and seeds the workspace members and its calm mode row.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded config for workspace %q from %s\n", cfg.Workspace.ID, configPath)

	if cfg.Database.Driver == "mysql" {
		adminDB, err := db.ConnectAdmin(cfg.Database.User, cfg.Database.Host, cfg.Database.Port)
		if err != nil {
			return err
		}
		defer closeDB(adminDB)
		if err := db.CreateDatabase(adminDB, cfg.Database.Database); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s ready\n", cfg.Database.Database)
	}

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB(gdb)
	if err := migrateAndSeed(out, gdb, cfg); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nHearth database initialized successfully.")
	return nil
}

func migrateAndSeed(out io.Writer, gdb *gorm.DB, cfg *config.Config) error {
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	if err := db.SeedMembers(gdb, cfg.Workspace); err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d members:", len(cfg.Workspace.Members))
	for _, m := range cfg.Workspace.Members {
		fmt.Fprintf(out, " %s", m.ID)
	}
	fmt.Fprintln(out)

	if err := db.SeedMode(gdb, cfg.Workspace.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Workspace %q is calm\n", cfg.Workspace.ID)
	return nil
}

func newDBResetCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drop and re-initialize the Hearth database",
		Long: `Deletes every mode, transition, event and loop for the configured database,
then migrates and seeds it again. SQLite files are removed; MySQL databases
are dropped and re-created. The local emergency queue is not touched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBReset(cmd, configPath, yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hearth config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBReset(cmd *cobra.Command, configPath string, skipConfirm bool) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	target := cfg.Database.Database
	if cfg.Database.Driver == "sqlite" {
		target = cfg.Database.Path
	}

	if !skipConfirm {
		if !interactive(cmd.InOrStdin()) {
			return fmt.Errorf("refusing to reset %s without a terminal; pass --yes", target)
		}
		if !confirmReset(cmd, target) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	switch cfg.Database.Driver {
	case "sqlite":
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(target + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", target+suffix, err)
			}
		}
		fmt.Fprintf(out, "Removed %s\n", target)
	case "mysql":
		adminDB, err := db.ConnectAdmin(cfg.Database.User, cfg.Database.Host, cfg.Database.Port)
		if err != nil {
			return err
		}
		defer closeDB(adminDB)
		if err := db.DropDatabase(adminDB, target); err != nil {
			return err
		}
		fmt.Fprintf(out, "Dropped database %s\n", target)
		if err := db.CreateDatabase(adminDB, target); err != nil {
			return err
		}
		fmt.Fprintf(out, "Database %s re-created\n", target)
	}

	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB(gdb)
	if err := migrateAndSeed(out, gdb, cfg); err != nil {
		return err
	}

	fmt.Fprintln(out, "\nHearth database reset and re-initialized successfully.")
	return nil
}

// interactive reports whether a confirmation prompt can be answered. Readers
// other than a file (tests, pipes set up by the caller) always can.
func interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return true
	}
	return term.IsTerminal(int(f.Fd()))
}

func confirmReset(cmd *cobra.Command, target string) bool {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "WARNING: This will permanently delete all Hearth data in %q.\n", target)
	fmt.Fprintln(out, "This action cannot be undone.")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Type \"yes\" to confirm: ")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()) == "yes"
	}
	return false
}
