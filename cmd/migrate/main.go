package main

import (
	"fmt"
	"os"

	"github.com/example/foodtracker/internal/config"
	"github.com/example/foodtracker/internal/dbmigrate"
	"github.com/spf13/cobra"
)

type migrator interface {
	Up(steps int) error
	Down(steps int) error
	Version() (uint, bool, error)
	Force(version int) error
	Close() error
}

type openFunc func(migrationsDir string) (migrator, error)

// openFromConfig resolves the postgres DSN from the environment.
func openFromConfig(migrationsDir string) (migrator, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.DBAdapter != "postgres" {
		return nil, fmt.Errorf("migrations only work with PostgreSQL. Current adapter: %s", cfg.DBAdapter)
	}
	if migrationsDir == "" {
		migrationsDir = cfg.MigrationsDir
	}
	m, err := dbmigrate.Open(migrationsDir, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newRootCmd(open openFunc) *cobra.Command {
	var (
		migrationsDir string
		steps         int
	)

	withMigrator := func(run func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			m, err := open(migrationsDir)
			if err != nil {
				return err
			}
			defer m.Close()
			return run(cmd, m, args)
		}
	}

	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the foodtracker PostgreSQL schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&migrationsDir, "dir", "", "Migrations directory (defaults to MIGRATIONS_DIR)")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if err := m.Up(steps); err != nil {
				return fmt.Errorf("migration up failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied successfully")
			return nil
		}),
	}
	up.Flags().IntVar(&steps, "steps", 0, "Number of migrations to apply (0 = all)")

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			if err := m.Down(steps); err != nil {
				return fmt.Errorf("migration down failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations rolled back successfully")
			return nil
		}),
	}
	down.Flags().IntVar(&steps, "steps", 0, "Number of migrations to roll back (0 = all)")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			v, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			if dirty {
				return fmt.Errorf("database is in a dirty state (version %d)", v)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", v)
			return nil
		}),
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark the schema as VERSION without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
			var v int
			if _, err := fmt.Sscanf(args[0], "%d", &v); err != nil || v <= 0 {
				return fmt.Errorf("invalid version %q", args[0])
			}
			if err := m.Force(v); err != nil {
				return fmt.Errorf("force migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forced database to version %d\n", v)
			return nil
		}),
	}

	root.AddCommand(up, down, version, force)
	return root
}

func main() {
	if err := newRootCmd(openFromConfig).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
