package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command with up, down and version subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the session store schema",
	}
	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateVersionCmd())
	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			version, err := db.Migrate()
			if err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is at version %d.\n", version)
			return nil
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Long:  "Drops the session and rate limit tables. Requires --yes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm {
				return fmt.Errorf("refusing to drop the schema without --yes")
			}
			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if err := db.MigrateDown(); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All migrations rolled back.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "Confirm dropping the schema")
	return cmd
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openStore()
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			version, dirty, err := db.MigrationVersion()
			if err != nil {
				return fmt.Errorf("read migration version: %w", err)
			}
			out := cmd.OutOrStdout()
			if version == 0 {
				fmt.Fprintln(out, "No migrations applied.")
				return nil
			}
			fmt.Fprintf(out, "Version: %d\n", version)
			if dirty {
				fmt.Fprintln(out, "Warning: schema is dirty; a previous migration failed part way.")
			}
			return nil
		},
	}
}
