package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/phrazzld/codescope-api/internal/platform/sqlstore"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

func init() {
	commands := []struct {
		name, short string
	}{
		{sqlstore.MigrateUp, "Apply all pending migrations"},
		{sqlstore.MigrateDown, "Roll back the latest migration"},
		{sqlstore.MigrateReset, "Roll back all migrations"},
		{sqlstore.MigrateStatus, "Show the status of every migration"},
		{sqlstore.MigrateVersion, "Print the current schema version"},
	}
	for _, c := range commands {
		command := c.name
		migrateCmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd, command)
			},
		})
	}
}

func runMigrate(cmd *cobra.Command, command string) error {
	cfg, log, err := bootstrap(os.Stderr)
	if err != nil {
		return err
	}
	if cfg.Database.Driver == "memory" {
		return errors.New("the memory database driver has no persistent schema to migrate")
	}

	ctx := cmd.Context()
	db, err := sqlstore.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := sqlstore.Migrate(ctx, db, command, log); err != nil {
		return err
	}

	version, err := sqlstore.SchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version: %d\n", version)
	return nil
}
