package main

import (
	"context"
	"database/sql"

	"github.com/platinummonkey/groundwork/pkg/config"
	"github.com/platinummonkey/groundwork/pkg/db"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		migrateStep("up", "Apply all pending migrations", db.Migrate),
		migrateStep("status", "Print the status of every migration", db.MigrationStatus),
		migrateStep("down", "Roll back the most recent migration", db.Rollback),
	)
	return cmd
}

func migrateStep(use, short string, run func(ctx context.Context, conn *sql.DB, dialect string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			ctx := cmd.Context()
			conn, dialect, err := db.Open(ctx, db.ConnectionConfig{URL: cfg.Database.URL})
			if err != nil {
				return err
			}
			defer conn.Close()
			return run(ctx, conn, dialect)
		},
	}
}
