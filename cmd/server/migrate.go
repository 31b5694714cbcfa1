package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-timesheet-approvals/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := newLogger(cfg)

	// Opening the stores applies the schema for both drivers.
	st, err := openStores(cmd.Context(), cfg, true)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	st.close()

	log.Info().Str("db_driver", cfg.Database.Driver).Msg("Schema is up to date")
	return nil
}
