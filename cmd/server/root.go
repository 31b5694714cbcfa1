package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-timesheet-approvals/internal/callbacktoken"
	"github.com/pesio-ai/be-timesheet-approvals/internal/clock"
	"github.com/pesio-ai/be-timesheet-approvals/internal/config"
	"github.com/pesio-ai/be-timesheet-approvals/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "timesheet-approvals",
	Short: "Timesheet approval lifecycle and entry-locking service",
	Long: `timesheet-approvals runs the approval service (HTTP and gRPC), applies
its database schema, and mints approval links for support use.

Configuration comes from the environment, an optional .env file, or a YAML
file named by CONFIG_PATH.`,
	SilenceUsage: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(signLinkCmd)
	rootCmd.AddCommand(statusCmd)
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})
}

func newTokenService(cfg *config.Config, clk clock.Clock) (*callbacktoken.Service, error) {
	signer, err := callbacktoken.NewSignerFromSecret(cfg.Links.Secret)
	if err != nil {
		return nil, err
	}
	return callbacktoken.NewService(signer, clk, cfg.Links.MaxAge), nil
}
