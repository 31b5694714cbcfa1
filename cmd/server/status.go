package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-timesheet-approvals/internal/approval"
	"github.com/pesio-ai/be-timesheet-approvals/internal/client"
)

var (
	statusAddr    string
	statusKey     string
	statusProject string
	statusUser    string
	statusStart   string
	statusEnd     string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running server for the approval status of a period",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusAddr, "addr", "localhost:9086", "gRPC address of the server")
	f.StringVar(&statusKey, "key", "", "composite key (overrides the other selectors)")
	f.StringVar(&statusProject, "project", "", "project id")
	f.StringVar(&statusUser, "user", "", "user id")
	f.StringVar(&statusStart, "start", "", "period start, YYYY-MM-DD")
	f.StringVar(&statusEnd, "end", "", "period end, YYYY-MM-DD")
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := client.NewApprovalsGRPCClient(statusAddr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	var view approval.StatusView
	if statusKey != "" {
		view, err = c.GetApprovalStatus(ctx, statusKey)
	} else {
		period, perr := approval.ParsePeriod(statusStart, statusEnd)
		if perr != nil {
			return perr
		}
		view, err = c.StatusFor(ctx, statusProject, period, statusUser)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Status: %s\n", view.Status)
	if view.ApprovalID != "" {
		fmt.Fprintf(out, "Approval: %s\n", view.ApprovalID)
	}
	return nil
}
