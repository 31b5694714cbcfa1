package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-timesheet-approvals/internal/callbacktoken"
	"github.com/pesio-ai/be-timesheet-approvals/internal/clock"
	"github.com/pesio-ai/be-timesheet-approvals/internal/config"
)

var signLinkAction string

var signLinkCmd = &cobra.Command{
	Use:   "sign-link <approval-id>",
	Short: "Print a fresh approve or reject link for an approval",
	Long: `sign-link mints a new callback link with the configured secret, for
resending a request whose email was lost or whose link expired.`,
	Args: cobra.ExactArgs(1),
	RunE: runSignLink,
}

func init() {
	signLinkCmd.Flags().StringVar(&signLinkAction, "action", string(callbacktoken.ActionApprove), "approve or reject")
}

func runSignLink(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	tokens, err := newTokenService(cfg, clock.Real())
	if err != nil {
		return err
	}

	id := args[0]
	switch callbacktoken.Action(signLinkAction) {
	case callbacktoken.ActionApprove:
		fmt.Fprintln(cmd.OutOrStdout(), tokens.ApproveURL(cfg.Links.ApproveURL, id))
	case callbacktoken.ActionReject:
		fmt.Fprintln(cmd.OutOrStdout(), tokens.RejectURL(cfg.Links.RejectURL, id))
	default:
		return fmt.Errorf("unknown action %q (want approve or reject)", signLinkAction)
	}
	return nil
}
