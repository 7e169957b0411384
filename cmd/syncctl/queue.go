package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and repair the push queue",
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counts per status",
	Args:  cobra.NoArgs,
	RunE:  runQueueStatus,
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue every failed item",
	Args:  cobra.NoArgs,
	RunE:  runQueueRetry,
}

func init() {
	queueCmd.AddCommand(queueStatusCmd, queueRetryCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueStatus(cmd *cobra.Command, _ []string) error {
	orgID, err := organizationID()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		status, err := a.queue.GetQueueStatus(ctx, orgID)
		if err != nil {
			return fmt.Errorf("queue status failed: %w", err)
		}
		return printJSON(cmd, status)
	})
}

func runQueueRetry(cmd *cobra.Command, _ []string) error {
	orgID, err := organizationID()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
		n, err := a.queue.RequeueAllFailed(ctx, orgID)
		if err != nil {
			return fmt.Errorf("requeue failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, map[string]int{"requeued": n})
		}
		cmd.Printf("Requeued %d failed items\n", n)
		return nil
	})
}
