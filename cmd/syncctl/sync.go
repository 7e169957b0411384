package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vitrine/backend/internal/domain/catalogsync"
)

var (
	pullBatchSize  int
	pushBatchSize  int
	pushMaxRetries int
)

var discoverCmd = &cobra.Command{
	Use:   "discover [entity-type]",
	Short: "Compare the remote catalog with the mirror",
	Args:  cobra.ExactArgs(1),
	RunE:  runDiscover,
}

var pullCmd = &cobra.Command{
	Use:   "pull [entity-type] [ids...]",
	Short: "Fetch remote ids into the mirror",
	Long:  `Fetches the given remote ids and upserts them into the mirror. Ids may be separate arguments or comma separated.`,
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPull,
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Process the due items of the push queue",
	Args:  cobra.NoArgs,
	RunE:  runPush,
}

var fullSyncCmd = &cobra.Command{
	Use:   "full-sync [entity-type]",
	Short: "Run discover, pull and push in one guarded run",
	Args:  cobra.ExactArgs(1),
	RunE:  runFullSync,
}

func init() {
	pullCmd.Flags().IntVar(&pullBatchSize, "batch-size", 0, "ids per chunk (default from config)")
	pushCmd.Flags().IntVar(&pushBatchSize, "batch-size", 0, "items per pass (default from config)")
	pushCmd.Flags().IntVar(&pushMaxRetries, "max-retries", 0, "attempt cap for this pass (default: item setting)")

	rootCmd.AddCommand(discoverCmd, pullCmd, pushCmd, fullSyncCmd)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	orgID, err := organizationID()
	if err != nil {
		return err
	}
	et, err := entityTypeArg(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	return withApp(ctx, func(ctx context.Context, a *app) error {
		result, err := a.orchestrator.Discover(ctx, orgID, et)
		if err != nil {
			return fmt.Errorf("discover failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, result)
		}
		cmd.Printf("Remote: %d  Local: %d\n", result.RemoteCount, result.LocalCount)
		cmd.Printf("Missing locally:   %d\n", len(result.MissingIDs))
		cmd.Printf("Changed remotely:  %d\n", len(result.ChangedIDs))
		cmd.Printf("Removed remotely:  %d\n", len(result.RemovedRemotely))
		cmd.Printf("Local creates:     %d\n", len(result.ToCreateRemote))
		cmd.Printf("Local updates:     %d\n", len(result.ToUpdateRemote))
		cmd.Printf("Local deletes:     %d\n", len(result.ToDeleteRemote))
		cmd.Printf("Conflicts:         %d\n", len(result.Conflicts))
		return nil
	})
}

func runPull(cmd *cobra.Command, args []string) error {
	orgID, err := organizationID()
	if err != nil {
		return err
	}
	et, err := entityTypeArg(args[0])
	if err != nil {
		return err
	}
	ids, err := parseIDs(args[1:])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	return withApp(ctx, func(ctx context.Context, a *app) error {
		result, err := a.orchestrator.Pull(ctx, orgID, et, ids, pullBatchSize)
		if err != nil {
			return fmt.Errorf("pull failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, result)
		}
		cmd.Printf("Pulled %d of %d ids, %d failed\n", result.Processed, result.Requested, result.Errors)
		for _, id := range result.FailedIDs {
			cmd.Printf("  failed: %d\n", id)
		}
		return nil
	})
}

func runPush(cmd *cobra.Command, _ []string) error {
	orgID, err := organizationID()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	return withApp(ctx, func(ctx context.Context, a *app) error {
		result, err := a.orchestrator.ProcessQueue(ctx, orgID, pushBatchSize, pushMaxRetries)
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, result)
		}
		cmd.Printf("Pushed %d items, %d errors, %d deferred\n", result.Processed, result.Errors, result.Deferred)
		return nil
	})
}

func runFullSync(cmd *cobra.Command, args []string) error {
	orgID, err := organizationID()
	if err != nil {
		return err
	}
	et, err := entityTypeArg(args[0])
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	return withApp(ctx, func(ctx context.Context, a *app) error {
		progress := func(run catalogsync.SyncRun) {
			if !jsonOutput {
				cmd.Printf("[%3d%%] %s: %s\n", run.Progress, run.Phase, run.CurrentStep)
			}
		}
		run, err := a.orchestrator.FullSync(ctx, orgID, et, progress)
		if err != nil {
			return fmt.Errorf("full sync failed: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, run)
		}
		if run.Phase == catalogsync.RunPhaseFailed {
			return fmt.Errorf("full sync %s failed: %s", run.ID, run.FailureReason)
		}
		cmd.Printf("Full sync %s completed\n", run.ID)
		return nil
	})
}
