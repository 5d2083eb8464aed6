package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/runlist"
	"github.com/dyluth/burrow/internal/watch"
	"github.com/spf13/cobra"
)

var (
	watchLedger       ledgerFlags
	watchOutputFormat string
	watchWait         time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch RUN_ID",
	Short: "Follow a run recorded in the ledger",
	Long: `Replay a run's events from the ledger, then follow live events until the
run finishes or is aborted.

Output Formats:
  default - Human-readable progress with colors
  json    - The run's event lines exactly as "burrow run" wrote them

Examples:
  # Follow a run started with --redis-url (an ID prefix is enough)
  burrow watch 3f2a9c1e

  # Wait up to a minute for the run to appear, then export its events
  burrow watch 3f2a9c1e-... --wait=1m --output=json > events.jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchLedger.register(watchCmd)
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().DurationVar(&watchWait, "wait", 0, "Wait this long for the run to appear")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format := watch.OutputFormat(watchOutputFormat)
	if err := format.Validate(); err != nil {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := watchLedger.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	runID := args[0]
	if watchWait == 0 {
		runID, err = runlist.ResolveRunID(ctx, client, runID)
		if err != nil {
			return printer.Error("run not found", err.Error(), []string{"List recorded runs:\n  burrow runs"})
		}
	} else {
		if _, err := watch.WaitForRun(ctx, client, runID, watchWait); err != nil {
			return printer.Error("run not found", err.Error(), []string{"List recorded runs:\n  burrow runs"})
		}
	}

	if err := watch.Stream(ctx, client, runID, format, cmd.OutOrStdout()); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return printer.Error("watch failed", err.Error(), []string{"List recorded runs:\n  burrow runs"})
	}
	return nil
}
