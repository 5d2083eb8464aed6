package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/burrow/internal/printer"
	"github.com/dyluth/burrow/internal/runlist"
	"github.com/dyluth/burrow/pkg/ledger"
	"github.com/spf13/cobra"
)

var (
	runsLedger       ledgerFlags
	runsOutputFormat string
	runsSince        string
	runsStatus       string
	runsCase         string
	runsLimit        int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs recorded in the ledger",
	Long: `List recorded runs, newest first.

Output Formats:
  default - Human-readable table
  jsonl   - Line-delimited JSON, one run per line

Filters:
  --since   - Runs started after this time (duration or RFC3339)
  --status  - running, finished or aborted
  --case    - Glob on the case id ("rename-*")

Examples:
  # Runs of the last two hours
  burrow runs --since=2h

  # Aborted runs as JSON for jq
  burrow runs --status=aborted --output=jsonl | jq .id`,
	Args: cobra.NoArgs,
	RunE: runRuns,
}

func init() {
	runsLedger.register(runsCmd)
	runsCmd.Flags().StringVarP(&runsOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	runsCmd.Flags().StringVar(&runsSince, "since", "", "Show runs started after time (duration or RFC3339)")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "Filter by run status")
	runsCmd.Flags().StringVar(&runsCase, "case", "", "Filter by case id (glob pattern)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Show at most this many runs (0 = all)")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	format := runlist.OutputFormat(runsOutputFormat)
	if format != runlist.OutputFormatDefault && format != runlist.OutputFormatJSONL {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", runsOutputFormat),
			[]string{"Valid formats: default, jsonl"},
		)
	}

	filter := &runlist.Filter{CaseGlob: runsCase}
	if runsSince != "" {
		since, err := runlist.ParseTime(runsSince, time.Now())
		if err != nil {
			return printer.Error("invalid --since value", err.Error(), nil)
		}
		filter.SinceMs = since
	}
	if runsStatus != "" {
		filter.Status = ledger.RunStatus(runsStatus)
		if err := filter.Status.Validate(); err != nil {
			return printer.Error("invalid --status value", err.Error(), []string{"Valid statuses: running, finished, aborted"})
		}
	}

	ctx := context.Background()
	client, err := runsLedger.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	return runlist.List(ctx, client, format, filter, runsLimit, cmd.OutOrStdout())
}
