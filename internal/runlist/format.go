package runlist

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/burrow/pkg/ledger"
)

// FormatTable writes runs as a table and returns the number written.
func FormatTable(w io.Writer, runs []*ledger.Run, instanceName string, now time.Time) int {
	if len(runs) == 0 {
		fmt.Fprintf(w, "No runs found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Runs for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-9s %-16s %-8s %-11s %s\n",
		"ID", "STATUS", "CASE", "ENGINE", "PROGRESS", "STARTED")
	fmt.Fprintf(w, "%-10s %-9s %-16s %-8s %-11s %s\n",
		"----------", "---------", "----------------", "--------", "-----------", "--------")

	for _, r := range runs {
		fmt.Fprintf(w, "%-10s %-9s %-16s %-8s %-11s %s\n",
			formatID(r.ID),
			r.Status,
			truncate(r.CaseID, 16),
			truncate(r.Engine, 8),
			fmt.Sprintf("%d/%d", r.Processed, r.Total),
			formatAge(r.StartedAtMs, now),
		)
	}

	noun := "run"
	if len(runs) != 1 {
		noun = "runs"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(runs), noun)

	return len(runs)
}

// FormatJSONL writes each run as one JSON object per line.
func FormatJSONL(w io.Writer, runs []*ledger.Run) error {
	for _, r := range runs {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal run to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// formatID truncates a run ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if s == "" {
		return "-"
	}
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

// formatAge renders a millisecond timestamp relative to now, like "2m ago".
func formatAge(timestampMs int64, now time.Time) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := now.Sub(time.UnixMilli(timestampMs))
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
