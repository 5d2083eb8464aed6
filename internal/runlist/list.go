// Package runlist renders the runs recorded in the ledger.
package runlist

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dyluth/burrow/pkg/ledger"
)

// OutputFormat specifies how to format the run list.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete runs as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// Filter narrows the listed runs. All criteria are ANDed together.
type Filter struct {
	SinceMs  int64            // Started at or after, 0 = no filter
	Status   ledger.RunStatus // Exact status, empty = no filter
	CaseGlob string           // Glob on the case id, empty = no filter
}

func (f *Filter) matches(r *ledger.Run) bool {
	if f.SinceMs > 0 && r.StartedAtMs < f.SinceMs {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.CaseGlob != "" {
		matched, err := doublestar.Match(f.CaseGlob, r.CaseID)
		if err != nil || !matched {
			return false
		}
	}
	return true
}

// List loads up to limit runs (0 = all), applies the filter and writes them
// to w, newest first.
func List(ctx context.Context, client *ledger.Client, format OutputFormat, filter *Filter, limit int, w io.Writer) error {
	if format != OutputFormatDefault && format != OutputFormatJSONL {
		return fmt.Errorf("invalid output format: %q (must be 'default' or 'jsonl')", format)
	}

	runs, err := client.ListRuns(ctx, 0)
	if err != nil {
		return err
	}

	var selected []*ledger.Run
	for _, r := range runs {
		if filter != nil && !filter.matches(r) {
			continue
		}
		selected = append(selected, r)
		if limit > 0 && len(selected) == limit {
			break
		}
	}

	if format == OutputFormatJSONL {
		return FormatJSONL(w, selected)
	}
	FormatTable(w, selected, client.InstanceName(), time.Now())
	return nil
}

// ParseTime parses a --since value into Unix milliseconds.
// Supports Go durations relative to now ("1h30m" means 90 minutes ago) and
// RFC3339 timestamps.
func ParseTime(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}
	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}
	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d).UnixMilli(), nil
	}
	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2025-10-29T13:00:00Z')", spec)
}
