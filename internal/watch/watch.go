// Package watch follows a run recorded in the ledger from another process.
package watch

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/dyluth/burrow/internal/report"
	"github.com/dyluth/burrow/pkg/ledger"
)

// OutputFormat selects how streamed events are rendered.
type OutputFormat string

const (
	// FormatDefault renders events for humans.
	FormatDefault OutputFormat = "default"

	// FormatJSON writes each event as one JSON line, as the run printed it.
	FormatJSON OutputFormat = "json"
)

// Validate checks if the format is one of the known values.
func (f OutputFormat) Validate() error {
	switch f {
	case FormatDefault, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid output format: %q (must be 'default' or 'json')", f)
	}
}

// statusInterval is how often Stream checks whether a followed run ended
// without a finish event.
var statusInterval = 2 * time.Second

// WaitForRun polls for a run to appear in the ledger.
// Polls every 200ms for the specified timeout duration.
func WaitForRun(ctx context.Context, client *ledger.Client, runID string, timeout time.Duration) (*ledger.Run, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		run, err := client.GetRun(ctx, runID)
		if err == nil {
			return run, nil
		}
		if !ledger.IsNotFound(err) {
			return nil, fmt.Errorf("failed to query for run: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for run %s after %v", runID, timeout)
		case <-ticker.C:
		}
	}
}

// Stream writes every recorded event of a run to w, then follows live
// events until the run finishes or ctx is done.
func Stream(ctx context.Context, client *ledger.Client, runID string, format OutputFormat, w io.Writer) error {
	if err := format.Validate(); err != nil {
		return err
	}

	run, err := client.GetRun(ctx, runID)
	if err != nil {
		if ledger.IsNotFound(err) {
			return fmt.Errorf("run %s not found", runID)
		}
		return err
	}

	// Subscribe before replaying so nothing falls between the two.
	sub, err := client.SubscribeRunEvents(ctx, runID)
	if err != nil {
		return err
	}
	defer sub.Close()

	out := newRenderer(format, w)

	stored, err := client.GetEvents(ctx, runID)
	if err != nil {
		return err
	}
	var lastSeq int64
	for _, ev := range stored {
		lastSeq = ev.Seq
		if finished, err := out.write(ev); err != nil || finished {
			return err
		}
	}
	if run.Status != ledger.RunStatusRunning {
		return nil
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-sub.Events():
			if !ok {
				return fmt.Errorf("subscription closed")
			}
			if ev.Seq <= lastSeq {
				continue
			}
			lastSeq = ev.Seq
			if finished, err := out.write(ev); err != nil || finished {
				return err
			}

		case err, ok := <-sub.Errors():
			if ok {
				log.Printf("[Watch] Subscription error: %v", err)
			}

		case <-ticker.C:
			run, err := client.GetRun(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to check run status: %w", err)
			}
			if run.Status != ledger.RunStatusRunning {
				return nil
			}
		}
	}
}

type renderer struct {
	format  OutputFormat
	w       io.Writer
	console *report.Console
}

func newRenderer(format OutputFormat, w io.Writer) *renderer {
	return &renderer{format: format, w: w, console: report.NewConsole(w)}
}

// write renders one event and reports whether it was the finish event.
func (r *renderer) write(ev ledger.RunEvent) (bool, error) {
	decoded, err := report.Unmarshal(ev.Event)
	if err != nil {
		log.Printf("[Watch] Skipping malformed event %d: %v", ev.Seq, err)
		return false, nil
	}

	if r.format == FormatJSON {
		if _, err := fmt.Fprintf(r.w, "%s\n", ev.Event); err != nil {
			return false, fmt.Errorf("failed to write event: %w", err)
		}
	} else {
		r.console.Emit(decoded)
	}
	return decoded.EventKind() == report.KindFinish, nil
}
