package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Run is the ledger record of one codemod run.
type Run struct {
	ID           string    `json:"id"`             // UUID
	CaseID       string    `json:"case_id"`        // Transformer identity reported in events
	Engine       string    `json:"engine"`         // Transform engine name
	Mode         string    `json:"mode"`           // "direct" or "staged"
	Workspace    string    `json:"workspace"`      // Root the file set was expanded from
	Workers      int       `json:"workers"`        // Pool size
	Status       RunStatus `json:"status"`         // Lifecycle state
	Processed    uint      `json:"processed"`      // Files processed so far
	Total        uint      `json:"total"`          // Files in the run
	StartedAtMs  int64     `json:"started_at_ms"`  // Unix milliseconds
	FinishedAtMs int64     `json:"finished_at_ms"` // Unix milliseconds, 0 while running
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusAborted  RunStatus = "aborted"
)

// Validate checks if the status is one of the known values.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusFinished, RunStatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid run status: %q", s)
	}
}

// Validate checks the run's required fields.
func (r *Run) Validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("invalid run ID: %w", err)
	}
	if r.Engine == "" {
		return fmt.Errorf("engine is required")
	}
	if err := r.Status.Validate(); err != nil {
		return err
	}
	if r.Processed > r.Total {
		return fmt.Errorf("processed (%d) exceeds total (%d)", r.Processed, r.Total)
	}
	return nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// RunEvent is one stored event together with its position in the run's
// event list, starting at 1.
type RunEvent struct {
	Seq   int64           `json:"seq"`
	Event json.RawMessage `json:"event"`
}

// eventHead holds the fields the ledger reads from an event to keep the run
// record current.
type eventHead struct {
	Kind      string `json:"kind"`
	Processed *uint  `json:"processed"`
	Total     *uint  `json:"total"`
}
