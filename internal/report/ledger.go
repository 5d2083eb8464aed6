package report

import (
	"context"
	"log"
	"time"
)

const ledgerWriteTimeout = 2 * time.Second

// EventAppender stores encoded events for a run. *ledger.Client implements it.
type EventAppender interface {
	AppendEvent(ctx context.Context, runID string, event []byte) error
}

// LedgerSink records every event in the run ledger. Ledger failures are
// logged and never interrupt the run.
type LedgerSink struct {
	ledger EventAppender
	runID  string
}

// NewLedgerSink creates an emitter appending to runID.
func NewLedgerSink(ledger EventAppender, runID string) *LedgerSink {
	return &LedgerSink{ledger: ledger, runID: runID}
}

func (s *LedgerSink) Emit(e Event) {
	data, err := Marshal(e)
	if err != nil {
		log.Printf("[Report] Failed to marshal %s event for ledger: %v", e.EventKind(), err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ledgerWriteTimeout)
	defer cancel()
	if err := s.ledger.AppendEvent(ctx, s.runID, data); err != nil {
		log.Printf("[Report] Failed to record %s event for run %s: %v", e.EventKind(), s.runID, err)
	}
}
