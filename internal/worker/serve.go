package worker

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/burrow/pkg/protocol"
)

// Serve runs the worker message loop: it reads protocol messages from r and
// answers each dispatch on w. It returns nil on exit or end of input, and an
// error when a message cannot be decoded or arrives in the wrong direction.
// Dispatches are handled one at a time.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h *Handler) error {
	sc := protocol.NewScanner(r)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := protocol.Decode(sc.Bytes())
		if err != nil {
			return fmt.Errorf("received invalid message: %w", err)
		}

		switch m := msg.(type) {
		case protocol.Exit:
			return nil
		case protocol.Dispatch:
			if err := protocol.WriteMessage(w, h.Handle(ctx, m)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unexpected %s message from orchestrator", m.Kind())
		}
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read from orchestrator: %w", err)
	}
	return nil
}
