// Package control reads the run's control input.
package control

import (
	"bufio"
	"context"
	"io"
	"log"
)

// ShutdownToken is the control line that stops a run.
const ShutdownToken = "shutdown"

// WatchShutdown reads r line by line and calls onShutdown once when a line
// exactly equal to token arrives. Other lines are ignored. It returns when the token
// is seen, r is exhausted, or ctx is done; reports whether the token was seen.
func WatchShutdown(ctx context.Context, r io.Reader, token string, onShutdown func()) bool {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			log.Printf("[Control] Failed to read control input: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			if line == token {
				log.Printf("[Control] Received %q", token)
				onShutdown()
				return true
			}
		}
	}
}
