package worker

import (
	"context"
	"io"
	"log"
)

// InProcess runs each worker as a goroutine. Workers still talk to the
// orchestrator only through encoded messages over pipes.
//
// Kill closes the worker's streams and cancels its context. A transformer
// that ignores cancellation keeps its goroutine until it returns, but its
// output is discarded. Use Process or Container for hard isolation.
type InProcess struct {
	Handler *Handler
}

// Spawn starts a worker goroutine.
func (s *InProcess) Spawn(ctx context.Context, id int) (Handle, error) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	workerCtx, cancel := context.WithCancel(ctx)

	go func() {
		err := Serve(workerCtx, inR, outW, s.Handler)
		if err != nil && workerCtx.Err() == nil {
			log.Printf("[Worker %d] Exited with error: %v", id, err)
		}
		inR.Close()
		outW.Close()
	}()

	kill := func() error {
		cancel()
		inR.CloseWithError(ErrKilled)
		outW.CloseWithError(ErrKilled)
		return nil
	}

	return newStreamHandle(inW, outR, kill, nil), nil
}
