package worker

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dyluth/burrow/pkg/protocol"
)

// Handle is the orchestrator's end of one running worker.
type Handle interface {
	// Send delivers a message to the worker.
	Send(msg protocol.Message) error

	// Frames yields each raw line the worker writes. It is closed when the
	// worker's output ends, whether it exited or was killed.
	Frames() <-chan []byte

	// Kill stops the worker immediately. Safe to call more than once.
	Kill() error
}

// Spawner starts workers.
type Spawner interface {
	Spawn(ctx context.Context, id int) (Handle, error)
}

// ErrKilled is reported by a handle's streams after Kill.
var ErrKilled = errors.New("worker killed")

// streamHandle adapts a worker's stdin/stdout streams to a Handle.
type streamHandle struct {
	sendMu sync.Mutex
	stdin  io.WriteCloser

	frames chan []byte
	dead   chan struct{}

	kill     func() error
	killOnce sync.Once
	killErr  error
}

// newStreamHandle starts reading frames from stdout. reap, if set, runs once
// the output stream is exhausted (to wait on a process, for example).
func newStreamHandle(stdin io.WriteCloser, stdout io.Reader, kill func() error, reap func()) *streamHandle {
	h := &streamHandle{
		stdin:  stdin,
		frames: make(chan []byte, 16),
		dead:   make(chan struct{}),
		kill:   kill,
	}
	go h.readLoop(stdout, reap)
	return h
}

func (h *streamHandle) readLoop(stdout io.Reader, reap func()) {
	defer close(h.frames)
	if reap != nil {
		defer reap()
	}

	sc := protocol.NewScanner(stdout)
	for sc.Scan() {
		frame := make([]byte, len(sc.Bytes()))
		copy(frame, sc.Bytes())
		select {
		case h.frames <- frame:
		case <-h.dead:
			return
		}
	}
}

func (h *streamHandle) Send(msg protocol.Message) error {
	select {
	case <-h.dead:
		return ErrKilled
	default:
	}

	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	return protocol.WriteMessage(h.stdin, msg)
}

func (h *streamHandle) Frames() <-chan []byte {
	return h.frames
}

func (h *streamHandle) Kill() error {
	h.killOnce.Do(func() {
		close(h.dead)
		h.killErr = h.kill()
		h.stdin.Close()
	})
	return h.killErr
}
