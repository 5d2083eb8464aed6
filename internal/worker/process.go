package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
)

// Process runs each worker as a child process speaking the protocol on its
// stdin and stdout. By default the child is the current executable invoked
// as "burrow worker".
type Process struct {
	Executable string
	Args       []string
	Env        []string
	Stderr     io.Writer
}

// Spawn starts a worker process.
func (s *Process) Spawn(ctx context.Context, id int) (Handle, error) {
	executable := s.Executable
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate burrow executable: %w", err)
		}
		executable = self
	}
	args := s.Args
	if len(args) == 0 {
		args = []string{"worker"}
	}

	// Not CommandContext: the pool decides when a worker dies.
	cmd := exec.Command(executable, args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stderr = s.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker process: %w", err)
	}

	log.Printf("[Worker %d] Started process pid=%d", id, cmd.Process.Pid)

	kill := func() error {
		if err := cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
			return fmt.Errorf("failed to kill worker process %d: %w", cmd.Process.Pid, err)
		}
		return nil
	}

	reap := func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[Worker %d] Process exited: %v", id, err)
		}
	}

	return newStreamHandle(stdin, stdout, kill, reap), nil
}
