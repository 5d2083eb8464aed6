package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	dockerpkg "github.com/dyluth/burrow/internal/docker"
)

// containerStopTimeout bounds the kill and remove calls made when a worker
// container is replaced.
const containerStopTimeout = 10 * time.Second

// Container runs each worker in its own Docker container. The image must
// provide the burrow binary; the worker speaks the protocol over the
// container's attached stdin and stdout, so it needs no network and no
// access to the source tree.
type Container struct {
	API       client.ContainerAPIClient
	Image     string
	Cmd       []string
	Instance  string
	RunID     string
	Workspace string
	Stderr    io.Writer

	mu          sync.Mutex
	generations map[int]uint64
}

func (s *Container) nextGeneration(id int) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations == nil {
		s.generations = make(map[int]uint64)
	}
	gen := s.generations[id]
	s.generations[id] = gen + 1
	return gen
}

// Spawn creates, attaches to and starts a worker container.
func (s *Container) Spawn(ctx context.Context, id int) (Handle, error) {
	cmd := s.Cmd
	if len(cmd) == 0 {
		cmd = []string{"worker"}
	}
	name := dockerpkg.WorkerContainerName(s.RunID, id, s.nextGeneration(id))

	resp, err := s.API.ContainerCreate(ctx, &container.Config{
		Image:        s.Image,
		Cmd:          cmd,
		OpenStdin:    true,
		StdinOnce:    false,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
		Labels:       dockerpkg.WorkerLabels(s.Instance, s.RunID, s.Workspace, id),
	}, &container.HostConfig{
		NetworkMode: "none",
		AutoRemove:  false, // removed explicitly on kill
	}, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker container: %w", err)
	}

	remove := func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), containerStopTimeout)
		defer cancel()
		if err := s.API.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Printf("[Worker %d] Failed to remove container %s: %v", id, name, err)
		}
	}

	hijacked, err := s.API.ContainerAttach(ctx, resp.ID, types.ContainerAttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		remove()
		return nil, fmt.Errorf("failed to attach to worker container: %w", err)
	}

	if err := s.API.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		hijacked.Close()
		remove()
		return nil, fmt.Errorf("failed to start worker container: %w", err)
	}

	log.Printf("[Worker %d] Started container %s (%s)", id, name, shortID(resp.ID))

	stderr := s.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Attached output is multiplexed; split stdout (protocol) from stderr (logs).
	stdoutR, stdoutW := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(stdoutW, stderr, hijacked.Reader)
		stdoutW.CloseWithError(err)
	}()

	kill := func() error {
		killCtx, cancel := context.WithTimeout(context.Background(), containerStopTimeout)
		defer cancel()
		err := s.API.ContainerKill(killCtx, resp.ID, "KILL")
		hijacked.Close()
		remove()
		if err != nil {
			return fmt.Errorf("failed to kill worker container %s: %w", name, err)
		}
		return nil
	}

	return newStreamHandle(&hijackedStdin{resp: hijacked}, stdoutR, kill, nil), nil
}

// hijackedStdin writes to the attached connection; Close half-closes it so
// the worker sees end of input.
type hijackedStdin struct {
	resp types.HijackedResponse
}

func (h *hijackedStdin) Write(p []byte) (int, error) {
	return h.resp.Conn.Write(p)
}

func (h *hijackedStdin) Close() error {
	return h.resp.CloseWrite()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
