// Package docker holds the Docker plumbing for container-isolated workers:
// client setup, resource labels and cleanup of a run's worker containers.
package docker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/docker/docker/client"
)

// pingTimeout bounds the daemon check so a wedged socket fails the run
// early instead of stalling the first worker spawn.
const pingTimeout = 5 * time.Second

// NewClient connects to the daemon described by the DOCKER_* environment
// and checks that it answers. Worker images are Linux images, so a daemon
// reporting another OS only gets a warning; the image pull will say more.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ping, err := cli.Ping(pingCtx)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf(`Docker daemon not accessible: %w

Container isolation needs a running Docker daemon. Either start Docker or run
with --isolation=process`, err)
	}
	if ping.OSType != "" && ping.OSType != "linux" {
		log.Printf("[Docker] Daemon reports OS %q; worker images must be able to run there", ping.OSType)
	}

	return cli, nil
}
