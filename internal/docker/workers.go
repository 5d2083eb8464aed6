package docker

import (
	"context"
	"fmt"
	"log"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// RunWorkers lists every worker container of a run, stopped ones included.
func RunWorkers(ctx context.Context, api client.ContainerAPIClient, runID string) ([]types.Container, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=true", LabelProject))
	filter.Add("label", fmt.Sprintf("%s=%s", LabelRunID, runID))
	filter.Add("label", fmt.Sprintf("%s=%s", LabelComponent, ComponentWorker))

	containers, err := api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list worker containers: %w", err)
	}
	return containers, nil
}

// RemoveRunWorkers force-removes the worker containers a run left behind
// and returns how many were removed. Removal continues past individual
// failures; the first one is returned.
func RemoveRunWorkers(ctx context.Context, api client.ContainerAPIClient, runID string) (int, error) {
	containers, err := RunWorkers(ctx, api, runID)
	if err != nil {
		return 0, err
	}

	removed := 0
	var firstErr error
	for _, c := range containers {
		if err := api.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Printf("[Docker] Failed to remove worker container %s: %v", c.ID, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to remove worker container %s: %w", c.ID, err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}
