package docker

import (
	"fmt"
	"strconv"
)

// Label keys used for burrow resources
const (
	LabelProject       = "burrow.project"
	LabelInstanceName  = "burrow.instance.name"
	LabelRunID         = "burrow.run.id"
	LabelWorkspacePath = "burrow.workspace.path"
	LabelComponent     = "burrow.component"
	LabelWorkerSlot    = "burrow.worker.slot"
)

// ComponentWorker marks containers running a pool worker.
const ComponentWorker = "worker"

// BuildLabels creates the standard label set for burrow containers.
// All parameters are required except component (which is resource-specific).
func BuildLabels(instanceName, runID, workspacePath, component string) map[string]string {
	labels := map[string]string{
		LabelProject:       "true",
		LabelInstanceName:  instanceName,
		LabelRunID:         runID,
		LabelWorkspacePath: workspacePath,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// WorkerLabels extends the standard labels with the worker's slot id.
func WorkerLabels(instanceName, runID, workspacePath string, slot int) map[string]string {
	labels := BuildLabels(instanceName, runID, workspacePath, ComponentWorker)
	labels[LabelWorkerSlot] = strconv.Itoa(slot)
	return labels
}

// WorkerContainerName returns the container name for a worker slot.
// Replacements of the same slot get a new generation suffix since the old
// container may still be shutting down.
func WorkerContainerName(runID string, slot int, generation uint64) string {
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("burrow-worker-%s-%d-%d", short, slot, generation)
}
