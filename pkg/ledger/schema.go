package ledger

import "fmt"

// RunKey returns the Redis key for a run hash.
// Pattern: burrow:{instance_name}:run:{run_id}
func RunKey(instanceName, runID string) string {
	return fmt.Sprintf("burrow:%s:run:%s", instanceName, runID)
}

// RunEventsKey returns the Redis key for a run's event list.
// Pattern: burrow:{instance_name}:run:{run_id}:events
func RunEventsKey(instanceName, runID string) string {
	return fmt.Sprintf("burrow:%s:run:%s:events", instanceName, runID)
}

// RunsIndexKey returns the Redis key for the ZSET of run ids by start time.
// Pattern: burrow:{instance_name}:runs
func RunsIndexKey(instanceName string) string {
	return fmt.Sprintf("burrow:%s:runs", instanceName)
}

// RunEventsChannel returns the Pub/Sub channel carrying a run's live events.
// Pattern: burrow:{instance_name}:run:{run_id}:events
func RunEventsChannel(instanceName, runID string) string {
	return fmt.Sprintf("burrow:%s:run:%s:events", instanceName, runID)
}
