// Package ledger records codemod runs in Redis so they can be listed and
// followed from another process.
//
// # Redis Schema
//
// All keys follow the pattern burrow:{instance_name}:{entity}:{id}
//
// Runs:        burrow:{instance_name}:run:{run_id}          (hash)
// Run events:  burrow:{instance_name}:run:{run_id}:events   (list of event JSON)
// Run index:   burrow:{instance_name}:runs                  (zset scored by start time)
//
// Pub/Sub channel: burrow:{instance_name}:run:{run_id}:events
//
// Each published message wraps the stored event with its 1-based position
// in the events list, so a follower that replays the list and then reads
// the channel can drop the overlap.
//
// # Usage Example
//
//	client, err := ledger.NewClientFromURL("redis://localhost:6379", "default")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	run := &ledger.Run{
//		ID:          ledger.NewRunID(),
//		CaseID:      "rename-imports",
//		Engine:      "lua",
//		Mode:        "direct",
//		Status:      ledger.RunStatusRunning,
//		Total:       42,
//		StartedAtMs: time.Now().UnixMilli(),
//	}
//	if err := client.CreateRun(ctx, run); err != nil {
//		log.Fatal(err)
//	}
//
//	err = client.AppendEvent(ctx, run.ID, []byte(`{"kind":"progress","processed":1,"total":42}`))
package ledger
