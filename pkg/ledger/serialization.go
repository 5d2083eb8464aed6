package ledger

import (
	"fmt"
	"strconv"
)

// RunToHash converts a Run to a Redis hash.
func RunToHash(r *Run) map[string]interface{} {
	return map[string]interface{}{
		"id":             r.ID,
		"case_id":        r.CaseID,
		"engine":         r.Engine,
		"mode":           r.Mode,
		"workspace":      r.Workspace,
		"workers":        r.Workers,
		"status":         string(r.Status),
		"processed":      r.Processed,
		"total":          r.Total,
		"started_at_ms":  r.StartedAtMs,
		"finished_at_ms": r.FinishedAtMs,
	}
}

// HashToRun converts a Redis hash back to a Run.
func HashToRun(hash map[string]string) (*Run, error) {
	workers, err := parseInt(hash, "workers")
	if err != nil {
		return nil, err
	}
	processed, err := parseUint(hash, "processed")
	if err != nil {
		return nil, err
	}
	total, err := parseUint(hash, "total")
	if err != nil {
		return nil, err
	}
	started, err := parseInt(hash, "started_at_ms")
	if err != nil {
		return nil, err
	}
	finished, err := parseInt(hash, "finished_at_ms")
	if err != nil {
		return nil, err
	}

	return &Run{
		ID:           hash["id"],
		CaseID:       hash["case_id"],
		Engine:       hash["engine"],
		Mode:         hash["mode"],
		Workspace:    hash["workspace"],
		Workers:      int(workers),
		Status:       RunStatus(hash["status"]),
		Processed:    uint(processed),
		Total:        uint(total),
		StartedAtMs:  started,
		FinishedAtMs: finished,
	}, nil
}

// Missing numeric fields read as zero.
func parseInt(hash map[string]string, field string) (int64, error) {
	raw, ok := hash[field]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s field: %w", field, err)
	}
	return v, nil
}

func parseUint(hash map[string]string, field string) (uint64, error) {
	raw, ok := hash[field]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s field: %w", field, err)
	}
	return v, nil
}
