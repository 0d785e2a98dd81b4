package jobs

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Column updates for each lifecycle transition of a job_run row.

func RunningUpdates(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":       StatusRunning,
		"stage":        "running",
		"message":      "",
		"attempts":     gorm.Expr("attempts + 1"),
		"locked_at":    now,
		"heartbeat_at": now,
	}
}

// FailedUpdates clears the lock so the claim query can retry the job once its
// retry delay has elapsed.
func FailedUpdates(stage, errMsg string, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":        StatusFailed,
		"stage":         stage,
		"message":       "",
		"error":         errMsg,
		"last_error_at": now,
		"locked_at":     nil,
	}
}

// SucceededUpdates leaves result untouched when it is nil.
func SucceededUpdates(stage string, result datatypes.JSON, now time.Time) map[string]interface{} {
	u := map[string]interface{}{
		"status":       StatusSucceeded,
		"stage":        stage,
		"progress":     100,
		"message":      "",
		"error":        "",
		"locked_at":    nil,
		"heartbeat_at": now,
	}
	if result != nil {
		u["result"] = result
	}
	return u
}

// MarkFailed mirrors FailedUpdates onto an in-memory row.
func (j *JobRun) MarkFailed(stage, errMsg string, now time.Time) {
	j.Status, j.Stage, j.Message, j.Error = StatusFailed, stage, "", errMsg
	j.LastErrorAt, j.LockedAt = &now, nil
}

// MarkSucceeded mirrors SucceededUpdates onto an in-memory row.
func (j *JobRun) MarkSucceeded(stage string, result datatypes.JSON, now time.Time) {
	j.Status, j.Stage, j.Progress, j.Message, j.Error = StatusSucceeded, stage, 100, "", ""
	if result != nil {
		j.Result = result
	}
	j.LockedAt, j.HeartbeatAt = nil, &now
}
