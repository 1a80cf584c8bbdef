package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPurgeDeleted permanently removes soft-deleted rows past retention.
	TaskPurgeDeleted = "retention:purge_deleted"
	// TaskAuthzWarmup precomputes access contexts for active users.
	TaskAuthzWarmup = "authz:warmup"
	// TaskSessionSweep removes expired session records.
	TaskSessionSweep = "auth:session_sweep"
)

// PurgeDeletedPayload configures a retention purge run. Retention is a
// Go duration string; empty means the configured default.
type PurgeDeletedPayload struct {
	Retention string `json:"retention,omitempty"`
}

// NewPurgeDeletedTask constructs an Asynq task.
func NewPurgeDeletedTask(payload PurgeDeletedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeDeleted, data), nil
}

// AuthzWarmupPayload configures a warmup run. Limit caps how many users are
// warmed; zero means all active users.
type AuthzWarmupPayload struct {
	Limit int `json:"limit,omitempty"`
}

// NewAuthzWarmupTask constructs an Asynq task.
func NewAuthzWarmupTask(payload AuthzWarmupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthzWarmup, data), nil
}

// NewSessionSweepTask constructs an Asynq task with an empty payload.
func NewSessionSweepTask() *asynq.Task {
	return asynq.NewTask(TaskSessionSweep, nil)
}
