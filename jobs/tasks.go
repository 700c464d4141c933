package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTokenPurge garbage-collects expired and revoked refresh tokens.
	TaskTokenPurge = "token:purge"
	// TaskAuditReplay drains spooled audit entries back into PostgreSQL.
	TaskAuditReplay = "audit:replay"
)

// TokenPurgePayload tunes a purge run. Zero values fall back to defaults.
type TokenPurgePayload struct {
	BatchNote string `json:"batch_note,omitempty"`
}

// AuditReplayPayload bounds a replay run.
type AuditReplayPayload struct {
	Limit int `json:"limit,omitempty"`
}

// NewTokenPurgeTask constructs an Asynq task for the token purge job.
func NewTokenPurgeTask(payload TokenPurgePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTokenPurge, data), nil
}

// NewAuditReplayTask constructs an Asynq task for the audit replay job.
func NewAuditReplayTask(payload AuditReplayPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditReplay, data), nil
}
