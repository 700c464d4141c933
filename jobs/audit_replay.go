package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pagodirecto/crm/internal/jobs"
)

// AuditReplayer moves spooled audit entries back into PostgreSQL.
type AuditReplayer interface {
	Replay(ctx context.Context, limit int) (int, error)
}

const defaultReplayLimit = 500

// AuditReplayJob drains the Redis spool that absorbed audit entries while
// PostgreSQL was unreachable.
type AuditReplayJob struct {
	Replayer AuditReplayer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewAuditReplayJob initialises the replay handler.
func NewAuditReplayJob(replayer AuditReplayer, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditReplayJob {
	return &AuditReplayJob{Replayer: replayer, Logger: logger, Metrics: metrics}
}

// Handle executes the replay.
func (j *AuditReplayJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Replayer == nil {
		return errors.New("audit replay: handler not configured")
	}
	var payload AuditReplayPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultReplayLimit
	}

	tracker := j.Metrics.Track(TaskAuditReplay)
	replayed, err := j.Replayer.Replay(ctx, payload.Limit)
	if err = tracker.End(err); err != nil {
		j.logger().Error("audit replay failed",
			slog.Int("replayed", replayed), slog.Any("error", err))
		return err
	}
	if replayed > 0 {
		j.logger().Info("audit replay finished", slog.Int("replayed", replayed))
	}
	return nil
}

func (j *AuditReplayJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
