package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/pagodirecto/crm/internal/jobs"
)

// TokenPurger deletes refresh tokens past their retention window.
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}

// TokenPurgeJob removes stale refresh token rows on a schedule so the table
// stays bounded without a partial index or partitioning.
type TokenPurgeJob struct {
	Purger  TokenPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewTokenPurgeJob initialises the purge handler.
func NewTokenPurgeJob(purger TokenPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *TokenPurgeJob {
	return &TokenPurgeJob{Purger: purger, Logger: logger, Metrics: metrics}
}

// Handle executes the purge.
func (j *TokenPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("token purge: handler not configured")
	}
	var payload TokenPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskTokenPurge)
	purged, err := j.Purger.PurgeExpiredTokens(ctx)
	if err = tracker.End(err); err != nil {
		j.logger().Error("token purge failed", slog.Any("error", err))
		return err
	}
	j.logger().Info("token purge finished", slog.Int64("purged", purged))
	return nil
}

func (j *TokenPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
