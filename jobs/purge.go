package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatehouse-iam/gatehouse/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Purger permanently removes soft-deleted rows older than the cutoff.
type Purger interface {
	PurgeDeleted(ctx context.Context, olderThan time.Duration) (int64, error)
}

// PurgeJob drops soft-deleted permissions and roles that passed retention.
// Rows inside the retention window stay ID-addressable for audit reads.
type PurgeJob struct {
	Permissions Purger
	Roles       Purger
	Retention   time.Duration
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
}

// Handle processes TaskPurgeDeleted tasks.
func (j *PurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("purge: handler not configured")
	}
	var payload PurgeDeletedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := j.Retention
	if payload.Retention != "" {
		parsed, err := time.ParseDuration(payload.Retention)
		if err != nil {
			return asynq.SkipRetry
		}
		retention = parsed
	}
	if retention <= 0 {
		retention = 720 * time.Hour
	}

	tracker := j.metrics().Track(TaskPurgeDeleted)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Duration("retention", retention))
	logger.Info("starting retention purge")

	for _, target := range []struct {
		entity string
		purger Purger
	}{
		{"permission", j.Permissions},
		{"role", j.Roles},
	} {
		if target.purger == nil {
			continue
		}
		purged, err := target.purger.PurgeDeleted(ctx, retention)
		if err != nil {
			resultErr = err
			logger.Error("purge entity", slog.String("entity", target.entity), slog.Any("error", err))
			return resultErr
		}
		j.metrics().AddPurged(target.entity, purged)
		logger.Info("purged entity", slog.String("entity", target.entity), slog.Int64("rows", purged))
	}
	return resultErr
}

func (j *PurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPurgeDeleted))
	}
	return slog.Default().With(slog.String("job", TaskPurgeDeleted))
}

func (j *PurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
