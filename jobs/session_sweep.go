package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gatehouse-iam/gatehouse/internal/jobs"
)

// SessionDeleter removes expired session audit rows.
type SessionDeleter interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// SessionSweepJob trims session records whose tokens already expired in Redis.
type SessionSweepJob struct {
	Sessions SessionDeleter
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes TaskSessionSweep tasks.
func (j *SessionSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sessions == nil {
		return errors.New("session sweep: handler not configured")
	}

	tracker := j.metrics().Track(TaskSessionSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	removed, err := j.Sessions.DeleteExpiredSessions(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("sweep sessions", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddPurged("session", removed)
	j.logger().Info("swept expired sessions", slog.Int64("rows", removed))
	return resultErr
}

func (j *SessionSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSessionSweep))
	}
	return slog.Default().With(slog.String("job", TaskSessionSweep))
}

func (j *SessionSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
