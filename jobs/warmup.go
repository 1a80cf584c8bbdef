package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/gatehouse-iam/gatehouse/internal/authz"
	jobmetrics "github.com/gatehouse-iam/gatehouse/internal/jobs"
)

// ContextWarmer resolves an access context, populating the cache on miss.
type ContextWarmer interface {
	ResolveUserContext(ctx context.Context, userID string) (authz.UserContext, error)
}

// AuthzWarmupJob pre-populates the access-context cache for active users so
// the first authorized request after an invalidation does not pay the
// aggregation cost.
type AuthzWarmupJob struct {
	Resolver ContextWarmer
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// Handle processes TaskAuthzWarmup tasks.
func (j *AuthzWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("authz warmup: handler not configured")
	}
	var payload AuthzWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskAuthzWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting authz warmup")

	ids, err := j.fetchActiveUserIDs(ctx, payload.Limit)
	if err != nil {
		resultErr = err
		logger.Error("load active users", slog.Any("error", err))
		return resultErr
	}
	if len(ids) == 0 {
		logger.Info("no active users to warm")
		return resultErr
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		g.Go(func() error {
			warmCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()
			_, err := j.Resolver.ResolveUserContext(warmCtx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		resultErr = err
		logger.Error("warm user context", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed authz warmup", slog.Int("users", len(ids)), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *AuthzWarmupJob) fetchActiveUserIDs(ctx context.Context, limit int) ([]string, error) {
	if j.Pool == nil {
		return nil, errors.New("authz warmup: pool not configured")
	}
	query := `SELECT id FROM users WHERE lifecycle = 'active' ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := j.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (j *AuthzWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuthzWarmup))
	}
	return slog.Default().With(slog.String("job", TaskAuthzWarmup))
}

func (j *AuthzWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
