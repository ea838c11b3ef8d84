package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/guttosm/marketpulse/config"
	"github.com/guttosm/marketpulse/internal/api"
	"github.com/guttosm/marketpulse/internal/jobs"
	"github.com/guttosm/marketpulse/internal/logger"
	"github.com/guttosm/marketpulse/internal/scheduler"
	"github.com/guttosm/marketpulse/internal/tasks"
)

// Worker is the background process: it owns the ingestion schedule and drains the job queue.
type Worker struct {
	Router    *gin.Engine
	Scheduler *scheduler.Scheduler
	Pool      *jobs.Worker
}

// InitializeWorker wires the worker process.
//
// Responsibilities:
//   - Connects to PostgreSQL (migrating it) and Redis.
//   - Builds the ingestion core and the job pool with every task handler registered.
//   - Exposes /healthz, /readyz and /metrics on a probe router.
//
// Nothing runs until Run is called.
func InitializeWorker() (*Worker, func(), error) {
	cfg := config.AppConfig

	db, err := postgresOpener(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	if err := migrator(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	rdb, err := redisOpener(cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	core, err := NewCore(cfg, db)
	if err != nil {
		_ = rdb.Close()
		_ = db.Close()
		return nil, nil, err
	}

	queue := jobs.NewRedisQueue(rdb, cfg.Redis.QueueKey).WithConsumer(cfg.Redis.ConsumerID)
	pool := jobs.NewWorker(queue, jobs.NewRedisDeadLetters(rdb, cfg.Redis.DeadLetterKey), workerConfig(cfg))
	tasks.NewHandlers(tasks.NewLogNotifier(), tasks.NewLogSummarizer(), core.Scheduler).RegisterAll(pool)

	router := api.NewProbeRouter()
	api.NewHealthHandler(
		api.Check{Name: "postgres", Ping: core.Store.Ping},
		api.Check{Name: "redis", Ping: queue.Ping},
	).Register(router)

	cleanup := func() {
		closeRedis(rdb)
		_ = db.Close()
	}

	return &Worker{Router: router, Scheduler: core.Scheduler, Pool: pool}, cleanup, nil
}

// Run starts the schedule and blocks draining jobs until ctx is cancelled.
// It returns after in-flight jobs and ingestion runs have settled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Scheduler.Start(); err != nil {
		return err
	}

	err := w.Pool.Run(ctx)
	<-w.Scheduler.Stop().Done()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func workerConfig(cfg config.Config) jobs.WorkerConfig {
	return jobs.WorkerConfig{
		Concurrency: cfg.Jobs.Workers,
		Retry: jobs.RetryPolicy{
			MaxAttempts: cfg.Jobs.MaxAttempts,
			BaseDelay:   cfg.Jobs.BackoffBase,
			MaxDelay:    cfg.Jobs.BackoffMax,
			Jitter:      true,
		},
	}
}

func closeRedis(rdb *redis.Client) {
	if err := rdb.Close(); err != nil {
		logger.L().Warn().Err(err).Msg("closing redis")
	}
}
