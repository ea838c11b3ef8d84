package app

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/marketpulse/config"
	"github.com/guttosm/marketpulse/internal/api"
	"github.com/guttosm/marketpulse/internal/jobs"
	"github.com/guttosm/marketpulse/internal/service"
)

// InitializeApp sets up all API process dependencies and returns
// a fully configured Gin router, a cleanup function for graceful shutdown,
// and any error encountered during initialization.
//
// Responsibilities:
//   - Connects to PostgreSQL and applies pending migrations.
//   - Connects to Redis, which brokers jobs to the worker process.
//   - Builds the ingestion core (store, quote source, orchestrator, scheduler).
//     The scheduler is not started here: the API only triggers on-demand runs.
//   - Wires the service layer, HTTP handlers and the Gin router.
//   - Registers health and readiness probes for Postgres and Redis.
//   - Provides a cleanup function that releases every resource.
//
// Returns:
//   - *gin.Engine: the configured Gin HTTP router.
//   - func(): cleanup function to be executed on shutdown.
//   - error: any initialization error that occurred.
func InitializeApp() (*gin.Engine, func(), error) {
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

	queue := jobs.NewRedisQueue(rdb, cfg.Redis.QueueKey)
	dispatcher := jobs.NewDispatcher(queue)

	svc := service.NewMarketDataService(core.Store, core.Scheduler, dispatcher)
	handler := api.NewHandler(svc)
	router := api.NewRouter(handler, cfg.Server.RateLimitPerMinute)

	api.NewHealthHandler(
		api.Check{Name: "postgres", Ping: core.Store.Ping},
		api.Check{Name: "redis", Ping: queue.Ping},
	).Register(router)

	cleanup := func() {
		// Let on-demand runs still in flight finish their writes.
		<-core.Scheduler.Stop().Done()
		closeRedis(rdb)
		_ = db.Close()
	}

	return router, cleanup, nil
}
