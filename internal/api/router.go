package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/guttosm/marketpulse/internal/metrics"
	"github.com/guttosm/marketpulse/internal/middleware"
)

// requestTimeout bounds how long a caller waits; an on-demand ingestion run keeps going after it.
const requestTimeout = 30 * time.Second

// NewRouter creates a Gin engine with routes configured.
// It receives a Handler instance with all business logic already injected.
//
// Responsibilities:
//   - Registers global middlewares (RequestID, Logger, Recovery, ErrorHandler, metrics, RateLimiter).
//   - Adds request timeout handling.
//   - Mounts Swagger docs (/swagger/*any) and Prometheus metrics (/metrics).
//   - Configures API v1 routes (/api/v1).
//
// Note:
//   - Health and readiness endpoints (/healthz, /readyz) are registered in app.InitializeApp().
//
// Parameters:
//   - handler (*Handler): The HTTP handler with business logic.
//   - rateLimitPerMinute (int): requests per client IP per minute; 0 disables limiting.
//
// Returns:
//   - *gin.Engine: Configured Gin router.
func NewRouter(handler *Handler, rateLimitPerMinute int) *gin.Engine {
	router := newBaseRouter()

	router.Use(middleware.NewRateLimiter(rateLimitPerMinute).Handler())

	// ─── Timeout ──────────────────────────────────
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	// ─── Swagger ──────────────────────────────────
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// ─── API v1 ───────────────────────────────────
	v1 := router.Group("/api/v1")
	{
		md := v1.Group("/market-data")
		md.GET("/latest/:symbol", handler.GetLatest)
		md.GET("/historical/:symbol", handler.GetHistorical)
		md.POST("/fetch", handler.FetchMarketData)

		v1.POST("/events/transaction-created", handler.TransactionCreated)
		v1.POST("/jobs", handler.SubmitJob)
	}

	return router
}

// NewProbeRouter creates the small engine the worker process serves: metrics only,
// health endpoints are registered by the caller.
func NewProbeRouter() *gin.Engine {
	return newBaseRouter()
}

func newBaseRouter() *gin.Engine {
	router := gin.New()

	// ─── Middlewares ───────────────────────────────
	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.RecoveryMiddleware(),
		middleware.ErrorHandler,
		metrics.GinMiddleware(),
	)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	return router
}
