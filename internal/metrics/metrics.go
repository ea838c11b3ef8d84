// Package metrics owns the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketpulse"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	ingestionSymbols = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "symbols_total",
			Help:      "Symbols processed by ingestion runs, by outcome.",
		},
		[]string{"outcome"},
	)

	ingestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	schedulerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduler runs by trigger and result.",
		},
		[]string{"trigger", "result"},
	)

	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "submitted_total",
			Help:      "Jobs accepted by the dispatcher.",
		},
		[]string{"kind"},
	)

	jobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Job attempts executed by workers, by outcome.",
		},
		[]string{"kind", "outcome"},
	)

	jobsDeadLettered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "dead_lettered_total",
			Help:      "Jobs that exhausted their attempts.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ingestionSymbols,
		ingestionDuration,
		schedulerRuns,
		jobsSubmitted,
		jobsProcessed,
		jobsDeadLettered,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request count and latency per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordIngestionSymbol counts one symbol outcome ("success" or a failure kind).
func RecordIngestionSymbol(outcome string) {
	ingestionSymbols.WithLabelValues(outcome).Inc()
}

// RecordIngestionRun observes the wall time of one orchestration run.
func RecordIngestionRun(duration time.Duration) {
	ingestionDuration.Observe(duration.Seconds())
}

// RecordSchedulerRun counts one scheduler run.
func RecordSchedulerRun(trigger string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	schedulerRuns.WithLabelValues(trigger, result).Inc()
}

// RecordJobSubmitted counts an accepted job.
func RecordJobSubmitted(kind string) {
	jobsSubmitted.WithLabelValues(kind).Inc()
}

// RecordJobAttempt counts one execution attempt ("succeeded", "failed", "malformed").
func RecordJobAttempt(kind, outcome string) {
	jobsProcessed.WithLabelValues(kind, outcome).Inc()
}

// RecordJobDeadLettered counts a job written to the dead-letter sink.
func RecordJobDeadLettered(kind string) {
	jobsDeadLettered.WithLabelValues(kind).Inc()
}
