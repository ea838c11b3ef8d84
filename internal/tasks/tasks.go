// Package tasks holds the handlers that execute background jobs.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/guttosm/marketpulse/internal/domain/models"
	"github.com/guttosm/marketpulse/internal/jobs"
	"github.com/guttosm/marketpulse/internal/logger"
)

// Notifier delivers a notification about a new transaction.
type Notifier interface {
	NotifyTransaction(ctx context.Context, userID, txID int64) error
}

// MonthlySummary is the result of one summary recompute.
type MonthlySummary struct {
	UserID       int64     `json:"user_id"`
	Month        int       `json:"month"`
	Year         int       `json:"year"`
	CalculatedAt time.Time `json:"calculated_at"`
	Status       string    `json:"status"`
}

// Summarizer recomputes a user's summary for one month. Recomputes are pure, so
// repeating one is harmless.
type Summarizer interface {
	Summarize(ctx context.Context, userID int64, month, year int) (MonthlySummary, error)
}

// IngestionTrigger starts an ingestion run. *scheduler.Scheduler implements it.
type IngestionTrigger interface {
	Trigger(ctx context.Context, symbols []string) (*models.IngestionReport, error)
}

// LogNotifier logs notifications and remembers what it sent, so a redelivered
// job does not notify twice.
type LogNotifier struct {
	mu   sync.Mutex
	sent map[[2]int64]time.Time
	log  zerolog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{sent: make(map[[2]int64]time.Time), log: logger.Component("tasks.notifier")}
}

func (n *LogNotifier) NotifyTransaction(_ context.Context, userID, txID int64) error {
	key := [2]int64{userID, txID}

	n.mu.Lock()
	at, dup := n.sent[key]
	if !dup {
		at = time.Now().UTC()
		n.sent[key] = at
	}
	n.mu.Unlock()

	if dup {
		n.log.Debug().Int64("user_id", userID).Int64("transaction_id", txID).Time("sent_at", at).Msg("notification already sent")
		return nil
	}
	n.log.Info().Int64("user_id", userID).Int64("transaction_id", txID).Msg("transaction notification sent")
	return nil
}

// Sent reports how many distinct notifications were delivered.
func (n *LogNotifier) Sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// LogSummarizer stamps and logs a summary.
type LogSummarizer struct {
	now func() time.Time
	log zerolog.Logger
}

func NewLogSummarizer() *LogSummarizer {
	return &LogSummarizer{now: time.Now, log: logger.Component("tasks.summarizer")}
}

func (s *LogSummarizer) Summarize(_ context.Context, userID int64, month, year int) (MonthlySummary, error) {
	sum := MonthlySummary{
		UserID:       userID,
		Month:        month,
		Year:         year,
		CalculatedAt: s.now().UTC(),
		Status:       "completed",
	}
	s.log.Info().Int64("user_id", userID).Int("month", month).Int("year", year).Msg("monthly summary recomputed")
	return sum, nil
}

// Handlers bundles the collaborators the job handlers call into.
type Handlers struct {
	Notifier   Notifier
	Summarizer Summarizer
	Ingestion  IngestionTrigger
	log        zerolog.Logger
}

// NewHandlers returns handlers backed by the given collaborators.
func NewHandlers(n Notifier, s Summarizer, ingest IngestionTrigger) *Handlers {
	return &Handlers{Notifier: n, Summarizer: s, Ingestion: ingest, log: logger.Component("tasks")}
}

// RegisterAll binds every job kind to its handler on w.
func (h *Handlers) RegisterAll(w *jobs.Worker) {
	w.Register(jobs.KindNotifyTransaction, jobs.HandlerFunc(h.NotifyTransaction))
	w.Register(jobs.KindSummarizeMonth, jobs.HandlerFunc(h.SummarizeMonth))
	w.Register(jobs.KindFetchMarketData, jobs.HandlerFunc(h.FetchMarketData))
}

func (h *Handlers) NotifyTransaction(ctx context.Context, job jobs.Job) error {
	var p jobs.NotifyTransactionPayload
	if err := jobs.Decode(job, &p); err != nil {
		return jobs.Permanent(err)
	}
	return h.Notifier.NotifyTransaction(ctx, p.UserID, p.TransactionID)
}

func (h *Handlers) SummarizeMonth(ctx context.Context, job jobs.Job) error {
	var p jobs.SummarizeMonthPayload
	if err := jobs.Decode(job, &p); err != nil {
		return jobs.Permanent(err)
	}
	_, err := h.Summarizer.Summarize(ctx, p.UserID, p.Month, p.Year)
	return err
}

// FetchMarketData runs ingestion for the payload symbols, or the default set.
// Per-symbol failures stay in the report; only a run that produced no report fails the job.
func (h *Handlers) FetchMarketData(ctx context.Context, job jobs.Job) error {
	var p jobs.FetchMarketDataPayload
	if err := jobs.Decode(job, &p); err != nil {
		return jobs.Permanent(err)
	}
	report, err := h.Ingestion.Trigger(ctx, p.Symbols)
	if err != nil {
		return err
	}
	h.log.Info().
		Str("job_id", job.ID).
		Strs("symbols", report.RequestedSymbols).
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Dur("elapsed", report.Duration()).
		Msg("market data fetched")
	return nil
}
