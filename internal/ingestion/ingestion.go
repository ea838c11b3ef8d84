package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guttosm/marketpulse/internal/domain/models"
	"github.com/guttosm/marketpulse/internal/logger"
	"github.com/guttosm/marketpulse/internal/metrics"
	"github.com/guttosm/marketpulse/internal/quotes"
	"github.com/guttosm/marketpulse/internal/storage"
)

const (
	defaultMaxConcurrent = 4
	defaultFetchTimeout  = 5 * time.Second
)

// BarWriter is the slice of the store the orchestrator needs.
type BarWriter interface {
	Upsert(ctx context.Context, bar models.PriceBar) error
}

// Config bounds one orchestration run.
type Config struct {
	MaxConcurrent int           // in-flight fetches (default 4)
	FetchTimeout  time.Duration // hard limit per fetch (default 5s)
}

// Orchestrator fetches, validates and persists the latest bar for a batch of symbols.
type Orchestrator struct {
	source quotes.Source
	store  BarWriter
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

// NewOrchestrator wires a quote source to a store.
func NewOrchestrator(source quotes.Source, store BarWriter, cfg Config) *Orchestrator {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Orchestrator{
		source: source,
		store:  store,
		cfg:    cfg,
		log:    logger.Component("ingestion"),
		now:    time.Now,
	}
}

// Run ingests symbols and returns a report in which every normalized symbol lands in
// exactly one of Succeeded or Failed.
//
// Behavior:
//   - Symbols are trimmed, upper-cased and de-duplicated (first occurrence wins).
//   - Empty input yields an empty report without touching the source or the store.
//   - At most MaxConcurrent fetches run at once; each is bounded by FetchTimeout.
//   - A failing symbol never affects the others. Run never returns an error.
func (o *Orchestrator) Run(ctx context.Context, symbols []string) *models.IngestionReport {
	syms := NormalizeSymbols(symbols)
	report := models.NewIngestionReport(syms, o.now().UTC())
	if len(syms) == 0 {
		report.FinishedAt = o.now().UTC()
		return report
	}

	o.log.Info().
		Int("symbols", len(syms)).
		Int("max_concurrent", o.cfg.MaxConcurrent).
		Str("source", o.source.Name()).
		Msg("ingestion start")

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.cfg.MaxConcurrent)

	for i, sym := range syms {
		idx, symbol := i, sym
		g.Go(func() error {
			start := time.Now()
			bar, failure := o.ingestOne(ctx, symbol)

			mu.Lock()
			if failure != nil {
				report.Failed[symbol] = *failure
			} else {
				report.Succeeded[symbol] = bar
			}
			mu.Unlock()

			ev := o.log.Info()
			outcome := "success"
			if failure != nil {
				ev = o.log.Warn().Str("kind", string(failure.Kind)).Str("error", failure.Message).Bool("retryable", failure.Retryable)
				outcome = string(failure.Kind)
			}
			metrics.RecordIngestionSymbol(outcome)
			ev.Int("idx", idx+1).
				Int("total", len(syms)).
				Str("symbol", symbol).
				Dur("elapsed", time.Since(start)).
				Msg("symbol done")
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = o.now().UTC()
	metrics.RecordIngestionRun(report.Duration())
	o.log.Info().
		Int("requested", len(syms)).
		Int("succeeded", len(report.Succeeded)).
		Int("failed", len(report.Failed)).
		Dur("elapsed", report.Duration()).
		Msg("ingestion done")

	return report
}

// ingestOne runs fetch, validate and upsert for a single symbol. Panics are
// converted to an internal failure so one symbol cannot take down the batch.
func (o *Orchestrator) ingestOne(ctx context.Context, symbol string) (bar models.PriceBar, failure *models.SymbolFailure) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("symbol", symbol).Interface("panic", r).Msg("symbol panicked")
			bar = models.PriceBar{}
			failure = &models.SymbolFailure{Kind: models.FailureInternal, Message: fmt.Sprintf("panic: %v", r), Retryable: true}
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	bar, err := o.source.FetchLatestBar(fctx, symbol)
	cancel()
	if err != nil {
		var qe *quotes.Error
		retryable := true
		if errors.As(err, &qe) {
			retryable = qe.Retryable()
		}
		return models.PriceBar{}, &models.SymbolFailure{
			Kind:      models.FailureKind(quotes.KindOf(err)),
			Message:   err.Error(),
			Retryable: retryable,
		}
	}

	bar.Symbol = symbol
	bar.Date = models.DateOnly(bar.Date)
	if bar.RecordedAt.IsZero() {
		bar.RecordedAt = o.now().UTC()
	}

	if err := Validate(bar); err != nil {
		return models.PriceBar{}, &models.SymbolFailure{Kind: models.FailureValidation, Message: err.Error()}
	}

	if err := o.store.Upsert(ctx, bar); err != nil {
		var se *storage.Error
		msg := err.Error()
		if !errors.As(err, &se) {
			msg = (&storage.Error{Op: "upsert", Err: err}).Error()
		}
		return models.PriceBar{}, &models.SymbolFailure{Kind: models.FailureStorage, Message: msg, Retryable: true}
	}

	return bar, nil
}

// NormalizeSymbols trims and upper-cases symbols, drops blanks and keeps the first
// occurrence of duplicates in input order.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
