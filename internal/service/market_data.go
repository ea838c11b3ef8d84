package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/guttosm/marketpulse/internal/domain/models"
	"github.com/guttosm/marketpulse/internal/jobs"
)

const (
	DefaultHistoryDays = 30
	MaxHistoryDays     = 3650
)

var (
	// ErrNoData means the store holds no bar for the symbol.
	ErrNoData = errors.New("no market data for symbol")
	// ErrInvalidInput marks caller mistakes (bad symbol, days out of range).
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable means an ingestion request was refused before any symbol was attempted.
	ErrStoreUnavailable = errors.New("market data store unavailable")
)

// Store is the read side of the market data store plus its health check.
type Store interface {
	Latest(ctx context.Context, symbol string) (*models.PriceBar, error)
	Range(ctx context.Context, symbol string, since time.Time) ([]models.PriceBar, error)
	Ping(ctx context.Context) error
}

// IngestionTrigger starts a (coalesced) ingestion run and waits for its report.
type IngestionTrigger interface {
	Trigger(ctx context.Context, symbols []string) (*models.IngestionReport, error)
}

// MarketDataService defines the query surface and the write-side entry points
// (on-demand ingestion, job submission) exposed over HTTP.
type MarketDataService interface {
	Latest(ctx context.Context, symbol string) (*models.PriceBar, error)
	History(ctx context.Context, symbol string, days int) (History, error)
	TriggerIngestion(ctx context.Context, symbols []string) (*models.IngestionReport, error)
	SubmitTransactionEvent(ctx context.Context, userID, txID int64, at time.Time) ([]string, error)
	SubmitJob(ctx context.Context, kind jobs.Kind, payload any) (string, error)
}

// History is a range of bars since a calendar date, oldest first.
type History struct {
	Symbol string
	Days   int
	Since  time.Time
	Bars   []models.PriceBar
}

type marketDataService struct {
	store     Store
	ingestion IngestionTrigger
	jobs      jobs.Submitter
	now       func() time.Time
}

func NewMarketDataService(store Store, ingestion IngestionTrigger, submitter jobs.Submitter) MarketDataService {
	return &marketDataService{store: store, ingestion: ingestion, jobs: submitter, now: time.Now}
}

// NormalizeSymbol trims and upper-cases a path symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Latest returns the most recent bar for symbol, or ErrNoData.
func (s *marketDataService) Latest(ctx context.Context, symbol string) (*models.PriceBar, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	bar, err := s.store.Latest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if bar == nil {
		return nil, ErrNoData
	}
	return bar, nil
}

// History returns bars with date >= today - days (UTC), ascending. days == 0 means the default.
func (s *marketDataService) History(ctx context.Context, symbol string, days int) (History, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return History{}, fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	if days == 0 {
		days = DefaultHistoryDays
	}
	if days < 1 || days > MaxHistoryDays {
		return History{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidInput, MaxHistoryDays)
	}

	since := models.DateOnly(s.now().UTC()).AddDate(0, 0, -days)
	bars, err := s.store.Range(ctx, symbol, since)
	if err != nil {
		return History{}, err
	}
	if bars == nil {
		bars = []models.PriceBar{}
	}
	return History{Symbol: symbol, Days: days, Since: since, Bars: bars}, nil
}

// TriggerIngestion runs ingestion synchronously. Per-symbol failures stay inside the
// report; an error is returned only when the run could not happen at all.
func (s *marketDataService) TriggerIngestion(ctx context.Context, symbols []string) (*models.IngestionReport, error) {
	if err := s.store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s.ingestion.Trigger(ctx, symbols)
}

// SubmitTransactionEvent enqueues the side effects of a created transaction.
func (s *marketDataService) SubmitTransactionEvent(ctx context.Context, userID, txID int64, at time.Time) ([]string, error) {
	return jobs.OnTransactionCreated(ctx, s.jobs, userID, txID, at)
}

func (s *marketDataService) SubmitJob(ctx context.Context, kind jobs.Kind, payload any) (string, error) {
	return s.jobs.Submit(ctx, kind, payload)
}
