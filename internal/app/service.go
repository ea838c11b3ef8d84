package app

import (
	"database/sql"
	"fmt"

	"github.com/guttosm/marketpulse/config"
	"github.com/guttosm/marketpulse/internal/ingestion"
	"github.com/guttosm/marketpulse/internal/quotes"
	"github.com/guttosm/marketpulse/internal/scheduler"
	"github.com/guttosm/marketpulse/internal/storage"
)

// Core is the ingestion stack shared by every process: store, quote source,
// orchestrator and the scheduler that coalesces runs.
type Core struct {
	Store        storage.PriceBarRepository
	Source       quotes.Source
	Orchestrator *ingestion.Orchestrator
	Scheduler    *scheduler.Scheduler
}

// NewCore builds the ingestion stack on an open database.
// The scheduler is constructed but not started.
func NewCore(cfg config.Config, conn *sql.DB) (*Core, error) {
	source, err := NewQuoteSource(cfg)
	if err != nil {
		return nil, err
	}

	store := storage.NewPriceBarRepository(conn)
	orch := ingestion.NewOrchestrator(source, store, ingestion.Config{
		MaxConcurrent: cfg.Ingestion.MaxConcurrent,
		FetchTimeout:  cfg.Ingestion.FetchTimeout,
	})
	sched := scheduler.New(orch, scheduler.Config{
		Interval:       cfg.Ingestion.Interval,
		Cron:           cfg.Ingestion.Cron,
		DefaultSymbols: cfg.Ingestion.DefaultSymbols,
		RunOnStart:     cfg.Ingestion.RunOnStart,
	})

	return &Core{Store: store, Source: source, Orchestrator: orch, Scheduler: sched}, nil
}

// NewQuoteSource picks the quote source named by QUOTE_SOURCE.
func NewQuoteSource(cfg config.Config) (quotes.Source, error) {
	switch cfg.Quotes.Source {
	case "", "yahoo":
		return quotes.NewYahooSource(quotes.YahooConfig{
			BaseURL:       cfg.Quotes.YahooBaseURL,
			RatePerSecond: cfg.Quotes.RatePerSecond,
			Timeout:       cfg.Ingestion.FetchTimeout,
		}), nil
	case "mock":
		return quotes.NewMockSource(), nil
	default:
		return nil, fmt.Errorf("unknown quote source %q", cfg.Quotes.Source)
	}
}

// InitializeCore opens and migrates Postgres and builds the ingestion stack without Redis.
// Used by the one-shot CLI commands.
func InitializeCore() (*Core, func(), error) {
	cfg := config.AppConfig

	db, err := postgresOpener(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}
	if err := migrator(db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}

	core, err := NewCore(cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return core, func() { _ = db.Close() }, nil
}
