package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar represents one day's OHLCV quote for one symbol from one source.
//
// Identity:
//   - The triple (Symbol, Date, Source) is unique in the store. Re-ingesting
//     the same key replaces the row instead of duplicating it.
//
// Fields:
//   - Symbol: exchange ticker or pair identifier (e.g., "AAPL", "BTC-USD").
//   - Date: calendar date of the trading session, stored as UTC midnight.
//   - Open/High/Low/Close: session prices.
//   - Volume: traded volume for the session (never negative).
//   - Source: provider identifier (e.g., "yahoo_finance").
//   - RecordedAt: when the bar was ingested.
//
// swagger:model PriceBar
type PriceBar struct {
	Symbol     string          `json:"symbol" db:"symbol" example:"AAPL"`
	Date       time.Time       `json:"date" db:"bar_date" example:"2025-09-12T00:00:00Z"`
	Open       decimal.Decimal `json:"open" db:"open_price" swaggertype:"string" example:"229.22"`
	High       decimal.Decimal `json:"high" db:"high_price" swaggertype:"string" example:"234.51"`
	Low        decimal.Decimal `json:"low" db:"low_price" swaggertype:"string" example:"229.02"`
	Close      decimal.Decimal `json:"close" db:"close_price" swaggertype:"string" example:"234.07"`
	Volume     int64           `json:"volume" db:"volume" example:"55824200"`
	Source     string          `json:"source" db:"source" example:"yahoo_finance"`
	RecordedAt time.Time       `json:"recorded_at" db:"recorded_at"`
}

// DateOnly truncates t to a calendar date at UTC midnight, keeping the
// year/month/day as seen in t's own location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
