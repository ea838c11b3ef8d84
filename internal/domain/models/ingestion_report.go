package models

import "time"

// FailureKind classifies why a symbol ended up in the failed bucket of a report.
type FailureKind string

const (
	FailureNotFound          FailureKind = "not_found"
	FailureTransport         FailureKind = "transport"
	FailureRateLimited       FailureKind = "rate_limited"
	FailureMalformedResponse FailureKind = "malformed_response"
	FailureValidation        FailureKind = "validation"
	FailureStorage           FailureKind = "storage"
	FailureInternal          FailureKind = "internal"
)

// SymbolFailure describes a single failed symbol in an ingestion run.
type SymbolFailure struct {
	Kind      FailureKind `json:"kind" example:"not_found"`
	Message   string      `json:"message" example:"no data available for symbol"`
	Retryable bool        `json:"retryable"`
}

// IngestionReport is the outcome of one orchestration run.
//
// Every requested symbol appears in exactly one of Succeeded or Failed.
// Reports are transient: they are returned to the caller and logged, never persisted.
type IngestionReport struct {
	RequestedSymbols []string                 `json:"requested_symbols"`
	Succeeded        map[string]PriceBar      `json:"succeeded"`
	Failed           map[string]SymbolFailure `json:"failed"`
	StartedAt        time.Time                `json:"started_at"`
	FinishedAt       time.Time                `json:"finished_at"`
}

// NewIngestionReport returns an empty report for the given symbols.
func NewIngestionReport(symbols []string, startedAt time.Time) *IngestionReport {
	requested := make([]string, len(symbols))
	copy(requested, symbols)
	return &IngestionReport{
		RequestedSymbols: requested,
		Succeeded:        make(map[string]PriceBar, len(symbols)),
		Failed:           make(map[string]SymbolFailure),
		StartedAt:        startedAt,
	}
}

// Duration is the wall time of the run.
func (r *IngestionReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
