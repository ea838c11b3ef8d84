package dto

import (
	"encoding/json"
	"time"

	"github.com/guttosm/marketpulse/internal/domain/models"
)

// HistoricalResponse is returned by GET /api/v1/market-data/historical/{symbol}.
type HistoricalResponse struct {
	Symbol string            `json:"symbol" example:"AAPL"`
	Days   int               `json:"days" example:"30"`
	Since  string            `json:"since" example:"2025-08-13"`
	Bars   []models.PriceBar `json:"bars"`
}

// FetchRequest is the optional body of POST /api/v1/market-data/fetch.
// An empty or missing symbol list means the configured default set.
type FetchRequest struct {
	Symbols []string `json:"symbols" example:"AAPL,MSFT"`
}

// FetchResponse wraps an ingestion report with summary counters.
type FetchResponse struct {
	Requested int                     `json:"requested" example:"3"`
	Succeeded int                     `json:"succeeded_count" example:"2"`
	Failed    int                     `json:"failed_count" example:"1"`
	Report    *models.IngestionReport `json:"report"`
}

// NewFetchResponse summarises a report.
func NewFetchResponse(r *models.IngestionReport) FetchResponse {
	return FetchResponse{
		Requested: len(r.RequestedSymbols),
		Succeeded: len(r.Succeeded),
		Failed:    len(r.Failed),
		Report:    r,
	}
}

// TransactionCreatedRequest is the body of POST /api/v1/events/transaction-created.
type TransactionCreatedRequest struct {
	UserID        int64      `json:"user_id" binding:"required" example:"42"`
	TransactionID int64      `json:"transaction_id" binding:"required" example:"1001"`
	OccurredAt    *time.Time `json:"occurred_at,omitempty"`
}

// SubmitJobRequest is the body of POST /api/v1/jobs.
type SubmitJobRequest struct {
	Kind string `json:"kind" binding:"required" example:"fetch_market_data"`
	// Payload is kept as raw JSON so large integer ids reach the job untouched.
	Payload json.RawMessage `json:"payload" swaggertype:"object"`
}

// JobAcceptedResponse acknowledges one or more enqueued jobs.
type JobAcceptedResponse struct {
	JobIDs []string `json:"job_ids"`
}
