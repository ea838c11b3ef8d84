// Package jobs implements fire-and-forget background jobs: submission, queueing,
// retrying execution and dead-lettering.
package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind names a job type. Each kind has exactly one payload shape.
type Kind string

const (
	KindNotifyTransaction Kind = "notify_transaction"
	KindSummarizeMonth    Kind = "summarize_month"
	KindFetchMarketData   Kind = "fetch_market_data"
)

// Kinds lists every known job kind.
func Kinds() []Kind {
	return []Kind{KindNotifyTransaction, KindSummarizeMonth, KindFetchMarketData}
}

// Job is one unit of background work as it travels through a Queue.
type Job struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	SubmittedAt time.Time       `json:"submitted_at"`
	Attempt     int             `json:"attempt"` // attempts already spent, carried across requeues

	receipt string // raw queue entry, set by queues that need an ack
}

// NotifyTransactionPayload asks for a notification about a newly created transaction.
type NotifyTransactionPayload struct {
	UserID        int64 `json:"user_id"`
	TransactionID int64 `json:"transaction_id"`
}

// SummarizeMonthPayload asks for a user's monthly summary to be recomputed.
type SummarizeMonthPayload struct {
	UserID int64 `json:"user_id"`
	Month  int   `json:"month"`
	Year   int   `json:"year"`
}

// FetchMarketDataPayload asks for an ingestion run. Empty Symbols means the default set.
type FetchMarketDataPayload struct {
	Symbols []string `json:"symbols,omitempty"`
}

// ValidationError reports a submission rejected before it reached the queue.
type ValidationError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s job: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s job: %s %s", e.Kind, e.Field, e.Reason)
}

// ExecutionError is the final error of a job that exhausted its attempts.
type ExecutionError struct {
	JobID    string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("job %s (%s) failed after %d attempt(s): %v", e.JobID, e.Kind, e.Attempts, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Validate decodes raw strictly into the payload shape of kind and checks its fields.
func Validate(kind Kind, raw json.RawMessage) error {
	switch kind {
	case KindNotifyTransaction:
		var p NotifyTransactionPayload
		if err := decodeStrict(kind, raw, &p); err != nil {
			return err
		}
		return p.validate()
	case KindSummarizeMonth:
		var p SummarizeMonthPayload
		if err := decodeStrict(kind, raw, &p); err != nil {
			return err
		}
		return p.validate()
	case KindFetchMarketData:
		var p FetchMarketDataPayload
		if err := decodeStrict(kind, raw, &p); err != nil {
			return err
		}
		return p.validate()
	default:
		return &ValidationError{Kind: kind, Field: "kind", Reason: "is not a known job kind"}
	}
}

// Decode unmarshals a job's payload into v, validating it first.
func Decode(job Job, v any) error {
	if err := Validate(job.Kind, job.Payload); err != nil {
		return err
	}
	return json.Unmarshal(job.Payload, v)
}

func (p NotifyTransactionPayload) validate() error {
	if p.UserID <= 0 {
		return &ValidationError{Kind: KindNotifyTransaction, Field: "user_id", Reason: "must be positive"}
	}
	if p.TransactionID <= 0 {
		return &ValidationError{Kind: KindNotifyTransaction, Field: "transaction_id", Reason: "must be positive"}
	}
	return nil
}

func (p SummarizeMonthPayload) validate() error {
	switch {
	case p.UserID <= 0:
		return &ValidationError{Kind: KindSummarizeMonth, Field: "user_id", Reason: "must be positive"}
	case p.Month < 1 || p.Month > 12:
		return &ValidationError{Kind: KindSummarizeMonth, Field: "month", Reason: "must be in 1..12"}
	case p.Year < 1970 || p.Year > 9999:
		return &ValidationError{Kind: KindSummarizeMonth, Field: "year", Reason: "must be in 1970..9999"}
	}
	return nil
}

func (p FetchMarketDataPayload) validate() error {
	for i, s := range p.Symbols {
		if strings.TrimSpace(s) == "" {
			return &ValidationError{Kind: KindFetchMarketData, Field: fmt.Sprintf("symbols[%d]", i), Reason: "must not be blank"}
		}
	}
	return nil
}

func decodeStrict(kind Kind, raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &ValidationError{Kind: kind, Field: "payload", Reason: err.Error()}
	}
	return nil
}

// encodePayload turns a typed payload, a map, or raw JSON into a RawMessage.
func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		return rawOrEmpty(p), nil
	case []byte:
		return rawOrEmpty(p), nil
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// rawOrEmpty maps a blank or null document to {} so the envelope always marshals.
func rawOrEmpty(b []byte) json.RawMessage {
	t := bytes.TrimSpace(b)
	if len(t) == 0 || bytes.Equal(t, []byte("null")) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(t)
}
