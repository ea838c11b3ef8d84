// Package quotes fetches the most recent daily bar for a symbol from an external provider.
package quotes

import (
	"context"
	"errors"
	"fmt"

	"github.com/guttosm/marketpulse/internal/domain/models"
)

// Source returns the latest complete daily bar for a symbol.
//
// Implementations make a single attempt per call and never retry. Failures are
// reported as *Error so callers can classify them with errors.As.
type Source interface {
	Name() string
	FetchLatestBar(ctx context.Context, symbol string) (models.PriceBar, error)
}

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindTransport         ErrorKind = "transport"
	KindRateLimited       ErrorKind = "rate_limited"
	KindNotFound          ErrorKind = "not_found"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// Error is returned by every Source implementation.
type Error struct {
	Kind   ErrorKind
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("quotes %s: %s", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("quotes %s: %s: %v", e.Symbol, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a later attempt could succeed.
func (e *Error) Retryable() bool { return e.Kind != KindNotFound }

func newError(kind ErrorKind, symbol string, err error) *Error {
	return &Error{Kind: kind, Symbol: symbol, Err: err}
}

// KindOf extracts the ErrorKind from err. Errors that did not come from a
// Source are treated as transport failures.
func KindOf(err error) ErrorKind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindTransport
}
