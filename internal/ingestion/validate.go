package ingestion

import (
	"fmt"
	"strings"

	"github.com/guttosm/marketpulse/internal/domain/models"
	"github.com/shopspring/decimal"
)

// ValidationError reports a bar that violates the OHLCV invariants.
type ValidationError struct {
	Symbol  string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bar for %s: %s", e.Symbol, strings.Join(e.Reasons, "; "))
}

// Validate checks that all prices are positive, low <= open,close <= high and volume >= 0.
func Validate(bar models.PriceBar) error {
	var reasons []string

	if strings.TrimSpace(bar.Symbol) == "" {
		reasons = append(reasons, "symbol is empty")
	}
	if bar.Date.IsZero() {
		reasons = append(reasons, "date is missing")
	}
	if strings.TrimSpace(bar.Source) == "" {
		reasons = append(reasons, "source is empty")
	}

	prices := []struct {
		name string
		v    decimal.Decimal
	}{
		{"open", bar.Open}, {"high", bar.High}, {"low", bar.Low}, {"close", bar.Close},
	}
	for _, p := range prices {
		if !p.v.IsPositive() {
			reasons = append(reasons, p.name+" must be > 0")
		}
	}

	if bar.High.LessThan(bar.Low) {
		reasons = append(reasons, fmt.Sprintf("high %s < low %s", bar.High, bar.Low))
	}
	if bar.Open.LessThan(bar.Low) || bar.Open.GreaterThan(bar.High) {
		reasons = append(reasons, fmt.Sprintf("open %s outside [%s, %s]", bar.Open, bar.Low, bar.High))
	}
	if bar.Close.LessThan(bar.Low) || bar.Close.GreaterThan(bar.High) {
		reasons = append(reasons, fmt.Sprintf("close %s outside [%s, %s]", bar.Close, bar.Low, bar.High))
	}
	if bar.Volume < 0 {
		reasons = append(reasons, "volume must be >= 0")
	}

	if len(reasons) > 0 {
		return &ValidationError{Symbol: bar.Symbol, Reasons: reasons}
	}
	return nil
}
