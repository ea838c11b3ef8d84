package quotes

import (
	"context"
	"errors"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/guttosm/marketpulse/internal/domain/models"
	"github.com/shopspring/decimal"
)

// MockSourceID is the source identifier stored on bars produced by MockSource.
const MockSourceID = "mock"

var symbolPattern = regexp.MustCompile(`^[A-Z0-9^=.]{1,12}(-[A-Z]{2,5})?$`)

// MockSource produces deterministic bars without network access.
// The same symbol and session always yield the same prices.
type MockSource struct {
	mu      sync.RWMutex
	now     func() time.Time
	unknown map[string]struct{}
	failing map[string]ErrorKind
}

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithClock overrides the clock used to pick the session date.
func WithClock(now func() time.Time) MockOption {
	return func(m *MockSource) { m.now = now }
}

// WithUnknownSymbols makes the listed symbols return a not-found error.
func WithUnknownSymbols(symbols ...string) MockOption {
	return func(m *MockSource) {
		for _, s := range symbols {
			m.unknown[strings.ToUpper(s)] = struct{}{}
		}
	}
}

// NewMockSource creates a MockSource.
func NewMockSource(opts ...MockOption) *MockSource {
	m := &MockSource{
		now:     time.Now,
		unknown: map[string]struct{}{},
		failing: map[string]ErrorKind{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MockSource) Name() string { return MockSourceID }

// FailWith makes subsequent fetches of symbol fail with kind until cleared with an empty kind.
func (m *MockSource) FailWith(symbol string, kind ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == "" {
		delete(m.failing, strings.ToUpper(symbol))
		return
	}
	m.failing[strings.ToUpper(symbol)] = kind
}

func (m *MockSource) FetchLatestBar(ctx context.Context, symbol string) (models.PriceBar, error) {
	if err := ctx.Err(); err != nil {
		return models.PriceBar{}, newError(KindTransport, symbol, err)
	}

	sym := strings.ToUpper(symbol)
	m.mu.RLock()
	_, unknown := m.unknown[sym]
	kind, failing := m.failing[sym]
	m.mu.RUnlock()

	if failing {
		return models.PriceBar{}, newError(kind, symbol, errors.New("injected failure"))
	}
	if unknown || !symbolPattern.MatchString(sym) {
		return models.PriceBar{}, newError(KindNotFound, symbol, errors.New("no data found"))
	}

	session := LastSession(sym, m.now().UTC())
	return syntheticBar(sym, session), nil
}

// syntheticBar derives a stable OHLCV bar from the symbol and session date.
func syntheticBar(symbol string, session time.Time) models.PriceBar {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	base := int64(h.Sum64()%45000) + 500 // cents, 5.00 .. 454.99

	h.Reset()
	_, _ = h.Write([]byte(symbol + session.Format("2006-01-02")))
	seed := h.Sum64()

	hundred := decimal.NewFromInt(100)
	open := decimal.NewFromInt(base).Div(hundred)
	// close drifts up to +/-2% from open
	drift := decimal.NewFromInt(int64(seed%401) - 200).Div(decimal.NewFromInt(10000))
	closePrice := open.Mul(decimal.NewFromInt(1).Add(drift)).Round(2)
	spread := open.Mul(decimal.NewFromInt(int64(seed%150) + 10).Div(decimal.NewFromInt(10000)))

	high := decimal.Max(open, closePrice).Add(spread).Round(2)
	low := decimal.Min(open, closePrice).Sub(spread).Round(2)
	if !low.IsPositive() {
		low = decimal.New(1, -2)
	}

	return models.PriceBar{
		Symbol:     symbol,
		Date:       session,
		Open:       open.Round(2),
		High:       high,
		Low:        low,
		Close:      closePrice,
		Volume:     int64(seed%9_000_000) + 100_000,
		Source:     MockSourceID,
		RecordedAt: time.Now().UTC(),
	}
}
