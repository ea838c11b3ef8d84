package quotes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/guttosm/marketpulse/internal/domain/models"
	"github.com/guttosm/marketpulse/internal/logger"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// YahooSourceID is the source identifier stored on bars fetched from Yahoo Finance.
const YahooSourceID = "yahoo_finance"

const maxBodyBytes = 2 << 20

// YahooConfig tunes the Yahoo Finance chart client.
type YahooConfig struct {
	BaseURL       string
	RatePerSecond float64
	Timeout       time.Duration
}

// YahooSource implements Source using the public Yahoo Finance chart API.
type YahooSource struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewYahooSource creates a new Yahoo Finance source.
func NewYahooSource(cfg YahooConfig) *YahooSource {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://query1.finance.yahoo.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &YahooSource{
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.Component("quotes.yahoo"),
	}
}

func (y *YahooSource) Name() string { return YahooSourceID }

// FetchLatestBar requests the last five daily bars and returns the most recent one
// whose OHLC values are all present.
func (y *YahooSource) FetchLatestBar(ctx context.Context, symbol string) (models.PriceBar, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return models.PriceBar{}, newError(KindTransport, symbol, err)
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=5d", y.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.PriceBar{}, newError(KindTransport, symbol, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := y.client.Do(req)
	if err != nil {
		return models.PriceBar{}, newError(KindTransport, symbol, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.PriceBar{}, newError(KindTransport, symbol, fmt.Errorf("read body: %w", err))
	}

	y.log.Debug().
		Str("symbol", symbol).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("chart response")

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return models.PriceBar{}, newError(KindRateLimited, symbol, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return models.PriceBar{}, newError(KindNotFound, symbol, errors.New(chartErrorDescription(body, "symbol not found")))
	case resp.StatusCode >= 500:
		return models.PriceBar{}, newError(KindTransport, symbol, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return models.PriceBar{}, newError(KindTransport, symbol, fmt.Errorf("status %d: %s", resp.StatusCode, chartErrorDescription(body, "unexpected status")))
	}

	bar, err := parseChart(body, symbol)
	if err != nil {
		return models.PriceBar{}, err
	}
	bar.RecordedAt = time.Now().UTC()
	return bar, nil
}

// parseChart extracts the most recent complete bar from a chart payload.
func parseChart(body []byte, symbol string) (models.PriceBar, error) {
	if !gjson.ValidBytes(body) {
		return models.PriceBar{}, newError(KindMalformedResponse, symbol, errors.New("invalid json"))
	}

	root := gjson.ParseBytes(body)
	if chartErr := root.Get("chart.error"); chartErr.Exists() && chartErr.Type != gjson.Null {
		desc := chartErr.Get("description").String()
		if strings.EqualFold(chartErr.Get("code").String(), "Not Found") || strings.Contains(desc, "No data found") {
			return models.PriceBar{}, newError(KindNotFound, symbol, errors.New(desc))
		}
		return models.PriceBar{}, newError(KindMalformedResponse, symbol, fmt.Errorf("provider error: %s", desc))
	}
	if !root.Get("chart").Exists() {
		return models.PriceBar{}, newError(KindMalformedResponse, symbol, errors.New("missing chart object"))
	}

	result := root.Get("chart.result.0")
	if !result.Exists() {
		return models.PriceBar{}, newError(KindNotFound, symbol, errors.New("empty result"))
	}

	timestamps := result.Get("timestamp").Array()
	if len(timestamps) == 0 {
		return models.PriceBar{}, newError(KindNotFound, symbol, errors.New("no timestamps"))
	}

	quote := result.Get("indicators.quote.0")
	if !quote.Exists() {
		return models.PriceBar{}, newError(KindMalformedResponse, symbol, errors.New("missing indicators.quote"))
	}
	opens := quote.Get("open").Array()
	highs := quote.Get("high").Array()
	lows := quote.Get("low").Array()
	closes := quote.Get("close").Array()
	volumes := quote.Get("volume").Array()
	n := len(timestamps)
	if len(opens) != n || len(highs) != n || len(lows) != n || len(closes) != n || len(volumes) != n {
		return models.PriceBar{}, newError(KindMalformedResponse, symbol, errors.New("quote arrays do not match timestamps"))
	}

	loc := time.UTC
	if tz := result.Get("meta.exchangeTimezoneName").String(); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	for i := n - 1; i >= 0; i-- {
		if isNull(opens[i]) || isNull(highs[i]) || isNull(lows[i]) || isNull(closes[i]) {
			continue
		}
		open, err1 := toDecimal(opens[i])
		high, err2 := toDecimal(highs[i])
		low, err3 := toDecimal(lows[i])
		closePrice, err4 := toDecimal(closes[i])
		if err := errors.Join(err1, err2, err3, err4); err != nil {
			return models.PriceBar{}, newError(KindMalformedResponse, symbol, err)
		}
		return models.PriceBar{
			Symbol: strings.ToUpper(symbol),
			Date:   models.DateOnly(time.Unix(timestamps[i].Int(), 0).In(loc)),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volumes[i].Int(),
			Source: YahooSourceID,
		}, nil
	}

	return models.PriceBar{}, newError(KindNotFound, symbol, errors.New("no complete bar in range"))
}

func isNull(v gjson.Result) bool { return v.Type == gjson.Null }

func toDecimal(v gjson.Result) (decimal.Decimal, error) {
	if v.Type != gjson.Number {
		return decimal.Zero, fmt.Errorf("expected number, got %s", v.Type)
	}
	d, err := decimal.NewFromString(v.Raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

func chartErrorDescription(body []byte, fallback string) string {
	if d := gjson.GetBytes(body, "chart.error.description"); d.Exists() && d.String() != "" {
		return d.String()
	}
	return fallback
}
