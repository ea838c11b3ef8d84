//go:build integration
// +build integration

package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/docker/go-connections/nat"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/guttosm/marketpulse/config"
	"github.com/guttosm/marketpulse/internal/app"
	"github.com/guttosm/marketpulse/internal/domain/dto"
	"github.com/guttosm/marketpulse/internal/domain/models"
)

func startPG(t *testing.T) (host string, port nat.Port, terminate func()) {
	t.Helper()
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "marketpulse",
			"POSTGRES_USER":     "postgres",
			"POSTGRES_PASSWORD": "postgres",
		},
		WaitingFor: wait.ForSQL("5432/tcp", "postgres", func(h string, p nat.Port) string {
			return fmt.Sprintf("host=%s port=%s user=postgres password=postgres dbname=marketpulse sslmode=disable", h, p.Port())
		}).WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("container: %v", err)
	}
	h, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	mp, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	return h, mp, func() { _ = c.Terminate(context.Background()) }
}

func configure(t *testing.T, host string, port nat.Port, redisAddr string) {
	t.Helper()
	old := config.AppConfig
	t.Cleanup(func() { config.AppConfig = old })

	config.AppConfig = config.Config{
		Postgres: config.PostgresConfig{
			Host: host, Port: port.Int(), User: "postgres", Password: "postgres",
			DBName: "marketpulse", SSLMode: "disable",
		},
		Redis: config.RedisConfig{Addr: redisAddr, QueueKey: "e2e:jobs", DeadLetterKey: "e2e:jobs:dead"},
		Ingestion: config.IngestionConfig{
			Interval:       time.Hour,
			DefaultSymbols: []string{"AAPL", "MSFT"},
			FetchTimeout:   5 * time.Second,
			MaxConcurrent:  2,
		},
		Jobs:   config.JobsConfig{Workers: 1, MaxAttempts: 3},
		Quotes: config.QuotesConfig{Source: "mock"},
	}
}

func TestAPI_E2E_FetchThenQuery(t *testing.T) {
	host, port, term := startPG(t)
	defer term()
	mr := miniredis.RunT(t)
	configure(t, host, port, mr.Addr())

	router, cleanup, err := app.InitializeApp()
	if err != nil {
		t.Fatalf("init app: %v", err)
	}
	defer cleanup()

	// Before any ingestion the symbol is unknown.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/market-data/latest/AAPL", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("latest before fetch: %d body=%s", w.Code, w.Body.String())
	}

	// Default symbols plus a bogus one: partial failure still answers 200.
	w = httptest.NewRecorder()
	body := strings.NewReader(`{"symbols":["aapl","MSFT","???"]}`)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/market-data/fetch", body))
	if w.Code != http.StatusOK {
		t.Fatalf("fetch: %d body=%s", w.Code, w.Body.String())
	}
	var fetched dto.FetchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("json: %v", err)
	}
	if fetched.Succeeded != 2 || fetched.Failed != 1 {
		t.Fatalf("unexpected report: %+v", fetched)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/market-data/latest/aapl", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("latest: %d body=%s", w.Code, w.Body.String())
	}
	var bar models.PriceBar
	if err := json.Unmarshal(w.Body.Bytes(), &bar); err != nil {
		t.Fatalf("json: %v", err)
	}
	if bar.Symbol != "AAPL" || bar.Source != "mock" {
		t.Fatalf("unexpected bar: %+v", bar)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/market-data/historical/AAPL?days=30", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("historical: %d body=%s", w.Code, w.Body.String())
	}
	var hist dto.HistoricalResponse
	if err := json.Unmarshal(w.Body.Bytes(), &hist); err != nil {
		t.Fatalf("json: %v", err)
	}
	if hist.Days != 30 || len(hist.Bars) != 1 {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestAPI_E2E_TransactionEventEnqueuesJobs(t *testing.T) {
	host, port, term := startPG(t)
	defer term()
	mr := miniredis.RunT(t)
	configure(t, host, port, mr.Addr())

	router, cleanup, err := app.InitializeApp()
	if err != nil {
		t.Fatalf("init app: %v", err)
	}
	defer cleanup()

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"user_id":7,"transaction_id":99}`)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/events/transaction-created", body))
	if w.Code != http.StatusAccepted {
		t.Fatalf("event: %d body=%s", w.Code, w.Body.String())
	}

	queued, err := mr.List("e2e:jobs")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(queued) != 2 {
		t.Fatalf("expected 2 queued jobs, got %d", len(queued))
	}
}
