package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guttosm/marketpulse/internal/domain/dto"
	"github.com/guttosm/marketpulse/internal/jobs"
	"github.com/guttosm/marketpulse/internal/middleware"
	"github.com/guttosm/marketpulse/internal/service"
)

// Handler provides HTTP handlers for market data and job endpoints.
//
// Responsibilities:
//   - Validate path, query and body parameters
//   - Delegate to the service layer
//   - Translate service results and errors into response DTOs and status codes
type Handler struct {
	svc service.MarketDataService
}

// NewHandler constructs a new Handler instance.
//
// Parameters:
//   - svc (service.MarketDataService): service used for queries, ingestion and job submission.
//
// Returns:
//   - *Handler: A handler ready to be registered with the router.
func NewHandler(svc service.MarketDataService) *Handler {
	return &Handler{svc: svc}
}

// GetLatest handles GET /api/v1/market-data/latest/{symbol}.
//
// GetLatest godoc
// @Summary      Latest bar for a symbol
// @Description  Returns the most recent daily bar stored for the symbol, across sources
// @Tags         market-data
// @Produce      json
// @Param        symbol  path      string  true  "Ticker or pair" example(AAPL)
// @Success      200     {object}  models.PriceBar    "Success"
// @Failure      400     {object}  dto.ErrorResponse  "Bad Request"
// @Failure      404     {object}  dto.ErrorResponse  "Not Found"
// @Failure      500     {object}  dto.ErrorResponse  "Internal Error"
// @Router       /api/v1/market-data/latest/{symbol} [get]
func (h *Handler) GetLatest(c *gin.Context) {
	bar, err := h.svc.Latest(c.Request.Context(), c.Param("symbol"))
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		middleware.AbortWithError(c, http.StatusBadRequest, "invalid symbol", err)
		return
	case errors.Is(err, service.ErrNoData):
		c.JSON(http.StatusNotFound, dto.NewErrorResponse("no market data found", nil))
		return
	case err != nil:
		middleware.AbortWithError(c, http.StatusInternalServerError, "failed to fetch market data", err)
		return
	}

	c.JSON(http.StatusOK, bar)
}

// GetHistorical handles GET /api/v1/market-data/historical/{symbol}.
//
// Query Parameters:
//   - days (int, optional): window length in days, 1..3650 (default 30). Bars dated on or
//     after today minus days are returned, oldest first.
//
// GetHistorical godoc
// @Summary      Historical bars for a symbol
// @Description  Returns the bars of the last N days (inclusive) in ascending date order
// @Tags         market-data
// @Produce      json
// @Param        symbol  path      string  true   "Ticker or pair" example(AAPL)
// @Param        days    query     int     false  "Window in days (1..3650)" default(30)
// @Success      200     {object}  dto.HistoricalResponse  "Success"
// @Failure      400     {object}  dto.ErrorResponse       "Bad Request"
// @Failure      500     {object}  dto.ErrorResponse       "Internal Error"
// @Router       /api/v1/market-data/historical/{symbol} [get]
func (h *Handler) GetHistorical(c *gin.Context) {
	days := 0
	if raw, ok := c.GetQuery("days"); ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, dto.NewErrorResponse("days must be an integer between 1 and 3650", err))
			return
		}
		days = n
	}

	hist, err := h.svc.History(c.Request.Context(), c.Param("symbol"), days)
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(err.Error(), nil))
		return
	case err != nil:
		middleware.AbortWithError(c, http.StatusInternalServerError, "failed to fetch market data", err)
		return
	}

	c.JSON(http.StatusOK, dto.HistoricalResponse{
		Symbol: hist.Symbol,
		Days:   hist.Days,
		Since:  hist.Since.Format("2006-01-02"),
		Bars:   hist.Bars,
	})
}

// FetchMarketData handles POST /api/v1/market-data/fetch.
//
// The run is synchronous. Partial failures still answer 200 with the per-symbol breakdown.
//
// FetchMarketData godoc
// @Summary      Run ingestion now
// @Description  Fetches and stores the latest bar for the given symbols (or the default set) and returns the batch report
// @Tags         market-data
// @Accept       json
// @Produce      json
// @Param        request  body      dto.FetchRequest   false  "Symbols to fetch"
// @Success      200      {object}  dto.FetchResponse  "Report"
// @Failure      400      {object}  dto.ErrorResponse  "Bad Request"
// @Failure      500      {object}  dto.ErrorResponse  "Internal Error"
// @Failure      504      {object}  dto.ErrorResponse  "Still running"
// @Router       /api/v1/market-data/fetch [post]
func (h *Handler) FetchMarketData(c *gin.Context) {
	var req dto.FetchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("invalid request body", err))
		return
	}

	report, err := h.svc.TriggerIngestion(c.Request.Context(), req.Symbols)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		middleware.AbortWithError(c, http.StatusGatewayTimeout, "ingestion is still running", err)
		return
	case err != nil:
		middleware.AbortWithError(c, http.StatusInternalServerError, "failed to run ingestion", err)
		return
	}

	c.JSON(http.StatusOK, dto.NewFetchResponse(report))
}

// TransactionCreated handles POST /api/v1/events/transaction-created.
//
// TransactionCreated godoc
// @Summary      Transaction created event
// @Description  Enqueues the transaction notification and the monthly summary recompute
// @Tags         events
// @Accept       json
// @Produce      json
// @Param        request  body      dto.TransactionCreatedRequest  true  "Event"
// @Success      202      {object}  dto.JobAcceptedResponse        "Accepted"
// @Failure      400      {object}  dto.ErrorResponse              "Bad Request"
// @Failure      500      {object}  dto.ErrorResponse              "Internal Error"
// @Router       /api/v1/events/transaction-created [post]
func (h *Handler) TransactionCreated(c *gin.Context) {
	var req dto.TransactionCreatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("invalid request body", err))
		return
	}

	var at time.Time
	if req.OccurredAt != nil {
		at = *req.OccurredAt
	}
	ids, err := h.svc.SubmitTransactionEvent(c.Request.Context(), req.UserID, req.TransactionID, at)
	if err != nil {
		h.submitError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.JobAcceptedResponse{JobIDs: ids})
}

// SubmitJob handles POST /api/v1/jobs.
//
// SubmitJob godoc
// @Summary      Submit a background job
// @Description  Validates and enqueues a job of kind notify_transaction, summarize_month or fetch_market_data
// @Tags         jobs
// @Accept       json
// @Produce      json
// @Param        request  body      dto.SubmitJobRequest     true  "Job"
// @Success      202      {object}  dto.JobAcceptedResponse  "Accepted"
// @Failure      400      {object}  dto.ErrorResponse        "Bad Request"
// @Failure      500      {object}  dto.ErrorResponse        "Internal Error"
// @Router       /api/v1/jobs [post]
func (h *Handler) SubmitJob(c *gin.Context) {
	var req dto.SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("invalid request body", err))
		return
	}

	id, err := h.svc.SubmitJob(c.Request.Context(), jobs.Kind(req.Kind), req.Payload)
	if err != nil {
		h.submitError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.JobAcceptedResponse{JobIDs: []string{id}})
}

func (h *Handler) submitError(c *gin.Context, err error) {
	var ve *jobs.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse("invalid job", err))
		return
	}
	middleware.AbortWithError(c, http.StatusInternalServerError, "failed to enqueue job", err)
}
