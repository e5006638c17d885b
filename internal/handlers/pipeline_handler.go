package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "stocktracker/internal/errors"
	"stocktracker/internal/marketdata"
	"stocktracker/internal/services"
)

// PipelineHandler exposes the updater and admin operations to API-key
// authenticated callers.
type PipelineHandler struct {
	stockService   services.StockServicer
	updaterService services.UpdaterServicer
	auditService   services.AuditServicer
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(stockService services.StockServicer, updaterService services.UpdaterServicer, auditService services.AuditServicer) *PipelineHandler {
	return &PipelineHandler{stockService: stockService, updaterService: updaterService, auditService: auditService}
}

// BackfillQuery holds the query parameters of the backfill route.
type BackfillQuery struct {
	Period string `form:"period" binding:"omitempty,history_period"`
}

// BackfillResponse reports a completed backfill.
type BackfillResponse struct {
	Symbol string `json:"symbol"`
	Period string `json:"period"`
	Bars   int    `json:"bars"`
}

// RefreshAll runs one batch update pass.
// @Summary     Refresh all stocks
// @Description Force-refresh every cached stock. Per-symbol failures are reported and do not stop the pass.
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} services.BatchResult "Batch result"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/stocks/refresh [post]
func (h *PipelineHandler) RefreshAll(c *gin.Context) {
	result, err := h.updaterService.UpdateAll(c.Request.Context())
	if err != nil && result == nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Backfill replaces a stock's full history.
// @Summary     Backfill history
// @Description Replace the cached history of an existing stock with the given period of daily bars
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       symbol path  string true  "Ticker symbol"
// @Param       period query string false "Period: 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max (default 1y)"
// @Success     200 {object} BackfillResponse "Backfill result"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     404 {object} ErrorResponse "Stock not found or no data"
// @Failure     500 {object} ErrorResponse "Persistence failure"
// @Failure     503 {object} ErrorResponse "Provider unavailable"
// @Router      /pipeline/stocks/{symbol}/backfill [post]
func (h *PipelineHandler) Backfill(c *gin.Context) {
	var q BackfillQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	period := marketdata.Period(q.Period)
	if period == "" {
		period = marketdata.DefaultBackfill
	}

	sym := c.Param("symbol")
	bars, err := h.stockService.Backfill(c.Request.Context(), sym, period)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log("", services.AuditActionBackfillHistory, "stock", sym, c.ClientIP(),
		map[string]interface{}{"period": string(period), "bars": bars})

	c.JSON(http.StatusOK, BackfillResponse{Symbol: sym, Period: string(period), Bars: bars})
}

// DeleteStock removes a stock and everything that references it.
// @Summary     Delete stock
// @Description Remove a stock with its history, holdings, and watchlist entries
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       symbol path string true "Ticker symbol"
// @Success     204 "Deleted"
// @Failure     400 {object} ErrorResponse "Invalid symbol"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     404 {object} ErrorResponse "Stock not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /pipeline/stocks/{symbol} [delete]
func (h *PipelineHandler) DeleteStock(c *gin.Context) {
	sym := c.Param("symbol")
	if err := h.stockService.DeleteStock(c.Request.Context(), sym); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log("", services.AuditActionDeleteStock, "stock", sym, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}
