package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "stocktracker/internal/errors"
	"stocktracker/internal/indicators"
	"stocktracker/internal/logger"
	"stocktracker/internal/models"
	"stocktracker/internal/pagination"
	"stocktracker/internal/services"
)

const (
	defaultHistoryBars = 30
	maxHistoryBars     = 365
)

// StockHandler serves cached quotes, history, and indicators.
type StockHandler struct {
	stockService services.StockServicer
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(stockService services.StockServicer) *StockHandler {
	return &StockHandler{stockService: stockService}
}

// StockQuery holds the query parameters of GET /stocks/:symbol.
type StockQuery struct {
	Force   bool `form:"force"`
	History *int `form:"history" binding:"omitempty,min=0,max=365"`
}

// QuoteQuery holds the query parameters of GET /quote.
type QuoteQuery struct {
	Symbol string `form:"symbol" binding:"required,stock_symbol"`
	Force  bool   `form:"force"`
}

// IndicatorQuery holds the query parameters of GET /stocks/:symbol/indicators.
type IndicatorQuery struct {
	Names string `form:"names" binding:"omitempty,max=200,indicator_list"`
	Days  int    `form:"days" binding:"omitempty,min=1,max=1000"`
}

// SearchQuery holds the query parameters of GET /search/stocks.
type SearchQuery struct {
	Query string `form:"query" binding:"required,max=64"`
	Limit int    `form:"limit" binding:"omitempty,min=1,max=50"`
}

// StockResponse is a cached stock with optional recent history. When the
// provider could not refresh a cached row the row is still returned with
// Stale set and the refresh error attached.
type StockResponse struct {
	Stock            *models.Stock         `json:"stock"`
	DayChangePercent float64               `json:"day_change_percent"`
	History          []models.StockHistory `json:"history,omitempty"`
	Stale            bool                  `json:"stale,omitempty"`
	RefreshError     *ErrorDetail          `json:"refresh_error,omitempty"`
}

// stockResponse builds the response for a get-or-refresh result. It returns
// false after writing an error response when there is no row to return.
func stockResponse(c *gin.Context, stock *models.Stock, err error) (*StockResponse, bool) {
	if stock == nil {
		if err == nil {
			err = apperrors.ErrStockNotFound
		}
		respondWithError(c, err)
		return nil, false
	}

	resp := &StockResponse{Stock: stock, DayChangePercent: stock.DayChangePercent()}
	if err != nil {
		var appErr *apperrors.AppError
		if !errors.As(err, &appErr) {
			appErr = apperrors.ErrInternalServer
		}
		logger.Get().Warnw("Serving stale stock",
			"symbol", stock.Symbol,
			"code", appErr.Code,
			"error", err,
		)
		resp.Stale = true
		resp.RefreshError = &ErrorDetail{Code: appErr.Code, Message: appErr.Message}
	}
	return resp, true
}

// GetStock returns a stock, refreshing it from the provider when stale.
// @Summary     Get stock
// @Description Get a stock by symbol. The cached row is refreshed from the market data provider when it is missing, older than the staleness window, or force is set. If the provider fails and a cached row exists, the row is returned with stale=true.
// @Tags        stocks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       symbol  path  string true  "Ticker symbol, e.g. AAPL, CL=F, ^GSPC"
// @Param       force   query bool   false "Force a provider refresh"
// @Param       history query int    false "Number of recent daily bars to include (default 30, 0 to omit)"
// @Success     200 {object} StockResponse "Stock details"
// @Failure     400 {object} ErrorResponse "Invalid symbol"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "No data available"
// @Failure     500 {object} ErrorResponse "Persistence failure"
// @Failure     503 {object} ErrorResponse "Provider unavailable"
// @Router      /stocks/{symbol} [get]
func (h *StockHandler) GetStock(c *gin.Context) {
	var q StockQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	stock, err := h.stockService.GetOrRefresh(c.Request.Context(), c.Param("symbol"), q.Force)
	resp, ok := stockResponse(c, stock, err)
	if !ok {
		return
	}

	bars := defaultHistoryBars
	if q.History != nil {
		bars = *q.History
	}
	if bars > maxHistoryBars {
		bars = maxHistoryBars
	}
	if bars > 0 {
		history, err := h.stockService.GetRecentHistory(stock.ID, bars)
		if err != nil {
			respondWithError(c, err)
			return
		}
		resp.History = history
	}

	c.JSON(http.StatusOK, resp)
}

// GetQuote returns the current quote for a symbol given as a query parameter.
// @Summary     Get quote
// @Description Same as GET /stocks/{symbol} without history, with the symbol passed as a query parameter
// @Tags        stocks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       symbol query string true  "Ticker symbol"
// @Param       force  query bool   false "Force a provider refresh"
// @Success     200 {object} StockResponse "Quote"
// @Failure     400 {object} ErrorResponse "Invalid symbol"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "No data available"
// @Failure     500 {object} ErrorResponse "Persistence failure"
// @Failure     503 {object} ErrorResponse "Provider unavailable"
// @Router      /quote [get]
func (h *StockHandler) GetQuote(c *gin.Context) {
	var q QuoteQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		if c.Query("symbol") != "" {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidSymbol, "Invalid stock symbol: "+c.Query("symbol")))
			return
		}
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	stock, err := h.stockService.GetOrRefresh(c.Request.Context(), q.Symbol, q.Force)
	resp, ok := stockResponse(c, stock, err)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetHistory returns cached daily bars for a stock, newest first.
// @Summary     Get price history
// @Description Get a paginated list of cached daily bars for a stock
// @Tags        stocks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       symbol    path  string true  "Ticker symbol"
// @Param       from_date query string false "Start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date   query string false "End date (RFC3339 or YYYY-MM-DD)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 250)"
// @Success     200 {object} pagination.PageResponse[models.StockHistory] "Paginated history"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stock not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stocks/{symbol}/history [get]
func (h *StockHandler) GetHistory(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var filter services.HistoryFilter
	if v := c.Query("from_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid from_date format, use RFC3339 or YYYY-MM-DD"))
			return
		}
		filter.FromDate = &t
	}
	if v := c.Query("to_date"); v != "" {
		t, err := parseFlexibleTime(v)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid to_date format, use RFC3339 or YYYY-MM-DD"))
			return
		}
		filter.ToDate = &t
	}
	if filter.FromDate != nil && filter.ToDate != nil && filter.ToDate.Before(*filter.FromDate) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "to_date must not be before from_date"))
		return
	}

	result, err := h.stockService.GetHistory(c.Param("symbol"), filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetIndicators computes technical indicators over cached history.
// @Summary     Get technical indicators
// @Description Compute indicators such as sma20, ema50, rsi14, macd, bollinger, obv, volume_delta, avso, lro, and composite over the most recent cached daily bars. Warm-up positions are null.
// @Tags        stocks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       symbol path  string true  "Ticker symbol"
// @Param       names  query string false "Comma separated indicators (default sma20,sma50,rsi14,macd,bollinger)"
// @Param       days   query int    false "Number of recent bars to use (default 200, max 1000)"
// @Success     200 {object} services.IndicatorReport "Indicator series"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Stock not found or no history"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /stocks/{symbol}/indicators [get]
func (h *StockHandler) GetIndicators(c *gin.Context) {
	var q IndicatorQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	requests, err := indicators.Parse(q.Names)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	report, err := h.stockService.GetIndicators(c.Param("symbol"), requests, q.Days)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// SearchStocks searches cached stocks by symbol or name.
// @Summary     Search stocks
// @Description Case-insensitive search of cached stocks by symbol or name. Exact and prefix matches rank first. Queries shorter than two characters return no results.
// @Tags        stocks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       query query string true  "Search text"
// @Param       limit query int    false "Maximum results (default 10, max 50)"
// @Success     200 {object} map[string][]models.Stock "Matching stocks"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /search/stocks [get]
func (h *StockHandler) SearchStocks(c *gin.Context) {
	var q SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	results, err := h.stockService.SearchStocks(q.Query, q.Limit)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"stocks": results})
}
