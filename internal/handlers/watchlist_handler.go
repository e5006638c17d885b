package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "stocktracker/internal/errors"
	"stocktracker/internal/services"
)

// WatchlistHandler handles watchlist-related requests.
type WatchlistHandler struct {
	watchlistService services.WatchlistServicer
	auditService     services.AuditServicer
}

// NewWatchlistHandler creates a new WatchlistHandler.
func NewWatchlistHandler(watchlistService services.WatchlistServicer, auditService services.AuditServicer) *WatchlistHandler {
	return &WatchlistHandler{watchlistService: watchlistService, auditService: auditService}
}

// WatchRequest represents the request payload for adding to the watchlist.
type WatchRequest struct {
	Symbol string `json:"symbol" binding:"required,stock_symbol"`
}

// AddToWatchlist adds a stock to the watchlist.
// @Summary     Add to watchlist
// @Description Add a stock to the user's watchlist. Unknown symbols are fetched from the market data provider first.
// @Tags        watchlist
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body WatchRequest true "Symbol to watch"
// @Success     201 {object} models.WatchlistItem "Watchlist entry"
// @Failure     400 {object} ErrorResponse "Invalid symbol"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "No data available for symbol"
// @Failure     409 {object} ErrorResponse "Already in watchlist"
// @Failure     503 {object} ErrorResponse "Provider unavailable"
// @Router      /watchlist [post]
func (h *WatchlistHandler) AddToWatchlist(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req WatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	item, err := h.watchlistService.AddToWatchlist(c.Request.Context(), userID, req.Symbol)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionWatch, "watchlist", item.ID, c.ClientIP(),
		map[string]interface{}{"symbol": req.Symbol})

	c.JSON(http.StatusCreated, gin.H{"item": item})
}

// GetWatchlist lists the watchlist.
// @Summary     Get watchlist
// @Description Get the user's watchlist ordered by symbol
// @Tags        watchlist
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]models.WatchlistItem "Watchlist"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist [get]
func (h *WatchlistHandler) GetWatchlist(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	items, err := h.watchlistService.GetWatchlist(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// RemoveFromWatchlist removes a stock from the watchlist.
// @Summary     Remove from watchlist
// @Description Remove a stock from the user's watchlist
// @Tags        watchlist
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       symbol path string true "Ticker symbol"
// @Success     204 "Removed"
// @Failure     400 {object} ErrorResponse "Invalid symbol"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Not in watchlist"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /watchlist/{symbol} [delete]
func (h *WatchlistHandler) RemoveFromWatchlist(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	sym := c.Param("symbol")
	if err := h.watchlistService.RemoveFromWatchlist(userID, sym); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionUnwatch, "watchlist", sym, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}
