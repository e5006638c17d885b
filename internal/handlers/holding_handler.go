package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "stocktracker/internal/errors"
	"stocktracker/internal/pagination"
	"stocktracker/internal/services"
)

// HoldingHandler handles holding-related requests.
type HoldingHandler struct {
	holdingService services.HoldingServicer
	auditService   services.AuditServicer
}

// NewHoldingHandler creates a new HoldingHandler.
func NewHoldingHandler(holdingService services.HoldingServicer, auditService services.AuditServicer) *HoldingHandler {
	return &HoldingHandler{holdingService: holdingService, auditService: auditService}
}

// AddHoldingRequest represents the request payload for recording a purchase.
type AddHoldingRequest struct {
	Symbol   string          `json:"symbol" binding:"required,stock_symbol"`
	Name     string          `json:"name" binding:"max=255"`
	Quantity decimal.Decimal `json:"quantity" binding:"required,gt=0" swaggertype:"string" example:"10"`
	Price    decimal.Decimal `json:"price" binding:"required,gt=0" swaggertype:"string" example:"187.25"`
}

// AddHolding records a purchase, merging into an existing holding.
// @Summary     Add holding
// @Description Record a purchase of a stock. A repeat purchase of the same stock updates the quantity and the weighted average price.
// @Tags        holdings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body AddHoldingRequest true "Purchase details"
// @Success     201 {object} models.UserStock "Holding"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /holdings [post]
func (h *HoldingHandler) AddHolding(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AddHoldingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	holding, err := h.holdingService.AddHolding(userID, req.Symbol, req.Name, req.Quantity, req.Price)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionAddHolding, "holding", holding.ID, c.ClientIP(),
		map[string]interface{}{"symbol": req.Symbol, "quantity": req.Quantity.String(), "price": req.Price.String()})

	c.JSON(http.StatusCreated, gin.H{"holding": holding})
}

// GetHoldings lists the user's holdings with derived values.
// @Summary     List holdings
// @Description Get a paginated list of the user's holdings with market value, cost basis, and gain/loss
// @Tags        holdings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 250)"
// @Success     200 {object} pagination.PageResponse[services.HoldingSummary] "Paginated holdings"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /holdings [get]
func (h *HoldingHandler) GetHoldings(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.holdingService.GetUserHoldings(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetHolding returns one holding.
// @Summary     Get holding by ID
// @Description Get a specific holding with derived values
// @Tags        holdings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Holding ID"
// @Success     200 {object} services.HoldingSummary "Holding"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Holding not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /holdings/{id} [get]
func (h *HoldingHandler) GetHolding(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	holding, err := h.holdingService.GetHoldingByID(userID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"holding": holding})
}

// DeleteHolding removes a holding.
// @Summary     Delete holding
// @Description Delete a holding owned by the user
// @Tags        holdings
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Holding ID"
// @Success     204 "Holding deleted"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Holding not found"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /holdings/{id} [delete]
func (h *HoldingHandler) DeleteHolding(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	holdingID := c.Param("id")
	if err := h.holdingService.DeleteHolding(userID, holdingID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, services.AuditActionDeleteHolding, "holding", holdingID, c.ClientIP(), nil)

	c.Status(http.StatusNoContent)
}
