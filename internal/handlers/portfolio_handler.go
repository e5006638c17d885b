package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stocktracker/internal/services"
)

const defaultSeriesDays = 30

// PortfolioHandler serves portfolio analytics.
type PortfolioHandler struct {
	portfolioService services.PortfolioServicer
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(portfolioService services.PortfolioServicer) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService}
}

// GetStats returns portfolio totals.
// @Summary     Portfolio stats
// @Description Total value, cost, gain, and the value weighted change since the previous close
// @Tags        portfolio
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} services.PortfolioStats "Stats"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /portfolio/stats [get]
func (h *PortfolioHandler) GetStats(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	stats, err := h.portfolioService.GetStats(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetValueSeries returns the portfolio value per day.
// @Summary     Portfolio value series
// @Description Summed close times quantity of all holdings per cached trading day
// @Tags        portfolio
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       days query int false "Lookback in days (default 30, max 1825)"
// @Success     200 {object} map[string][]services.ValuePoint "Value series"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /portfolio/value [get]
func (h *PortfolioHandler) GetValueSeries(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	days, err := queryInt(c, "days", defaultSeriesDays)
	if err != nil {
		respondWithError(c, err)
		return
	}

	points, err := h.portfolioService.GetValueSeries(userID, days)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"days": days, "points": points})
}

// GetPerformance returns per-holding percent change series.
// @Summary     Portfolio performance
// @Description Percent change of each held stock relative to its first close in the window
// @Tags        portfolio
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       days query int false "Lookback in days (default 30, max 1825)"
// @Success     200 {object} map[string][]services.PerformanceSeries "Performance series"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /portfolio/performance [get]
func (h *PortfolioHandler) GetPerformance(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	days, err := queryInt(c, "days", defaultSeriesDays)
	if err != nil {
		respondWithError(c, err)
		return
	}

	series, err := h.portfolioService.GetPerformance(userID, days)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"days": days, "series": series})
}
