package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"stocktracker/internal/indicators"
	"stocktracker/internal/marketdata"
	"stocktracker/internal/models"
	"stocktracker/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// HistoryFilter holds optional date bounds for listing price history.
type HistoryFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
}

// IndicatorReport is the set of requested indicators computed over the
// most recent cached closes of a stock, oldest first.
type IndicatorReport struct {
	Symbol     string                 `json:"symbol"`
	Dates      []time.Time            `json:"dates"`
	Closes     []float64              `json:"closes"`
	Indicators map[string]interface{} `json:"indicators"`
}

// StockServicer defines the contract for the stock cache and its refresh
// orchestration.
type StockServicer interface {
	// GetOrRefresh returns the cached stock, refreshing it from the provider
	// when forced, absent, or stale. When a refresh fails but a cached row
	// exists, both the unchanged row and the error are returned.
	GetOrRefresh(ctx context.Context, symbol string, forceUpdate bool) (*models.Stock, error)
	GetStock(symbol string) (*models.Stock, error)
	EnsureStock(tx *gorm.DB, symbol, name string) (*models.Stock, error)
	GetRecentHistory(stockID string, limit int) ([]models.StockHistory, error)
	GetHistory(symbol string, filter HistoryFilter, page pagination.PageRequest) (*pagination.PageResponse[models.StockHistory], error)
	GetIndicators(symbol string, requests []indicators.Request, days int) (*IndicatorReport, error)
	SearchStocks(query string, limit int) ([]models.Stock, error)
	Backfill(ctx context.Context, symbol string, period marketdata.Period) (int, error)
	DeleteStock(ctx context.Context, symbol string) error
	PruneHistory(olderThan time.Time) (int64, error)
}

// SymbolFailure describes one symbol the batch updater could not refresh.
type SymbolFailure struct {
	Symbol  string `json:"symbol"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BatchResult summarizes one pass of the batch updater.
type BatchResult struct {
	Total      int             `json:"total"`
	Updated    int             `json:"updated"`
	Failed     []SymbolFailure `json:"failed"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
}

// UpdaterServicer defines the contract for the batch refresh job.
type UpdaterServicer interface {
	UpdateAll(ctx context.Context) (*BatchResult, error)
}

// HoldingSummary is a holding with values derived from the cached price.
type HoldingSummary struct {
	models.UserStock
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	GainLoss     decimal.Decimal `json:"gain_loss"`
	GainLossPct  float64         `json:"gain_loss_pct"`
}

// HoldingServicer defines the contract for holding-related business logic.
type HoldingServicer interface {
	AddHolding(userID, symbol, name string, quantity, price decimal.Decimal) (*models.UserStock, error)
	GetUserHoldings(userID string, page pagination.PageRequest) (*pagination.PageResponse[HoldingSummary], error)
	GetHoldingByID(userID, holdingID string) (*HoldingSummary, error)
	DeleteHolding(userID, holdingID string) error
}

// WatchlistServicer defines the contract for watchlist-related business logic.
type WatchlistServicer interface {
	AddToWatchlist(ctx context.Context, userID, symbol string) (*models.WatchlistItem, error)
	GetWatchlist(userID string) ([]models.WatchlistItem, error)
	RemoveFromWatchlist(userID, symbol string) error
}

// PortfolioStats contains aggregated values across all of a user's holdings.
type PortfolioStats struct {
	TotalValue         decimal.Decimal `json:"total_value"`
	TotalCost          decimal.Decimal `json:"total_cost"`
	TotalGain          decimal.Decimal `json:"total_gain"`
	GainPercent        float64         `json:"gain_percent"`
	DailyChangePercent float64         `json:"daily_change_percent"`
	HoldingCount       int             `json:"holding_count"`
}

// ValuePoint is the portfolio value on one trading day.
type ValuePoint struct {
	Date  time.Time       `json:"date"`
	Value decimal.Decimal `json:"value"`
}

// PerformancePoint is the percent change of a close versus the first close
// in the window.
type PerformancePoint struct {
	Date          time.Time `json:"date"`
	ChangePercent float64   `json:"change_percent"`
}

// PerformanceSeries is the relative performance of one held stock.
type PerformanceSeries struct {
	Symbol string             `json:"symbol"`
	Points []PerformancePoint `json:"points"`
}

// PortfolioServicer defines the contract for portfolio analytics.
type PortfolioServicer interface {
	GetStats(userID string) (*PortfolioStats, error)
	GetValueSeries(userID string, days int) ([]ValuePoint, error)
	GetPerformance(userID string, days int) ([]PerformanceSeries, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
