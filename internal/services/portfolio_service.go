package services

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "stocktracker/internal/errors"
	"stocktracker/internal/models"
)

const (
	defaultSeriesDays = 30
	maxSeriesDays     = 5 * 365
)

var hundred = decimal.NewFromInt(100)

// portfolioService computes portfolio analytics from holdings and the
// cached price history.
type portfolioService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPortfolioService creates a new PortfolioServicer.
func NewPortfolioService(db *gorm.DB) PortfolioServicer {
	return &portfolioService{db: db, now: time.Now}
}

func (s *portfolioService) loadHoldings(userID string) ([]models.UserStock, error) {
	var holdings []models.UserStock
	if err := s.db.Preload("Stock").Where("user_id = ?", userID).Find(&holdings).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return holdings, nil
}

// previousCloses returns, per stock, the close of the most recent bar dated
// strictly before the given day.
func (s *portfolioService) previousCloses(stockIDs []string, before time.Time) (map[string]decimal.Decimal, error) {
	if len(stockIDs) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	type closeRow struct {
		StockID string
		Close   decimal.Decimal
	}
	var rows []closeRow

	subq := s.db.Model(&models.StockHistory{}).
		Select("stock_id, MAX(date) AS max_date").
		Where("stock_id IN ? AND date < ?", stockIDs, before).
		Group("stock_id")

	if err := s.db.Table("stock_history sh").
		Select("sh.stock_id, sh.close").
		Joins("INNER JOIN (?) latest ON sh.stock_id = latest.stock_id AND sh.date = latest.max_date", subq).
		Scan(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		result[r.StockID] = r.Close
	}
	return result, nil
}

// GetStats returns totals across the user's holdings. The daily change is
// value weighted against each stock's last close before today, falling
// back to the quoted previous close when no earlier bar is cached.
func (s *portfolioService) GetStats(userID string) (*PortfolioStats, error) {
	holdings, err := s.loadHoldings(userID)
	if err != nil {
		return nil, err
	}

	stats := &PortfolioStats{
		TotalValue:   decimal.Zero,
		TotalCost:    decimal.Zero,
		TotalGain:    decimal.Zero,
		HoldingCount: len(holdings),
	}
	if len(holdings) == 0 {
		return stats, nil
	}

	ids := make([]string, len(holdings))
	for i := range holdings {
		ids[i] = holdings[i].StockID
	}
	prevCloses, err := s.previousCloses(ids, models.TradingDay(s.now()))
	if err != nil {
		return nil, err
	}

	prevValue, currValue := decimal.Zero, decimal.Zero
	for _, h := range holdings {
		price := valuationPrice(h)
		value := h.Quantity.Mul(price)
		stats.TotalValue = stats.TotalValue.Add(value)
		stats.TotalCost = stats.TotalCost.Add(h.CostBasis())

		prev, ok := prevCloses[h.StockID]
		if !ok && h.Stock != nil {
			prev = h.Stock.PreviousClose
		}
		if prev.IsPositive() {
			prevValue = prevValue.Add(h.Quantity.Mul(prev))
			currValue = currValue.Add(value)
		}
	}

	stats.TotalGain = stats.TotalValue.Sub(stats.TotalCost)
	if stats.TotalCost.IsPositive() {
		stats.GainPercent, _ = stats.TotalGain.Div(stats.TotalCost).Mul(hundred).Float64()
	}
	if prevValue.IsPositive() {
		stats.DailyChangePercent, _ = currValue.Sub(prevValue).Div(prevValue).Mul(hundred).Float64()
	}
	return stats, nil
}

// historyByStock loads bars since from for the given stocks, oldest first.
func (s *portfolioService) historyByStock(stockIDs []string, from time.Time) (map[string][]models.StockHistory, error) {
	var rows []models.StockHistory
	if err := s.db.Where("stock_id IN ? AND date >= ?", stockIDs, from).
		Order("date ASC").
		Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	result := make(map[string][]models.StockHistory)
	for _, r := range rows {
		result[r.StockID] = append(result[r.StockID], r)
	}
	return result, nil
}

// GetValueSeries returns the summed close times quantity of the user's
// holdings for each cached trading day in the last days days. A stock with
// no bar on a day contributes its last known close, which may predate the
// window; it contributes nothing until it has one.
func (s *portfolioService) GetValueSeries(userID string, days int) ([]ValuePoint, error) {
	days = clampDays(days, defaultSeriesDays, maxSeriesDays)

	holdings, err := s.loadHoldings(userID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return []ValuePoint{}, nil
	}

	quantities := make(map[string]decimal.Decimal, len(holdings))
	ids := make([]string, 0, len(holdings))
	for _, h := range holdings {
		quantities[h.StockID] = h.Quantity
		ids = append(ids, h.StockID)
	}

	from := startOfWindow(s.now(), days)
	history, err := s.historyByStock(ids, from)
	if err != nil {
		return nil, err
	}
	last, err := s.previousCloses(ids, from)
	if err != nil {
		return nil, err
	}

	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, rows := range history {
		for _, r := range rows {
			day := models.TradingDay(r.Date)
			if !seen[day] {
				seen[day] = true
				dates = append(dates, day)
			}
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	next := make(map[string]int, len(ids))
	points := make([]ValuePoint, 0, len(dates))
	for _, day := range dates {
		value := decimal.Zero
		for _, id := range ids {
			rows := history[id]
			i := next[id]
			for ; i < len(rows) && !models.TradingDay(rows[i].Date).After(day); i++ {
				last[id] = rows[i].Close
			}
			next[id] = i
			if c, ok := last[id]; ok {
				value = value.Add(c.Mul(quantities[id]))
			}
		}
		points = append(points, ValuePoint{Date: day, Value: value})
	}
	return points, nil
}

// GetPerformance returns, per held stock, the percent change of each close
// versus the first positive close in the window.
func (s *portfolioService) GetPerformance(userID string, days int) ([]PerformanceSeries, error) {
	days = clampDays(days, defaultSeriesDays, maxSeriesDays)

	holdings, err := s.loadHoldings(userID)
	if err != nil {
		return nil, err
	}
	if len(holdings) == 0 {
		return []PerformanceSeries{}, nil
	}

	ids := make([]string, len(holdings))
	for i := range holdings {
		ids[i] = holdings[i].StockID
	}
	history, err := s.historyByStock(ids, startOfWindow(s.now(), days))
	if err != nil {
		return nil, err
	}

	series := make([]PerformanceSeries, 0, len(holdings))
	for _, h := range holdings {
		sym := h.StockID
		if h.Stock != nil {
			sym = h.Stock.Symbol
		}
		perf := PerformanceSeries{Symbol: sym, Points: []PerformancePoint{}}

		var base decimal.Decimal
		for _, r := range history[h.StockID] {
			if base.IsZero() {
				if !r.Close.IsPositive() {
					continue
				}
				base = r.Close
			}
			pct, _ := r.Close.Sub(base).Div(base).Mul(hundred).Float64()
			perf.Points = append(perf.Points, PerformancePoint{Date: models.TradingDay(r.Date), ChangePercent: pct})
		}
		series = append(series, perf)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Symbol < series[j].Symbol })
	return series, nil
}
