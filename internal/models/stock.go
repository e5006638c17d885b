package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockType is derived from the shape of the symbol.
type StockType string

const (
	StockTypeEquity        StockType = "equity"
	StockTypeFuture        StockType = "future"
	StockTypeInternational StockType = "international"
	StockTypeIndex         StockType = "index"
	StockTypePair          StockType = "pair"
)

// Stock is the cached last-known quote for a symbol.
//
// LastUpdated is nil until the first successful provider fetch and only
// moves forward afterwards. Rows are hard-deleted by admins only.
type Stock struct {
	Base
	Symbol        string          `gorm:"size:16;uniqueIndex;not null" json:"symbol"`
	Name          string          `gorm:"size:255" json:"name"`
	Type          StockType       `gorm:"size:20;not null;default:equity" json:"type"`
	Currency      string          `gorm:"size:3;default:USD" json:"currency"`
	CurrentPrice  decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"current_price"`
	PreviousClose decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"previous_close"`
	MarketCap     int64           `gorm:"not null;default:0" json:"market_cap"`
	Volume        int64           `gorm:"not null;default:0" json:"volume"`
	AvgVolume     int64           `gorm:"not null;default:0" json:"avg_volume"`
	LastUpdated   *time.Time      `gorm:"index" json:"last_updated"`
}

// IsStale reports whether the cached quote must be refreshed at now.
// A row exactly window old is stale.
func (s *Stock) IsStale(now time.Time, window time.Duration) bool {
	if s.LastUpdated == nil {
		return true
	}
	return now.Sub(*s.LastUpdated) >= window
}

// DayChangePercent is the percent move from the previous close, or zero
// when no previous close is known.
func (s *Stock) DayChangePercent() float64 {
	if s.PreviousClose.IsZero() {
		return 0
	}
	pct, _ := s.CurrentPrice.Sub(s.PreviousClose).Div(s.PreviousClose).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
