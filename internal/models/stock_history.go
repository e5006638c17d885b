package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockHistory is one daily bar for a stock. Dates are stored at UTC
// midnight and there is at most one row per (stock_id, date).
type StockHistory struct {
	ID            string          `gorm:"size:36;primaryKey" json:"id"`
	StockID       string          `gorm:"size:36;not null;uniqueIndex:idx_stock_history_stock_date,priority:1" json:"stock_id"`
	Date          time.Time       `gorm:"not null;uniqueIndex:idx_stock_history_stock_date,priority:2" json:"date"`
	Open          decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"open"`
	High          decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"high"`
	Low           decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"low"`
	Close         decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"close"`
	AdjustedClose decimal.Decimal `gorm:"type:decimal(20,6);not null;default:0" json:"adjusted_close"`
	Volume        int64           `gorm:"not null;default:0" json:"volume"`
	CreatedAt     time.Time       `json:"created_at"`
	Stock         *Stock          `gorm:"foreignKey:StockID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName keeps the singular table name used by the migrations.
func (StockHistory) TableName() string { return "stock_history" }

// BeforeCreate hook generates a UUIDv7 for new records
func (h *StockHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = NewID()
	}
	return nil
}

// TradingDay truncates t to UTC midnight.
func TradingDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
