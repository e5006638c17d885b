package models

import "github.com/shopspring/decimal"

// UserStock is a user's holding of a stock: quantity and average cost.
type UserStock struct {
	Base
	UserID       string          `gorm:"size:36;not null;uniqueIndex:idx_user_stock,priority:1" json:"user_id"`
	StockID      string          `gorm:"size:36;not null;uniqueIndex:idx_user_stock,priority:2;index" json:"stock_id"`
	Quantity     decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"quantity"`
	AveragePrice decimal.Decimal `gorm:"type:decimal(20,6);not null" json:"average_price"`
	Stock        *Stock          `gorm:"foreignKey:StockID;constraint:OnDelete:CASCADE" json:"stock,omitempty"`
}

// AddPurchase folds a new purchase into the holding using a quantity
// weighted average of the prices.
func (h *UserStock) AddPurchase(quantity, price decimal.Decimal) {
	total := h.Quantity.Add(quantity)
	if total.IsZero() {
		return
	}
	cost := h.Quantity.Mul(h.AveragePrice).Add(quantity.Mul(price))
	h.AveragePrice = cost.Div(total)
	h.Quantity = total
}

// CostBasis is quantity times average price.
func (h *UserStock) CostBasis() decimal.Decimal {
	return h.Quantity.Mul(h.AveragePrice)
}
