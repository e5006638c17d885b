package models

// WatchlistItem marks a stock a user follows without holding it.
type WatchlistItem struct {
	Base
	UserID  string `gorm:"size:36;not null;uniqueIndex:idx_watchlist_user_stock,priority:1" json:"user_id"`
	StockID string `gorm:"size:36;not null;uniqueIndex:idx_watchlist_user_stock,priority:2;index" json:"stock_id"`
	Stock   *Stock `gorm:"foreignKey:StockID;constraint:OnDelete:CASCADE" json:"stock,omitempty"`
}

// TableName keeps the singular table name used by the migrations.
func (WatchlistItem) TableName() string { return "watchlist" }
