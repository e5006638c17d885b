package services

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"

	apperrors "stocktracker/internal/errors"
	"stocktracker/internal/models"
	"stocktracker/internal/symbol"
)

// watchlistService handles watchlist-related business logic.
type watchlistService struct {
	db     *gorm.DB
	stocks StockServicer
}

// NewWatchlistService creates a new WatchlistServicer.
func NewWatchlistService(db *gorm.DB, stocks StockServicer) WatchlistServicer {
	return &watchlistService{db: db, stocks: stocks}
}

// AddToWatchlist adds a stock to the user's watchlist, fetching it from the
// provider first when it is not cached or is stale. A stale cached row is
// enough; a symbol the provider cannot resolve is rejected.
func (s *watchlistService) AddToWatchlist(ctx context.Context, userID, raw string) (*models.WatchlistItem, error) {
	stock, err := s.stocks.GetOrRefresh(ctx, raw, false)
	if stock == nil {
		return nil, err
	}

	var count int64
	if err := s.db.Model(&models.WatchlistItem{}).
		Where("user_id = ? AND stock_id = ?", userID, stock.ID).
		Count(&count).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count > 0 {
		return nil, apperrors.ErrAlreadyInWatchlist
	}

	item := &models.WatchlistItem{UserID: userID, StockID: stock.ID}
	if err := s.db.Create(item).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrAlreadyInWatchlist
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	item.Stock = stock
	return item, nil
}

// GetWatchlist returns the user's watchlist ordered by symbol.
func (s *watchlistService) GetWatchlist(userID string) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	if err := s.db.Preload("Stock").Where("user_id = ?", userID).Find(&items).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	sort.Slice(items, func(i, j int) bool {
		return watchSymbol(items[i]) < watchSymbol(items[j])
	})
	return items, nil
}

func watchSymbol(item models.WatchlistItem) string {
	if item.Stock == nil {
		return ""
	}
	return item.Stock.Symbol
}

// RemoveFromWatchlist removes symbol from the user's watchlist.
func (s *watchlistService) RemoveFromWatchlist(userID, raw string) error {
	sym, err := symbol.Normalize(raw)
	if err != nil {
		return invalidSymbol(raw)
	}

	var stock models.Stock
	if err := s.db.Select("id").Where("symbol = ?", sym).First(&stock).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrWatchlistItemNotFound
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := s.db.Where("user_id = ? AND stock_id = ?", userID, stock.ID).Delete(&models.WatchlistItem{})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrWatchlistItemNotFound
	}
	return nil
}
