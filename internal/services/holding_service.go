package services

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "stocktracker/internal/errors"
	"stocktracker/internal/models"
	"stocktracker/internal/pagination"
	"stocktracker/internal/symbol"
)

// holdingService handles holding-related business logic.
type holdingService struct {
	db     *gorm.DB
	stocks StockServicer
}

// NewHoldingService creates a new HoldingServicer.
func NewHoldingService(db *gorm.DB, stocks StockServicer) HoldingServicer {
	return &holdingService{db: db, stocks: stocks}
}

// AddHolding records a purchase. The stock row is created lazily without a
// provider call, and a repeat purchase folds into the existing holding at
// the quantity weighted average price.
func (s *holdingService) AddHolding(userID, raw, name string, quantity, price decimal.Decimal) (*models.UserStock, error) {
	if !symbol.Valid(raw) {
		return nil, invalidSymbol(raw)
	}
	if !quantity.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Quantity must be greater than zero")
	}
	if !price.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Price must be greater than zero")
	}

	var holding models.UserStock
	err := s.db.Transaction(func(tx *gorm.DB) error {
		stock, err := s.stocks.EnsureStock(tx, raw, name)
		if err != nil {
			return err
		}

		err = forUpdate(tx).Where("user_id = ? AND stock_id = ?", userID, stock.ID).First(&holding).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			holding = models.UserStock{
				UserID:       userID,
				StockID:      stock.ID,
				Quantity:     quantity,
				AveragePrice: price,
			}
			if err := tx.Create(&holding).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		case err != nil:
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		default:
			holding.AddPurchase(quantity, price)
			if err := tx.Save(&holding).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}

		holding.Stock = stock
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &holding, nil
}

// GetUserHoldings returns a page of the user's holdings with derived values.
func (s *holdingService) GetUserHoldings(userID string, page pagination.PageRequest) (*pagination.PageResponse[HoldingSummary], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.UserStock{}).Where("user_id = ?", userID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var holdings []models.UserStock
	if err := base.Preload("Stock").Order("created_at ASC").Scopes(pagination.Paginate(page)).Find(&holdings).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	summaries := make([]HoldingSummary, len(holdings))
	for i := range holdings {
		summaries[i] = summarizeHolding(holdings[i])
	}

	result := pagination.NewPageResponse(summaries, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetHoldingByID returns one holding owned by the user.
func (s *holdingService) GetHoldingByID(userID, holdingID string) (*HoldingSummary, error) {
	var holding models.UserStock
	if err := s.db.Preload("Stock").Where("id = ? AND user_id = ?", holdingID, userID).First(&holding).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrHoldingNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	summary := summarizeHolding(holding)
	return &summary, nil
}

// DeleteHolding removes one holding owned by the user.
func (s *holdingService) DeleteHolding(userID, holdingID string) error {
	result := s.db.Where("id = ? AND user_id = ?", holdingID, userID).Delete(&models.UserStock{})
	if result.Error != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrHoldingNotFound
	}
	return nil
}

// valuationPrice is the cached price, or the average price for a stock
// that has never been priced.
func valuationPrice(h models.UserStock) decimal.Decimal {
	if h.Stock != nil && h.Stock.CurrentPrice.IsPositive() {
		return h.Stock.CurrentPrice
	}
	return h.AveragePrice
}

func summarizeHolding(h models.UserStock) HoldingSummary {
	price := valuationPrice(h)
	value := h.Quantity.Mul(price)
	cost := h.CostBasis()
	gain := value.Sub(cost)

	var pct float64
	if cost.IsPositive() {
		pct, _ = gain.Div(cost).Mul(decimal.NewFromInt(100)).Float64()
	}
	return HoldingSummary{
		UserStock:    h,
		CurrentPrice: price,
		MarketValue:  value,
		CostBasis:    cost,
		GainLoss:     gain,
		GainLossPct:  pct,
	}
}
