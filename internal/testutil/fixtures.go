package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"stocktracker/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestStock creates a priced stock updated at lastUpdated. A nil
// lastUpdated creates a row that has never been fetched.
func CreateTestStock(t *testing.T, db *gorm.DB, symbol string, price string, lastUpdated *time.Time) *models.Stock {
	t.Helper()

	stock := &models.Stock{
		Symbol:        symbol,
		Name:          fmt.Sprintf("%s Inc.", symbol),
		Type:          models.StockTypeEquity,
		Currency:      "USD",
		CurrentPrice:  decimal.RequireFromString(price),
		PreviousClose: decimal.RequireFromString(price),
		LastUpdated:   lastUpdated,
	}
	if err := db.Create(stock).Error; err != nil {
		t.Fatalf("failed to create test stock: %v", err)
	}
	return stock
}

// CreateTestHistory creates one daily bar per close, ending at the trading
// day of end and walking back one day per element. closes are oldest first.
func CreateTestHistory(t *testing.T, db *gorm.DB, stockID string, end time.Time, closes ...string) []models.StockHistory {
	t.Helper()

	day := models.TradingDay(end)
	rows := make([]models.StockHistory, len(closes))
	for i, c := range closes {
		price := decimal.RequireFromString(c)
		rows[i] = models.StockHistory{
			StockID:       stockID,
			Date:          day.AddDate(0, 0, i-len(closes)+1),
			Open:          price,
			High:          price,
			Low:           price,
			Close:         price,
			AdjustedClose: price,
			Volume:        1000,
		}
	}
	if len(rows) > 0 {
		if err := db.Create(&rows).Error; err != nil {
			t.Fatalf("failed to create test history: %v", err)
		}
	}
	return rows
}

// CreateTestHolding creates a holding of quantity shares at price.
func CreateTestHolding(t *testing.T, db *gorm.DB, userID, stockID string, quantity, price string) *models.UserStock {
	t.Helper()

	holding := &models.UserStock{
		UserID:       userID,
		StockID:      stockID,
		Quantity:     decimal.RequireFromString(quantity),
		AveragePrice: decimal.RequireFromString(price),
	}
	if err := db.Create(holding).Error; err != nil {
		t.Fatalf("failed to create test holding: %v", err)
	}
	return holding
}

// CreateTestWatchlistItem adds stockID to the user's watchlist.
func CreateTestWatchlistItem(t *testing.T, db *gorm.DB, userID, stockID string) *models.WatchlistItem {
	t.Helper()

	item := &models.WatchlistItem{UserID: userID, StockID: stockID}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("failed to create test watchlist item: %v", err)
	}
	return item
}
