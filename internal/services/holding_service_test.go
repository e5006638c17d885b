package services

import (
	"testing"

	"stocktracker/internal/models"
	"stocktracker/internal/pagination"
	"stocktracker/internal/testutil"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAddHolding(t *testing.T) {
	t.Run("creates_stock_lazily", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		fake := testutil.NewFakeProvider()
		svc := NewHoldingService(db, newStockSvc(db, fake, &testClock{now: marketNow}))

		holding, err := svc.AddHolding(user.ID, "nvda", "NVIDIA", dec("10"), dec("100"))
		testutil.AssertNoError(t, err)

		if holding.Stock == nil || holding.Stock.Symbol != "NVDA" {
			t.Fatalf("expected NVDA stock attached, got %+v", holding.Stock)
		}
		testutil.AssertDecimal(t, "10", holding.Quantity)
		testutil.AssertDecimal(t, "100", holding.AveragePrice)
		if len(fake.QuoteCalls) != 0 {
			t.Error("expected no provider calls")
		}
	})

	t.Run("repeat_purchase_averages_price", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		svc := NewHoldingService(db, newStockSvc(db, testutil.NewFakeProvider(), &testClock{now: marketNow}))

		first, err := svc.AddHolding(user.ID, "AAPL", "", dec("10"), dec("100"))
		testutil.AssertNoError(t, err)
		second, err := svc.AddHolding(user.ID, "AAPL", "", dec("30"), dec("200"))
		testutil.AssertNoError(t, err)

		if first.ID != second.ID {
			t.Errorf("expected the same holding, got %s and %s", first.ID, second.ID)
		}
		testutil.AssertDecimal(t, "40", second.Quantity)
		testutil.AssertDecimal(t, "175", second.AveragePrice)

		var count int64
		db.Model(&models.UserStock{}).Count(&count)
		if count != 1 {
			t.Errorf("expected 1 holding row, got %d", count)
		}
	})

	t.Run("validation", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		user := testutil.CreateTestUser(t, db)
		svc := NewHoldingService(db, newStockSvc(db, testutil.NewFakeProvider(), &testClock{now: marketNow}))

		_, err := svc.AddHolding(user.ID, "bad symbol", "", dec("1"), dec("1"))
		testutil.AssertAppError(t, err, "INVALID_SYMBOL")

		_, err = svc.AddHolding(user.ID, "AAPL", "", dec("0"), dec("1"))
		testutil.AssertAppError(t, err, "INVALID_INPUT")

		_, err = svc.AddHolding(user.ID, "AAPL", "", dec("1"), dec("-5"))
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestGetUserHoldings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)
	priced := testutil.CreateTestStock(t, db, "AAPL", "150", &marketNow)
	unpriced := testutil.CreateTestStock(t, db, "NEW", "0", nil)
	testutil.CreateTestHolding(t, db, user.ID, priced.ID, "10", "100")
	testutil.CreateTestHolding(t, db, user.ID, unpriced.ID, "5", "20")
	testutil.CreateTestHolding(t, db, other.ID, priced.ID, "1", "1")
	svc := NewHoldingService(db, newStockSvc(db, testutil.NewFakeProvider(), &testClock{now: marketNow}))

	page, err := svc.GetUserHoldings(user.ID, pagination.PageRequest{})
	testutil.AssertNoError(t, err)

	if page.TotalItems != 2 {
		t.Fatalf("expected 2 holdings, got %d", page.TotalItems)
	}
	byStock := make(map[string]HoldingSummary)
	for _, h := range page.Data {
		byStock[h.StockID] = h
	}

	h := byStock[priced.ID]
	testutil.AssertDecimal(t, "1500", h.MarketValue)
	testutil.AssertDecimal(t, "1000", h.CostBasis)
	testutil.AssertDecimal(t, "500", h.GainLoss)
	if h.GainLossPct != 50 {
		t.Errorf("expected 50%% gain, got %v", h.GainLossPct)
	}

	u := byStock[unpriced.ID]
	testutil.AssertDecimal(t, "20", u.CurrentPrice)
	testutil.AssertDecimal(t, "0", u.GainLoss)
}

func TestGetHoldingByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)
	stock := testutil.CreateTestStock(t, db, "AAPL", "150", &marketNow)
	holding := testutil.CreateTestHolding(t, db, user.ID, stock.ID, "2", "100")
	svc := NewHoldingService(db, newStockSvc(db, testutil.NewFakeProvider(), &testClock{now: marketNow}))

	t.Run("owner", func(t *testing.T) {
		got, err := svc.GetHoldingByID(user.ID, holding.ID)
		testutil.AssertNoError(t, err)
		testutil.AssertDecimal(t, "300", got.MarketValue)
	})

	t.Run("other_user", func(t *testing.T) {
		_, err := svc.GetHoldingByID(other.ID, holding.ID)
		testutil.AssertAppError(t, err, "HOLDING_NOT_FOUND")
	})
}

func TestDeleteHolding(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	user := testutil.CreateTestUser(t, db)
	other := testutil.CreateTestUser(t, db)
	stock := testutil.CreateTestStock(t, db, "AAPL", "150", &marketNow)
	holding := testutil.CreateTestHolding(t, db, user.ID, stock.ID, "2", "100")
	svc := NewHoldingService(db, newStockSvc(db, testutil.NewFakeProvider(), &testClock{now: marketNow}))

	t.Run("other_user_cannot_delete", func(t *testing.T) {
		err := svc.DeleteHolding(other.ID, holding.ID)
		testutil.AssertAppError(t, err, "HOLDING_NOT_FOUND")
	})

	t.Run("owner_deletes", func(t *testing.T) {
		testutil.AssertNoError(t, svc.DeleteHolding(user.ID, holding.ID))
		err := svc.DeleteHolding(user.ID, holding.ID)
		testutil.AssertAppError(t, err, "HOLDING_NOT_FOUND")
	})
}
