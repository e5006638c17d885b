package testutil_test

import (
	"context"
	"testing"
	"time"

	"stocktracker/internal/errors"
	"stocktracker/internal/marketdata"
	"stocktracker/internal/models"
	"stocktracker/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	// Verify all tables exist by doing a simple count query on each model.
	var count int64
	for _, table := range []string{"users", "stocks", "stock_history", "user_stocks", "watchlist", "audit_logs"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestSetupTestDB_Isolated(t *testing.T) {
	a := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, a)
	b := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, b)

	testutil.CreateTestStock(t, a, "AAPL", "100", nil)

	var count int64
	b.Model(&models.Stock{}).Count(&count)
	if count != 0 {
		t.Errorf("expected second database to be empty, got %d stocks", count)
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	user := testutil.CreateTestUser(t, db)
	if user.ID == "" {
		t.Fatal("user should have an ID")
	}

	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	stock := testutil.CreateTestStock(t, db, "AAPL", "187.25", &now)
	testutil.AssertDecimal(t, "187.25", stock.CurrentPrice)

	rows := testutil.CreateTestHistory(t, db, stock.ID, now, "1", "2", "3")
	if len(rows) != 3 {
		t.Fatalf("expected 3 history rows, got %d", len(rows))
	}
	if !rows[2].Date.Equal(models.TradingDay(now)) {
		t.Errorf("expected last bar on %v, got %v", models.TradingDay(now), rows[2].Date)
	}
	if !rows[0].Date.Equal(models.TradingDay(now).AddDate(0, 0, -2)) {
		t.Errorf("expected first bar two days earlier, got %v", rows[0].Date)
	}

	holding := testutil.CreateTestHolding(t, db, user.ID, stock.ID, "10", "150")
	testutil.AssertDecimal(t, "1500", holding.CostBasis())

	item := testutil.CreateTestWatchlistItem(t, db, user.ID, stock.ID)
	if item.ID == "" {
		t.Error("watchlist item should have an ID")
	}
}

func TestFakeProvider(t *testing.T) {
	p := testutil.NewFakeProvider()
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

	if res := p.Quote(context.Background(), "NOPE"); res.Kind != marketdata.KindNoData {
		t.Errorf("expected no data for unknown symbol, got %s", res.Kind)
	}

	p.SetStock("AAPL", "Apple Inc.", "187.25", now, "180", "187.25")
	res := p.Quote(context.Background(), "AAPL")
	if res.Kind != marketdata.KindOK {
		t.Fatalf("expected ok, got %s", res.Kind)
	}
	hist := p.History(context.Background(), "AAPL", marketdata.PeriodYear, marketdata.IntervalDay)
	if len(hist.Bars) != 2 {
		t.Errorf("expected 2 bars, got %d", len(hist.Bars))
	}
	if p.LastPeriod != marketdata.PeriodYear {
		t.Errorf("expected period to be recorded, got %s", p.LastPeriod)
	}
	if p.Calls("AAPL") != 1 {
		t.Errorf("expected 1 quote call, got %d", p.Calls("AAPL"))
	}
}

func TestAssertAppError(t *testing.T) {
	err := errors.WithMessage(errors.ErrStockNotFound, "custom message")
	testutil.AssertAppError(t, err, "STOCK_NOT_FOUND")
}

func TestAssertNoError(t *testing.T) {
	testutil.AssertNoError(t, nil)
}
