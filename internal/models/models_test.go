package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestStock_IsStale(t *testing.T) {
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name        string
		lastUpdated *time.Time
		want        bool
	}{
		{"never_updated", nil, true},
		{"just_updated", at(0), false},
		{"fourteen_minutes_59", at(14*time.Minute + 59*time.Second), false},
		{"exactly_fifteen_minutes", at(15 * time.Minute), true},
		{"an_hour_old", at(time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Stock{LastUpdated: tt.lastUpdated}
			if got := s.IsStale(now, window); got != tt.want {
				t.Errorf("IsStale = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserStock_AddPurchase(t *testing.T) {
	h := &UserStock{
		Quantity:     decimal.NewFromInt(10),
		AveragePrice: decimal.NewFromInt(100),
	}
	h.AddPurchase(decimal.NewFromInt(10), decimal.NewFromInt(200))

	if !h.Quantity.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected quantity 20, got %s", h.Quantity)
	}
	if !h.AveragePrice.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected average 150, got %s", h.AveragePrice)
	}
	if !h.CostBasis().Equal(decimal.NewFromInt(3000)) {
		t.Errorf("expected cost basis 3000, got %s", h.CostBasis())
	}
}

func TestStock_DayChangePercent(t *testing.T) {
	s := &Stock{CurrentPrice: decimal.NewFromInt(110), PreviousClose: decimal.NewFromInt(100)}
	if got := s.DayChangePercent(); got != 10 {
		t.Errorf("expected 10, got %v", got)
	}

	s.PreviousClose = decimal.Zero
	if got := s.DayChangePercent(); got != 0 {
		t.Errorf("expected 0 without previous close, got %v", got)
	}
}

func TestTradingDay(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	in := time.Date(2024, 3, 4, 21, 30, 0, 0, loc) // 02:30 UTC on the 5th
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if got := TradingDay(in); !got.Equal(want) {
		t.Errorf("TradingDay = %v, want %v", got, want)
	}
}
