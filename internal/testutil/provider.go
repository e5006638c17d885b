package testutil

import (
	"context"
	"sync"
	"time"

	"stocktracker/internal/marketdata"
	"stocktracker/internal/models"

	"github.com/shopspring/decimal"
)

// FakeProvider is an in-memory marketdata.Provider. Symbols without a
// configured result answer with no data.
type FakeProvider struct {
	mu        sync.Mutex
	quotes    map[string]marketdata.QuoteResult
	histories map[string]marketdata.HistoryResult

	QuoteCalls   map[string]int
	HistoryCalls map[string]int
	LastPeriod   marketdata.Period
}

var _ marketdata.Provider = (*FakeProvider)(nil)

// NewFakeProvider returns an empty fake.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		quotes:       make(map[string]marketdata.QuoteResult),
		histories:    make(map[string]marketdata.HistoryResult),
		QuoteCalls:   make(map[string]int),
		HistoryCalls: make(map[string]int),
	}
}

func (f *FakeProvider) Name() string { return "fake" }

// SetQuote configures the quote result for symbol.
func (f *FakeProvider) SetQuote(symbol string, res marketdata.QuoteResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = res
}

// SetHistory configures the history result for symbol.
func (f *FakeProvider) SetHistory(symbol string, res marketdata.HistoryResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories[symbol] = res
}

// SetStock configures a successful quote at price and daily bars for the
// given closes ending at end, oldest first.
func (f *FakeProvider) SetStock(symbol, name, price string, end time.Time, closes ...string) {
	f.SetQuote(symbol, marketdata.QuoteFound(marketdata.Quote{
		Symbol:        symbol,
		Name:          name,
		Currency:      "USD",
		Price:         decimal.RequireFromString(price),
		PreviousClose: decimal.RequireFromString(price),
		MarketCap:     1_000_000,
		Volume:        5000,
		AvgVolume:     4000,
	}))
	f.SetHistory(symbol, marketdata.HistoryFound(Bars(end, closes...)))
}

// Quote implements marketdata.Provider.
func (f *FakeProvider) Quote(_ context.Context, symbol string) marketdata.QuoteResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.QuoteCalls[symbol]++
	if res, ok := f.quotes[symbol]; ok {
		return res
	}
	return marketdata.QuoteNoData("unknown symbol")
}

// History implements marketdata.Provider.
func (f *FakeProvider) History(_ context.Context, symbol string, period marketdata.Period, _ marketdata.Interval) marketdata.HistoryResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HistoryCalls[symbol]++
	f.LastPeriod = period
	if res, ok := f.histories[symbol]; ok {
		return res
	}
	return marketdata.HistoryNoData("unknown symbol")
}

// Calls returns the number of quote calls made for symbol.
func (f *FakeProvider) Calls(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.QuoteCalls[symbol]
}

// Bars builds one daily bar per close ending at the trading day of end.
func Bars(end time.Time, closes ...string) []marketdata.Bar {
	day := models.TradingDay(end)
	bars := make([]marketdata.Bar, len(closes))
	for i, c := range closes {
		price := decimal.RequireFromString(c)
		bars[i] = marketdata.Bar{
			Date:     day.AddDate(0, 0, i-len(closes)+1),
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
			AdjClose: price,
			Volume:   1000,
		}
	}
	return bars
}
