// Package marketdata fetches quotes and daily price history from external
// market data providers. Every call returns a tagged result so callers can
// tell "the provider has nothing for this symbol" apart from "the provider
// could not be reached".
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags the outcome of a provider call.
type Kind int

const (
	// KindOK means the payload is populated.
	KindOK Kind = iota
	// KindNoData means the provider answered but has nothing for the symbol.
	KindNoData
	// KindError means the provider failed (network, timeout, rate limit, bad payload).
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNoData:
		return "no_data"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Quote is the latest price snapshot and metadata for a symbol.
type Quote struct {
	Symbol        string
	Name          string
	Currency      string
	Price         decimal.Decimal
	PreviousClose decimal.Decimal
	MarketCap     int64
	Volume        int64
	AvgVolume     int64
}

// Bar is one OHLCV bar. Date is UTC midnight of the trading day.
type Bar struct {
	Date     time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	AdjClose decimal.Decimal
	Volume   int64
}

// QuoteResult is the tagged outcome of Provider.Quote.
type QuoteResult struct {
	Kind   Kind
	Quote  Quote
	Reason string
	Err    error
}

// HistoryResult is the tagged outcome of Provider.History.
type HistoryResult struct {
	Kind   Kind
	Bars   []Bar
	Reason string
	Err    error
}

// QuoteFound wraps a successful quote.
func QuoteFound(q Quote) QuoteResult { return QuoteResult{Kind: KindOK, Quote: q} }

// QuoteNoData reports that the provider has no quote for the symbol.
func QuoteNoData(reason string) QuoteResult { return QuoteResult{Kind: KindNoData, Reason: reason} }

// QuoteFailed reports a provider failure.
func QuoteFailed(err error) QuoteResult {
	return QuoteResult{Kind: KindError, Reason: err.Error(), Err: err}
}

// HistoryFound wraps successfully fetched bars.
func HistoryFound(bars []Bar) HistoryResult { return HistoryResult{Kind: KindOK, Bars: bars} }

// HistoryNoData reports that the provider has no bars for the symbol.
func HistoryNoData(reason string) HistoryResult {
	return HistoryResult{Kind: KindNoData, Reason: reason}
}

// HistoryFailed reports a provider failure.
func HistoryFailed(err error) HistoryResult {
	return HistoryResult{Kind: KindError, Reason: err.Error(), Err: err}
}

// Provider fetches market data for normalized symbols.
type Provider interface {
	// Name returns the provider's display name.
	Name() string

	// Quote returns the latest quote for symbol.
	Quote(ctx context.Context, symbol string) QuoteResult

	// History returns bars covering period at the given interval, oldest first.
	History(ctx context.Context, symbol string, period Period, interval Interval) HistoryResult
}

// summarize derives a quote from bars ordered oldest first. It returns
// false when no bar carries a positive close.
func summarize(symbol string, bars []Bar) (Quote, bool) {
	q := Quote{Symbol: symbol, Name: symbol, Currency: "USD"}

	var last, prev *Bar
	var volSum, n int64
	for i := range bars {
		if !bars[i].Close.IsPositive() {
			continue
		}
		prev, last = last, &bars[i]
		volSum += bars[i].Volume
		n++
	}
	if last == nil {
		return q, false
	}

	q.Price = last.Close
	q.Volume = last.Volume
	q.AvgVolume = volSum / n
	if prev != nil {
		q.PreviousClose = prev.Close
	}
	return q, true
}
