package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	restModels "github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"

	"stocktracker/internal/symbol"
)

const polygonAggLimit = 50000

// PolygonProvider fetches quotes and history from Polygon.io aggregates.
type PolygonProvider struct {
	client *polygon.Client
	now    func() time.Time
}

// NewPolygonProvider creates a Polygon.io provider with the given API key.
func NewPolygonProvider(apiKey string, timeout time.Duration) *PolygonProvider {
	return &PolygonProvider{
		client: polygon.NewWithClient(apiKey, &http.Client{Timeout: timeout}),
		now:    time.Now,
	}
}

// Name returns the provider's display name.
func (p *PolygonProvider) Name() string { return "Polygon.io" }

// Quote derives the latest quote from three months of daily aggregates and
// enriches it with ticker details when they are available.
func (p *PolygonProvider) Quote(ctx context.Context, sym string) QuoteResult {
	hist := p.History(ctx, sym, quoteRange, IntervalDay)
	switch hist.Kind {
	case KindError:
		return QuoteFailed(hist.Err)
	case KindNoData:
		return QuoteNoData(hist.Reason)
	}

	q, ok := summarize(sym, hist.Bars)
	if !ok {
		return QuoteNoData(fmt.Sprintf("no price for %s", sym))
	}

	details, err := p.client.GetTickerDetails(ctx, &restModels.GetTickerDetailsParams{Ticker: PolygonTicker(sym)})
	if err == nil && details != nil {
		if details.Results.Name != "" {
			q.Name = details.Results.Name
		}
		if details.Results.CurrencyName != "" {
			q.Currency = strings.ToUpper(details.Results.CurrencyName)
		}
		q.MarketCap = int64(details.Results.MarketCap)
	}
	return QuoteFound(q)
}

// History lists aggregates for period at interval, oldest first.
func (p *PolygonProvider) History(ctx context.Context, sym string, period Period, interval Interval) HistoryResult {
	now := p.now()
	order := restModels.Asc
	limit := polygonAggLimit
	adjusted := true
	params := restModels.ListAggsParams{
		Ticker:     PolygonTicker(sym),
		From:       restModels.Millis(period.Start(now)),
		To:         restModels.Millis(now),
		Order:      &order,
		Limit:      &limit,
		Adjusted:   &adjusted,
		Timespan:   polygonTimespan(interval),
		Multiplier: 1,
	}

	iter := p.client.ListAggs(ctx, &params)
	var bars []Bar
	for iter.Next() {
		agg := iter.Item()
		date := time.Time(agg.Timestamp).UTC()
		bars = append(bars, Bar{
			Date:     time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
			Open:     decimal.NewFromFloat(agg.Open),
			High:     decimal.NewFromFloat(agg.High),
			Low:      decimal.NewFromFloat(agg.Low),
			Close:    decimal.NewFromFloat(agg.Close),
			AdjClose: decimal.NewFromFloat(agg.Close),
			Volume:   int64(agg.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		if isPolygonNotFound(err) {
			return HistoryNoData(fmt.Sprintf("%s not found", sym))
		}
		return HistoryFailed(fmt.Errorf("listing aggregates: %w", err))
	}
	if len(bars) == 0 {
		return HistoryNoData(fmt.Sprintf("no bars for %s", sym))
	}
	return HistoryFound(bars)
}

// PolygonTicker maps a normalized symbol to Polygon's ticker namespace:
// indices get an "I:" prefix and pairs are treated as crypto ("X:BTCUSD").
func PolygonTicker(sym string) string {
	kind, s, err := symbol.Classify(sym)
	if err != nil {
		return sym
	}
	switch kind {
	case symbol.KindIndex:
		return "I:" + strings.TrimPrefix(s, "^")
	case symbol.KindPair:
		return "X:" + strings.ReplaceAll(s, "-", "")
	default:
		return s
	}
}

func polygonTimespan(interval Interval) restModels.Timespan {
	switch interval {
	case IntervalWeek:
		return restModels.Week
	case IntervalMonth:
		return restModels.Month
	default:
		return restModels.Day
	}
}

func isPolygonNotFound(err error) bool {
	var apiErr *restModels.ErrorResponse
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusNotFound || apiErr.Status == "NOT_FOUND"
}
