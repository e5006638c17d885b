package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	aggsAAPL = `{"ticker":"AAPL","status":"OK","queryCount":2,"resultsCount":2,"adjusted":true,"results":[` +
		`{"o":179.5,"h":181,"l":178,"c":180,"v":1000,"t":1709510400000},` +
		`{"o":181,"h":188,"l":180.5,"c":187.25,"v":3000,"t":1709596800000}]}`
	detailsAAPL = `{"status":"OK","results":{"ticker":"AAPL","name":"Apple Inc.","currency_name":"usd","market_cap":2900000000000}}`
	notFound    = `{"status":"NOT_FOUND","request_id":"req-1","error":"ticker not found"}`
)

// newPolygonServer points a provider at a local server. routes maps a path
// prefix to a status and body; unmatched paths get 404.
func newPolygonServer(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*PolygonProvider, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		for prefix, handle := range routes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				handle(w)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(notFound))
	}))
	t.Cleanup(srv.Close)

	p := NewPolygonProvider("test-key", time.Second)
	p.client.HTTP.SetBaseURL(srv.URL)
	p.now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) }
	return p, &paths
}

func respond(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestPolygonProvider_History(t *testing.T) {
	t.Run("maps_aggregates_to_daily_bars", func(t *testing.T) {
		p, paths := newPolygonServer(t, map[string]func(http.ResponseWriter){
			"/v2/aggs/ticker/AAPL/range/1/day/": respond(http.StatusOK, aggsAAPL),
		})

		res := p.History(context.Background(), "AAPL", PeriodMonth, IntervalDay)
		require.Equal(t, KindOK, res.Kind, res.Reason)
		require.Len(t, res.Bars, 2)
		assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), res.Bars[0].Date)
		assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), res.Bars[1].Date)
		assert.Equal(t, "179.5", res.Bars[0].Open.String())
		assert.Equal(t, "187.25", res.Bars[1].Close.String())
		assert.Equal(t, "187.25", res.Bars[1].AdjClose.String())
		assert.Equal(t, int64(3000), res.Bars[1].Volume)
		require.Len(t, *paths, 1)
	})

	t.Run("weekly_interval_uses_week_timespan", func(t *testing.T) {
		p, paths := newPolygonServer(t, map[string]func(http.ResponseWriter){
			"/v2/aggs/ticker/AAPL/range/1/week/": respond(http.StatusOK, aggsAAPL),
		})

		res := p.History(context.Background(), "AAPL", PeriodYear, IntervalWeek)
		assert.Equal(t, KindOK, res.Kind, res.Reason)
		require.Len(t, *paths, 1)
	})

	t.Run("not_found_is_no_data", func(t *testing.T) {
		p, _ := newPolygonServer(t, nil)

		res := p.History(context.Background(), "ZZZZ", PeriodMonth, IntervalDay)
		assert.Equal(t, KindNoData, res.Kind)
		assert.NoError(t, res.Err)
	})

	t.Run("empty_results_is_no_data", func(t *testing.T) {
		p, _ := newPolygonServer(t, map[string]func(http.ResponseWriter){
			"/v2/aggs/": respond(http.StatusOK, `{"ticker":"AAPL","status":"OK","resultsCount":0,"results":[]}`),
		})

		res := p.History(context.Background(), "AAPL", PeriodMonth, IntervalDay)
		assert.Equal(t, KindNoData, res.Kind)
	})

	t.Run("server_error_is_error", func(t *testing.T) {
		p, _ := newPolygonServer(t, map[string]func(http.ResponseWriter){
			"/v2/aggs/": respond(http.StatusInternalServerError, `{"status":"ERROR","error":"upstream unavailable"}`),
		})

		res := p.History(context.Background(), "AAPL", PeriodMonth, IntervalDay)
		assert.Equal(t, KindError, res.Kind)
		assert.Error(t, res.Err)
	})
}

func TestPolygonProvider_Quote(t *testing.T) {
	t.Run("found_with_details", func(t *testing.T) {
		p, paths := newPolygonServer(t, map[string]func(http.ResponseWriter){
			"/v2/aggs/ticker/AAPL/":       respond(http.StatusOK, aggsAAPL),
			"/v3/reference/tickers/AAPL": respond(http.StatusOK, detailsAAPL),
		})

		res := p.Quote(context.Background(), "AAPL")
		require.Equal(t, KindOK, res.Kind, res.Reason)
		assert.Equal(t, "187.25", res.Quote.Price.String())
		assert.Equal(t, "180", res.Quote.PreviousClose.String())
		assert.Equal(t, "Apple Inc.", res.Quote.Name)
		assert.Equal(t, "USD", res.Quote.Currency)
		assert.Equal(t, int64(2900000000000), res.Quote.MarketCap)
		assert.Equal(t, int64(3000), res.Quote.Volume)
		assert.Equal(t, int64(2000), res.Quote.AvgVolume)
		assert.Len(t, *paths, 2)
	})

	t.Run("missing_details_keep_defaults", func(t *testing.T) {
		p, _ := newPolygonServer(t, map[string]func(http.ResponseWriter){
			"/v2/aggs/ticker/AAPL/": respond(http.StatusOK, aggsAAPL),
		})

		res := p.Quote(context.Background(), "AAPL")
		require.Equal(t, KindOK, res.Kind, res.Reason)
		assert.Equal(t, "AAPL", res.Quote.Name)
		assert.Equal(t, "USD", res.Quote.Currency)
		assert.Zero(t, res.Quote.MarketCap)
	})

	t.Run("unknown_ticker_is_no_data", func(t *testing.T) {
		p, paths := newPolygonServer(t, nil)

		res := p.Quote(context.Background(), "ZZZZ")
		assert.Equal(t, KindNoData, res.Kind)
		assert.Len(t, *paths, 1)
	})

	t.Run("rate_limited_is_error", func(t *testing.T) {
		p, _ := newPolygonServer(t, map[string]func(http.ResponseWriter){
			"/v2/aggs/": respond(http.StatusTooManyRequests, `{"status":"ERROR","error":"exceeded the maximum requests per minute"}`),
		})

		res := p.Quote(context.Background(), "AAPL")
		assert.Equal(t, KindError, res.Kind)
		assert.Error(t, res.Err)
	})
}

func TestPolygonTicker(t *testing.T) {
	assert.Equal(t, "AAPL", PolygonTicker("aapl"))
	assert.Equal(t, "I:GSPC", PolygonTicker("^GSPC"))
	assert.Equal(t, "X:BTCUSD", PolygonTicker("BTC-USD"))
	assert.Equal(t, "CL=F", PolygonTicker("CL=F"))
}
