package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const (
	yahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart/"
	yahooUA      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"

	// quoteRange is wide enough to derive a three-month average volume.
	quoteRange = Period3Months
)

// yahooChartResponse is the top-level v8 chart API response.
type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type yahooChartResult struct {
	Meta struct {
		Symbol              string  `json:"symbol"`
		Currency            string  `json:"currency"`
		LongName            string  `json:"longName"`
		ShortName           string  `json:"shortName"`
		RegularMarketPrice  float64 `json:"regularMarketPrice"`
		RegularMarketVolume int64   `json:"regularMarketVolume"`
		ChartPreviousClose  float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// YahooProvider fetches quotes and history from the Yahoo Finance chart API.
type YahooProvider struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
}

// NewYahooProvider creates a new Yahoo Finance provider.
func NewYahooProvider(httpClient *http.Client) *YahooProvider {
	return &YahooProvider{httpClient: httpClient, baseURL: yahooBaseURL}
}

// Name returns the provider's display name.
func (p *YahooProvider) Name() string { return "Yahoo Finance" }

// Quote fetches three months of daily bars and derives the latest quote.
func (p *YahooProvider) Quote(ctx context.Context, symbol string) QuoteResult {
	res, kind, err := p.fetchChart(ctx, symbol, quoteRange, IntervalDay)
	switch kind {
	case KindError:
		return QuoteFailed(err)
	case KindNoData:
		return QuoteNoData(err.Error())
	}

	q, ok := summarize(symbol, chartBars(res))
	if res.Meta.RegularMarketPrice > 0 {
		q.Price = decimal.NewFromFloat(res.Meta.RegularMarketPrice)
		ok = true
	}
	if !ok {
		return QuoteNoData(fmt.Sprintf("no price for %s", symbol))
	}
	if res.Meta.RegularMarketVolume > 0 {
		q.Volume = res.Meta.RegularMarketVolume
	}
	if res.Meta.Currency != "" {
		q.Currency = res.Meta.Currency
	}
	switch {
	case res.Meta.LongName != "":
		q.Name = res.Meta.LongName
	case res.Meta.ShortName != "":
		q.Name = res.Meta.ShortName
	}
	return QuoteFound(q)
}

// History fetches bars for period at interval.
func (p *YahooProvider) History(ctx context.Context, symbol string, period Period, interval Interval) HistoryResult {
	res, kind, err := p.fetchChart(ctx, symbol, period, interval)
	switch kind {
	case KindError:
		return HistoryFailed(err)
	case KindNoData:
		return HistoryNoData(err.Error())
	}

	bars := chartBars(res)
	if len(bars) == 0 {
		return HistoryNoData(fmt.Sprintf("no bars for %s", symbol))
	}
	return HistoryFound(bars)
}

// fetchChart performs one chart request. The returned error explains a
// KindNoData or KindError outcome.
func (p *YahooProvider) fetchChart(ctx context.Context, symbol string, period Period, interval Interval) (*yahooChartResult, Kind, error) {
	q := url.Values{}
	q.Set("range", string(period))
	q.Set("interval", string(interval))
	q.Set("includePrePost", "false")
	endpoint := p.baseURL + url.PathEscape(symbol) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, KindError, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", yahooUA)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, KindError, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var chart yahooChartResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&chart)

	if resp.StatusCode == http.StatusNotFound {
		return nil, KindNoData, fmt.Errorf("symbol %s not found", symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, KindError, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, KindError, fmt.Errorf("decoding response: %w", decodeErr)
	}
	if e := chart.Chart.Error; e != nil {
		if e.Code == "Not Found" {
			return nil, KindNoData, fmt.Errorf("%s: %s", symbol, e.Description)
		}
		return nil, KindError, fmt.Errorf("chart error %s: %s", e.Code, e.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, KindNoData, fmt.Errorf("empty chart for %s", symbol)
	}
	return &chart.Chart.Result[0], KindOK, nil
}

// chartBars converts parallel indicator arrays into bars, skipping
// positions where the provider returned nulls. Later bars for the same
// trading day replace earlier ones.
func chartBars(res *yahooChartResult) []Bar {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	quote := res.Indicators.Quote[0]
	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]Bar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		closeV := at(quote.Close, i)
		if closeV == nil {
			continue
		}
		b := Bar{
			Date:  time.Unix(ts, 0).UTC(),
			Close: decimal.NewFromFloat(*closeV),
		}
		b.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
		b.Open = orDefault(at(quote.Open, i), b.Close)
		b.High = orDefault(at(quote.High, i), b.Close)
		b.Low = orDefault(at(quote.Low, i), b.Close)
		b.AdjClose = orDefault(at(adj, i), b.Close)
		if v := at(quote.Volume, i); v != nil {
			b.Volume = int64(*v)
		}

		if n := len(bars); n > 0 && bars[n-1].Date.Equal(b.Date) {
			bars[n-1] = b
			continue
		}
		bars = append(bars, b)
	}
	return bars
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) {
		return nil
	}
	return values[i]
}

func orDefault(v *float64, def decimal.Decimal) decimal.Decimal {
	if v == nil {
		return def
	}
	return decimal.NewFromFloat(*v)
}
