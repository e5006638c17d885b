package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

// scriptedProvider returns queued results in order, repeating the last.
type scriptedProvider struct {
	quotes  []QuoteResult
	history []HistoryResult
	qCalls  int
	hCalls  int
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Quote(context.Context, string) QuoteResult {
	i := min(s.qCalls, len(s.quotes)-1)
	s.qCalls++
	return s.quotes[i]
}

func (s *scriptedProvider) History(context.Context, string, Period, Interval) HistoryResult {
	i := min(s.hCalls, len(s.history)-1)
	s.hCalls++
	return s.history[i]
}

var _ Provider = (*scriptedProvider)(nil)

func TestWithRetry(t *testing.T) {
	boom := errors.New("connection reset")
	ok := QuoteFound(Quote{Symbol: "AAPL", Price: decimal.NewFromInt(1)})

	t.Run("recovers_after_transient_errors", func(t *testing.T) {
		inner := &scriptedProvider{quotes: []QuoteResult{QuoteFailed(boom), QuoteFailed(boom), ok}}
		p := WithRetry(inner, 3, time.Millisecond, nil)

		res := p.Quote(context.Background(), "AAPL")
		assert.Equal(t, KindOK, res.Kind)
		assert.Equal(t, 3, inner.qCalls)
	})

	t.Run("gives_up_after_max_retries", func(t *testing.T) {
		inner := &scriptedProvider{quotes: []QuoteResult{QuoteFailed(boom)}}
		p := WithRetry(inner, 2, time.Millisecond, nil)

		res := p.Quote(context.Background(), "AAPL")
		assert.Equal(t, KindError, res.Kind)
		assert.Equal(t, 3, inner.qCalls)
	})

	t.Run("no_data_is_not_retried", func(t *testing.T) {
		inner := &scriptedProvider{history: []HistoryResult{HistoryNoData("delisted")}}
		p := WithRetry(inner, 5, time.Millisecond, nil)

		res := p.History(context.Background(), "AAPL", PeriodMonth, IntervalDay)
		assert.Equal(t, KindNoData, res.Kind)
		assert.Equal(t, 1, inner.hCalls)
	})

	t.Run("zero_retries_calls_once", func(t *testing.T) {
		inner := &scriptedProvider{quotes: []QuoteResult{QuoteFailed(boom)}}
		p := WithRetry(inner, 0, time.Millisecond, nil)

		p.Quote(context.Background(), "AAPL")
		assert.Equal(t, 1, inner.qCalls)
	})
}

func TestParsePeriod(t *testing.T) {
	for _, s := range []string{"5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"} {
		_, err := ParsePeriod(s)
		assert.NoError(t, err, s)
	}
	for _, s := range []string{"", "1w", "7d", "forever"} {
		_, err := ParsePeriod(s)
		assert.Error(t, err, s)
	}
}

func TestPeriod_Start(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC), PeriodMonth.Start(now))
	assert.Equal(t, time.Date(2023, 3, 31, 12, 0, 0, 0, time.UTC), PeriodYear.Start(now))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), PeriodYTD.Start(now))
	assert.Equal(t, int64(0), PeriodMax.Start(now).Unix())
}

func TestSummarize(t *testing.T) {
	bars := []Bar{
		{Close: decimal.NewFromInt(10), Volume: 100},
		{Close: decimal.Zero, Volume: 999},
		{Close: decimal.NewFromInt(12), Volume: 300},
	}
	q, ok := summarize("X", bars)
	assert.True(t, ok)
	assert.Equal(t, "12", q.Price.String())
	assert.Equal(t, "10", q.PreviousClose.String())
	assert.Equal(t, int64(200), q.AvgVolume)

	_, ok = summarize("X", nil)
	assert.False(t, ok)
}
