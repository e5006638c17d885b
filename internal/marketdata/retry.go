package marketdata

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RetryingProvider retries KindError results with exponential backoff.
// KindNoData is a definitive answer and is returned immediately.
type RetryingProvider struct {
	next       Provider
	maxRetries uint64
	initial    time.Duration
	log        *zap.SugaredLogger
}

// WithRetry decorates p so failed calls are retried up to maxRetries times.
func WithRetry(p Provider, maxRetries int, initial time.Duration, log *zap.SugaredLogger) *RetryingProvider {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingProvider{next: p, maxRetries: uint64(maxRetries), initial: initial, log: log}
}

// Name returns the wrapped provider's name.
func (r *RetryingProvider) Name() string { return r.next.Name() }

// Quote calls the wrapped provider, retrying failures.
func (r *RetryingProvider) Quote(ctx context.Context, symbol string) QuoteResult {
	var res QuoteResult
	r.retry(ctx, "quote", symbol, func() error {
		res = r.next.Quote(ctx, symbol)
		if res.Kind == KindError {
			return res.Err
		}
		return nil
	})
	return res
}

// History calls the wrapped provider, retrying failures.
func (r *RetryingProvider) History(ctx context.Context, symbol string, period Period, interval Interval) HistoryResult {
	var res HistoryResult
	r.retry(ctx, "history", symbol, func() error {
		res = r.next.History(ctx, symbol, period, interval)
		if res.Kind == KindError {
			return res.Err
		}
		return nil
	})
	return res
}

// retry runs op under the backoff policy. The last result captured by op is
// what the caller returns, so the error from RetryNotify is not needed.
func (r *RetryingProvider) retry(ctx context.Context, call, symbol string, op func() error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.initial
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(eb, r.maxRetries), ctx)
	_ = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		if r.log != nil {
			r.log.Warnw("provider call failed, retrying",
				"provider", r.next.Name(),
				"call", call,
				"symbol", symbol,
				"error", err,
				"wait", wait.String(),
			)
		}
	})
}
