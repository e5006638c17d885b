// Package schedule runs periodic jobs, optionally restricted to US market hours.
package schedule

import (
	"context"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
)

const (
	marketOpenMinutes  = 9 * 60     // 09:00
	marketCloseMinutes = 16*60 + 30 // 16:30
)

var newYork = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// IsMarketHours reports whether t falls within Mon-Fri 09:00-16:30
// America/New_York. Exchange holidays are not considered.
func IsMarketHours(t time.Time) bool {
	local := t.In(newYork)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	minutes := local.Hour()*60 + local.Minute()
	return minutes >= marketOpenMinutes && minutes < marketCloseMinutes
}

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Runner invokes a Job on a fixed interval until its context is cancelled.
type Runner struct {
	Interval    time.Duration
	MarketHours bool

	log *zap.SugaredLogger
	now func() time.Time
}

// NewRunner creates a runner. When marketHours is set, ticks outside
// IsMarketHours are skipped.
func NewRunner(interval time.Duration, marketHours bool, log *zap.SugaredLogger) *Runner {
	return &Runner{
		Interval:    interval,
		MarketHours: marketHours,
		log:         log,
		now:         time.Now,
	}
}

// Run executes job immediately and then on every tick. Job errors are
// logged and do not stop the loop. Returns ctx.Err() when cancelled.
func (r *Runner) Run(ctx context.Context, job Job) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.tick(ctx, job)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx, job)
		}
	}
}

func (r *Runner) tick(ctx context.Context, job Job) {
	if r.MarketHours && !IsMarketHours(r.now()) {
		r.log.Debugw("Outside market hours, skipping run")
		return
	}
	if err := job(ctx); err != nil {
		r.log.Errorw("Scheduled run failed", "error", err)
	}
}
