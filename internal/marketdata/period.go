package marketdata

import (
	"fmt"
	"time"
)

// Period is a lookback window such as "1mo" or "1y".
type Period string

// Supported periods.
const (
	Period5Days    Period = "5d"
	PeriodMonth    Period = "1mo"
	Period3Months  Period = "3mo"
	Period6Months  Period = "6mo"
	PeriodYear     Period = "1y"
	Period2Years   Period = "2y"
	Period5Years   Period = "5y"
	Period10Years  Period = "10y"
	PeriodYTD      Period = "ytd"
	PeriodMax      Period = "max"
	DefaultPeriod         = PeriodMonth
	DefaultBackfill       = PeriodYear
)

// Interval is the bar size.
type Interval string

// Supported intervals.
const (
	IntervalDay   Interval = "1d"
	IntervalWeek  Interval = "1wk"
	IntervalMonth Interval = "1mo"
)

// ParsePeriod validates a period string.
func ParsePeriod(s string) (Period, error) {
	p := Period(s)
	switch p {
	case Period5Days, PeriodMonth, Period3Months, Period6Months, PeriodYear,
		Period2Years, Period5Years, Period10Years, PeriodYTD, PeriodMax:
		return p, nil
	}
	return "", fmt.Errorf("unsupported period %q", s)
}

// ParseInterval validates an interval string.
func ParseInterval(s string) (Interval, error) {
	i := Interval(s)
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth:
		return i, nil
	}
	return "", fmt.Errorf("unsupported interval %q", s)
}

// Start returns the first instant covered by the period ending at now.
// "max" reaches back to 1970.
func (p Period) Start(now time.Time) time.Time {
	now = now.UTC()
	switch p {
	case Period5Days:
		return now.AddDate(0, 0, -5)
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	case Period3Months:
		return now.AddDate(0, -3, 0)
	case Period6Months:
		return now.AddDate(0, -6, 0)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	case Period2Years:
		return now.AddDate(-2, 0, 0)
	case Period5Years:
		return now.AddDate(-5, 0, 0)
	case Period10Years:
		return now.AddDate(-10, 0, 0)
	case PeriodYTD:
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Unix(0, 0).UTC()
	}
}
