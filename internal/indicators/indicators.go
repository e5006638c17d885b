// Package indicators computes technical indicators over close series.
//
// Every function returns a Series aligned to its input: position i holds the
// indicator value for bar i, or NaN while the window is still warming up.
package indicators

import (
	"encoding/json"
	"math"
	"strconv"
)

// Series is an indicator output aligned to the input bars.
type Series []float64

// MarshalJSON encodes NaN and infinities as null.
func (s Series) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(s))
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		rounded := round(v, 4)
		out[i] = &rounded
	}
	return json.Marshal(out)
}

// Last returns the most recent value and whether it is defined.
func (s Series) Last() (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	v := s[len(s)-1]
	return v, !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nanSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// SMA is the simple moving average over window n.
func SMA(values []float64, n int) Series {
	out := nanSeries(len(values))
	if n <= 0 {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= n {
			sum -= values[i-n]
		}
		if i >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// EMA is the exponential moving average with span smoothing
// (alpha = 2/(span+1)), seeded with the first value and without bias
// adjustment.
func EMA(values []float64, span int) Series {
	out := nanSeries(len(values))
	if span <= 0 || len(values) == 0 {
		return out
	}
	alpha := 2 / (float64(span) + 1)
	prev := math.NaN()
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = prev
			continue
		case math.IsNaN(prev):
			prev = v
		default:
			prev = alpha*v + (1-alpha)*prev
		}
		out[i] = prev
	}
	return out
}

// RSI is the relative strength index using rolling mean gains and losses
// over n price changes. The first n positions are undefined.
func RSI(values []float64, n int) Series {
	out := nanSeries(len(values))
	if n <= 0 || len(values) <= n {
		return out
	}
	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gains[i] = d
		} else {
			losses[i] = -d
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(values); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > n {
			gainSum -= gains[i-n]
			lossSum -= losses[i-n]
		}
		if i < n {
			continue
		}
		switch {
		case lossSum == 0 && gainSum == 0:
			out[i] = math.NaN()
		case lossSum == 0:
			out[i] = 100
		default:
			rs := gainSum / lossSum
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// MACDResult holds the three MACD lines.
type MACDResult struct {
	MACD      Series `json:"macd"`
	Signal    Series `json:"signal"`
	Histogram Series `json:"histogram"`
}

// MACD computes fast EMA minus slow EMA, its signal EMA, and the histogram.
func MACD(values []float64, fast, slow, signal int) MACDResult {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)
	line := make(Series, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EMA(line, signal)
	hist := make(Series, len(values))
	for i := range values {
		hist[i] = line[i] - sig[i]
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}

// BollingerResult holds the three bands.
type BollingerResult struct {
	Upper  Series `json:"upper"`
	Middle Series `json:"middle"`
	Lower  Series `json:"lower"`
}

// Bollinger computes an n-period SMA with bands k sample standard
// deviations above and below.
func Bollinger(values []float64, n int, k float64) BollingerResult {
	mid := SMA(values, n)
	upper := nanSeries(len(values))
	lower := nanSeries(len(values))
	if n < 2 {
		return BollingerResult{Upper: upper, Middle: mid, Lower: lower}
	}
	for i := n - 1; i < len(values); i++ {
		mean := mid[i]
		var ss float64
		for _, v := range values[i-n+1 : i+1] {
			ss += (v - mean) * (v - mean)
		}
		sd := math.Sqrt(ss / float64(n-1))
		upper[i] = mean + k*sd
		lower[i] = mean - k*sd
	}
	return BollingerResult{Upper: upper, Middle: mid, Lower: lower}
}

// OBV is on-balance volume: volume added on up closes and subtracted on
// down closes, starting from zero.
func OBV(closes []float64, volumes []int64) Series {
	out := make(Series, len(closes))
	for i := 1; i < len(closes) && i < len(volumes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + float64(volumes[i])
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - float64(volumes[i])
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

func round(v float64, places int) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	return f
}
