package indicators

import "math"

// Default windows for the volume and regression indicators.
const (
	DefaultVolumeDeltaWindow = 20
	DefaultAVSOWindow        = 14
	DefaultAVSOAlpha         = 0.1
	DefaultLROWindow         = 30
)

// Bars is an OHLCV column set ordered oldest first. Only the columns an
// indicator reads need to be populated.
type Bars struct {
	Open   []float64
	Close  []float64
	Volume []int64
}

// VolumeDeltaResult splits volume into buying and selling pressure.
type VolumeDeltaResult struct {
	Delta      Series `json:"delta"`
	Cumulative Series `json:"cumulative"`
	Momentum   Series `json:"momentum"`
	Divergence Series `json:"divergence"`
}

// VolumeDelta signs each bar's volume by its direction (close above open is
// buying, below is selling, unchanged is zero). Momentum is the delta minus
// its n-bar mean and divergence is the close's distance from its n-bar mean
// times that momentum.
func VolumeDelta(opens, closes []float64, volumes []int64, n int) VolumeDeltaResult {
	size := min(len(opens), len(closes), len(volumes))
	delta := make(Series, size)
	cum := make(Series, size)
	var running float64
	for i := 0; i < size; i++ {
		switch {
		case closes[i] > opens[i]:
			delta[i] = float64(volumes[i])
		case closes[i] < opens[i]:
			delta[i] = -float64(volumes[i])
		}
		running += delta[i]
		cum[i] = running
	}

	deltaMA := rollingMean(delta, n)
	priceMA := rollingMean(closes[:size], n)
	momentum := nanSeries(size)
	divergence := nanSeries(size)
	for i := 0; i < size; i++ {
		momentum[i] = delta[i] - deltaMA[i]
		divergence[i] = (closes[i] - priceMA[i]) * momentum[i]
	}
	return VolumeDeltaResult{Delta: delta, Cumulative: cum, Momentum: momentum, Divergence: divergence}
}

// AVSOResult is the adaptive volatility scaled oscillator with its
// smoothed line, threshold bands, and signal.
type AVSOResult struct {
	AVSO   Series `json:"avso"`
	MA     Series `json:"ma"`
	Upper  Series `json:"upper"`
	Lower  Series `json:"lower"`
	Signal Series `json:"signal"`
}

// AVSO places each close inside a band of plus or minus one volatility
// around its n-bar mean, where volatility is the sample standard deviation
// of the last n simple returns. 0.5 is the mean, 0 and 1 the band edges.
// The oscillator is smoothed with an adjusted EWM of weight alpha; the
// signal is -1 above MA+2sd, 1 below MA-2sd, and 0 otherwise.
func AVSO(closes []float64, n int, alpha float64) AVSOResult {
	returns := nanSeries(len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns[i] = closes[i]/closes[i-1] - 1
		}
	}
	vol := rollingStd(returns, n)
	mid := rollingMean(closes, n)

	osc := nanSeries(len(closes))
	for i, c := range closes {
		width := 2 * mid[i] * vol[i]
		if math.IsNaN(width) || width == 0 {
			continue
		}
		osc[i] = (c - mid[i]*(1-vol[i])) / width
	}

	ma := ewmAdjusted(osc, alpha)
	upper, lower, signal := thresholdBands(osc, ma, rollingStd(osc, n))
	return AVSOResult{AVSO: osc, MA: ma, Upper: upper, Lower: lower, Signal: signal}
}

// LROResult is the linear regression oscillator over a rolling window.
type LROResult struct {
	LRO    Series `json:"lro"`
	R2     Series `json:"r2"`
	Slope  Series `json:"slope"`
	Upper  Series `json:"upper"`
	Lower  Series `json:"lower"`
	Signal Series `json:"signal"`
}

// LRO fits a least squares line to each n-bar window of closes. The
// oscillator is the last close's relative distance from the fitted value;
// R2 and Slope describe the fit. Bands are the oscillator's mean plus or
// minus two sample deviations over half the window (at least 2 bars), and
// the signal follows the same rule as AVSO.
func LRO(closes []float64, n int) LROResult {
	lro := nanSeries(len(closes))
	r2 := nanSeries(len(closes))
	slope := nanSeries(len(closes))
	if n >= 2 {
		for i := n - 1; i < len(closes); i++ {
			w, ok := window(closes, i, n)
			if !ok {
				continue
			}
			fit := linearFit(w)
			slope[i] = fit.slope
			r2[i] = fit.r2
			if last := fit.at(float64(n - 1)); last != 0 {
				lro[i] = (w[n-1] - last) / last
			}
		}
	}

	m := max(n/2, 2)
	ma := rollingMean(lro, m)
	upper, lower, signal := thresholdBands(lro, ma, rollingStd(lro, m))
	return LROResult{LRO: lro, R2: r2, Slope: slope, Upper: upper, Lower: lower, Signal: signal}
}

// CompositeResult blends the latest volume, AVSO, and LRO readings into one
// signal. Ready is false while any input is still warming up.
type CompositeResult struct {
	Ready          bool    `json:"ready"`
	VolumePressure float64 `json:"volume_pressure"`
	VolumeTrend    float64 `json:"volume_trend"`
	AVSOSignal     float64 `json:"avso_signal"`
	LROSignal      float64 `json:"lro_signal"`
	TrendStrength  float64 `json:"trend_strength"`
	TrendDirection float64 `json:"trend_direction"`
	Score          float64 `json:"score"`
	Signal         float64 `json:"signal"`
	Strength       float64 `json:"strength"`
}

// Composite weights volume pressure 0.3, the AVSO signal 0.3, and the LRO
// signal 0.4. Signal is the sign of the weighted score.
func Composite(vd VolumeDeltaResult, avso AVSOResult, lro LROResult) CompositeResult {
	momentum, ok1 := vd.Momentum.Last()
	avsoSignal, ok2 := avso.Signal.Last()
	lroSignal, ok3 := lro.Signal.Last()
	r2, ok4 := lro.R2.Last()
	slope, ok5 := lro.Slope.Last()
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || len(vd.Cumulative) < 2 {
		return CompositeResult{}
	}

	n := len(vd.Cumulative)
	res := CompositeResult{
		Ready:          true,
		VolumePressure: sign(momentum),
		VolumeTrend:    sign(vd.Cumulative[n-1] - vd.Cumulative[n-2]),
		AVSOSignal:     avsoSignal,
		LROSignal:      lroSignal,
		TrendStrength:  math.Abs(r2),
		TrendDirection: sign(slope),
	}
	res.Score = res.VolumePressure*0.3 + res.AVSOSignal*0.3 + res.LROSignal*0.4
	res.Signal = sign(res.Score)
	res.Strength = math.Abs(res.Score)
	return res
}

type lineFit struct {
	intercept, slope, r2 float64
}

func (f lineFit) at(x float64) float64 { return f.intercept + f.slope*x }

// linearFit regresses ys on 0..len(ys)-1. A flat window is a perfect fit.
func linearFit(ys []float64) lineFit {
	n := float64(len(ys))
	xm := (n - 1) / 2
	ym := mean(ys)
	var sxx, sxy, ssTot float64
	for i, y := range ys {
		dx := float64(i) - xm
		sxx += dx * dx
		sxy += dx * (y - ym)
		ssTot += (y - ym) * (y - ym)
	}
	fit := lineFit{slope: sxy / sxx}
	fit.intercept = ym - fit.slope*xm

	var ssRes float64
	for i, y := range ys {
		r := y - fit.at(float64(i))
		ssRes += r * r
	}
	fit.r2 = 1
	if ssTot != 0 {
		fit.r2 = 1 - ssRes/ssTot
	}
	return fit
}

// thresholdBands returns ma plus and minus two sd and the overbought (-1) /
// oversold (1) / neutral (0) signal of values against them.
func thresholdBands(values, ma, sd Series) (upper, lower, signal Series) {
	upper = nanSeries(len(values))
	lower = nanSeries(len(values))
	signal = nanSeries(len(values))
	for i, v := range values {
		if math.IsNaN(ma[i]) || math.IsNaN(sd[i]) || math.IsNaN(v) {
			continue
		}
		upper[i] = ma[i] + 2*sd[i]
		lower[i] = ma[i] - 2*sd[i]
		switch {
		case v > upper[i]:
			signal[i] = -1
		case v < lower[i]:
			signal[i] = 1
		default:
			signal[i] = 0
		}
	}
	return upper, lower, signal
}

// ewmAdjusted is an exponentially weighted mean with weights (1-alpha)^k
// normalized over the observations seen so far. Positions before the first
// defined value are NaN; later NaNs decay the weights and repeat the mean.
func ewmAdjusted(values []float64, alpha float64) Series {
	out := nanSeries(len(values))
	var num, den float64
	started := false
	for i, v := range values {
		if started {
			num *= 1 - alpha
			den *= 1 - alpha
		}
		if !math.IsNaN(v) {
			num += v
			den++
			started = true
		}
		if started {
			out[i] = num / den
		}
	}
	return out
}

// window returns the n values ending at i when all of them are defined.
func window(values []float64, i, n int) ([]float64, bool) {
	if n <= 0 || i < n-1 || i >= len(values) {
		return nil, false
	}
	w := values[i-n+1 : i+1]
	for _, v := range w {
		if math.IsNaN(v) {
			return nil, false
		}
	}
	return w, true
}

// rollingMean is SMA that tolerates NaN inputs: any window containing NaN
// is undefined.
func rollingMean(values []float64, n int) Series {
	out := nanSeries(len(values))
	for i := range values {
		if w, ok := window(values, i, n); ok {
			out[i] = mean(w)
		}
	}
	return out
}

// rollingStd is the sample standard deviation over n values.
func rollingStd(values []float64, n int) Series {
	out := nanSeries(len(values))
	if n < 2 {
		return out
	}
	for i := range values {
		w, ok := window(values, i, n)
		if !ok {
			continue
		}
		m := mean(w)
		var ss float64
		for _, v := range w {
			ss += (v - m) * (v - m)
		}
		out[i] = math.Sqrt(ss / float64(n-1))
	}
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
