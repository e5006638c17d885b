package indicators

import (
	"fmt"
	"strconv"
	"strings"
)

// Name identifies an indicator family.
type Name string

const (
	NameSMA       Name = "sma"
	NameEMA       Name = "ema"
	NameRSI       Name = "rsi"
	NameMACD      Name = "macd"
	NameBollinger Name = "bollinger"
	NameOBV       Name = "obv"

	NameVolumeDelta Name = "volume_delta"
	NameAVSO        Name = "avso"
	NameLRO         Name = "lro"
	NameComposite   Name = "composite"
)

// MaxWindow caps the window accepted for windowed indicators.
const MaxWindow = 500

// Request is one parsed indicator, e.g. sma20 -> {sma, 20}.
type Request struct {
	Name   Name
	Window int
}

// Key is the canonical form used as the response map key.
func (r Request) Key() string {
	switch r.Name {
	case NameMACD, NameBollinger, NameOBV, NameVolumeDelta, NameAVSO, NameLRO, NameComposite:
		return string(r.Name)
	default:
		return fmt.Sprintf("%s%d", r.Name, r.Window)
	}
}

// DefaultRequests is used when no indicators are requested.
var DefaultRequests = []Request{
	{Name: NameSMA, Window: 20},
	{Name: NameSMA, Window: 50},
	{Name: NameRSI, Window: 14},
	{Name: NameMACD},
	{Name: NameBollinger, Window: 20},
}

// Parse reads a comma separated list such as "sma20,ema50,rsi14,macd".
// An empty string yields DefaultRequests. Duplicates are dropped.
func Parse(raw string) ([]Request, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultRequests, nil
	}

	seen := make(map[string]bool)
	var out []Request
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		req, err := parseOne(part)
		if err != nil {
			return nil, err
		}
		if seen[req.Key()] {
			continue
		}
		seen[req.Key()] = true
		out = append(out, req)
	}
	if len(out) == 0 {
		return DefaultRequests, nil
	}
	return out, nil
}

func parseOne(s string) (Request, error) {
	switch s {
	case string(NameMACD):
		return Request{Name: NameMACD}, nil
	case string(NameBollinger), "bb":
		return Request{Name: NameBollinger, Window: 20}, nil
	case string(NameOBV):
		return Request{Name: NameOBV}, nil
	case string(NameVolumeDelta), "vdelta":
		return Request{Name: NameVolumeDelta, Window: DefaultVolumeDeltaWindow}, nil
	case string(NameAVSO):
		return Request{Name: NameAVSO, Window: DefaultAVSOWindow}, nil
	case string(NameLRO):
		return Request{Name: NameLRO, Window: DefaultLROWindow}, nil
	case string(NameComposite):
		return Request{Name: NameComposite}, nil
	}

	for _, name := range []Name{NameSMA, NameEMA, NameRSI} {
		rest, ok := strings.CutPrefix(s, string(name))
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 2 || n > MaxWindow {
			return Request{}, fmt.Errorf("invalid window in indicator %q", s)
		}
		return Request{Name: name, Window: n}, nil
	}
	return Request{}, fmt.Errorf("unknown indicator %q", s)
}

// Compute evaluates one request over bars. Results are a Series or one of
// the *Result types depending on the indicator.
func Compute(req Request, bars Bars) any {
	closes, volumes := bars.Close, bars.Volume
	switch req.Name {
	case NameSMA:
		return SMA(closes, req.Window)
	case NameEMA:
		return EMA(closes, req.Window)
	case NameRSI:
		return RSI(closes, req.Window)
	case NameMACD:
		return MACD(closes, 12, 26, 9)
	case NameBollinger:
		return Bollinger(closes, req.Window, 2)
	case NameOBV:
		return OBV(closes, volumes)
	case NameVolumeDelta:
		return VolumeDelta(bars.Open, closes, volumes, req.Window)
	case NameAVSO:
		return AVSO(closes, req.Window, DefaultAVSOAlpha)
	case NameLRO:
		return LRO(closes, req.Window)
	case NameComposite:
		return Composite(
			VolumeDelta(bars.Open, closes, volumes, DefaultVolumeDeltaWindow),
			AVSO(closes, DefaultAVSOWindow, DefaultAVSOAlpha),
			LRO(closes, DefaultLROWindow),
		)
	}
	return nil
}
