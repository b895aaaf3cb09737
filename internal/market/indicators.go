package market

import "math"

// Rolling indicator computations over an ascending daily price series, with
// the standard parameterizations: SMA windows 5/20/60, Wilder RSI 14, MACD
// 12/26/9, Bollinger bands 20-day 2 sigma, stochastic 14/3. Each returns nil
// when the series is too short for the window; callers omit nil indicators
// instead of indexing zeros.

const (
	macdFastSpan   = 12
	macdSlowSpan   = 26
	macdSignalSpan = 9

	bollingerWindow = 20
	stochWindow     = 14
	stochSmooth     = 3
)

func latestSMA(closes []float64, window int) *float64 {
	if len(closes) < window {
		return nil
	}
	var sum float64
	for _, v := range closes[len(closes)-window:] {
		sum += v
	}
	mean := sum / float64(window)
	return &mean
}

// latestRSI uses Wilder smoothing: a simple average over the first window of
// gains and losses, then exponential updates across the rest of the series.
func latestRSI(closes []float64, window int) *float64 {
	if len(closes) < window+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= window; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(window)
	avgLoss /= float64(window)

	for i := window + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(window-1) + gain) / float64(window)
		avgLoss = (avgLoss*float64(window-1) + loss) / float64(window)
	}

	if avgLoss == 0 {
		v := 100.0
		return &v
	}
	v := 100 - 100/(1+avgGain/avgLoss)
	return &v
}

// emaSeries is the adjust=false recursion: seeded with the first value,
// alpha = 2/(span+1).
func emaSeries(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	alpha := 2 / float64(span+1)
	for i, v := range values {
		if i == 0 {
			out[0] = v
			continue
		}
		out[i] = alpha*v + (1-alpha)*out[i-1]
	}
	return out
}

func latestMACD(closes []float64) (macd, signal *float64) {
	if len(closes) < macdSlowSpan+macdSignalSpan {
		return nil, nil
	}
	fast := emaSeries(closes, macdFastSpan)
	slow := emaSeries(closes, macdSlowSpan)
	line := make([]float64, len(closes))
	for i := range line {
		line[i] = fast[i] - slow[i]
	}
	sig := emaSeries(line, macdSignalSpan)

	m, s := line[len(line)-1], sig[len(sig)-1]
	return &m, &s
}

func latestBollinger(closes []float64) (high, low *float64) {
	mid := latestSMA(closes, bollingerWindow)
	if mid == nil {
		return nil, nil
	}
	var variance float64
	for _, v := range closes[len(closes)-bollingerWindow:] {
		d := v - *mid
		variance += d * d
	}
	sd := math.Sqrt(variance / bollingerWindow)

	h, l := *mid+2*sd, *mid-2*sd
	return &h, &l
}

// latestStochastic returns raw %K over the last window and %D as its 3-day
// simple average. A flat window (high == low) maps to 50.
func latestStochastic(highs, lows, closes []float64) (k, d *float64) {
	if len(closes) < stochWindow+stochSmooth-1 ||
		len(highs) != len(closes) || len(lows) != len(closes) {
		return nil, nil
	}

	raw := func(end int) float64 {
		hi, lo := highs[end-stochWindow+1], lows[end-stochWindow+1]
		for i := end - stochWindow + 2; i <= end; i++ {
			hi = math.Max(hi, highs[i])
			lo = math.Min(lo, lows[i])
		}
		if hi == lo {
			return 50
		}
		return 100 * (closes[end] - lo) / (hi - lo)
	}

	last := len(closes) - 1
	kv := raw(last)
	dv := (raw(last) + raw(last-1) + raw(last-2)) / stochSmooth
	return &kv, &dv
}
