package source

import "math"

// Indicator math over a close-price series. Formulas follow the common
// spreadsheet definitions: rolling-mean RSI, span-weighted EMA, MACD as
// EMA(fast)-EMA(slow) with an EMA signal line, and Bollinger bands at
// mean +/- k sample standard deviations.

func smaLast(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period {
		return 0, false
	}
	sum := 0.0
	for _, v := range series[len(series)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// emaSeries computes the exponentially weighted series with
// alpha = 2/(span+1), seeded at the first sample.
func emaSeries(series []float64, span int) []float64 {
	if span <= 0 || len(series) == 0 {
		return nil
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out := make([]float64, len(series))
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return out
}

func emaLast(series []float64, span int) (float64, bool) {
	out := emaSeries(series, span)
	if out == nil {
		return 0, false
	}
	return out[len(out)-1], true
}

// rsiLast computes the relative strength index over the trailing
// window using simple means of gains and losses.
func rsiLast(series []float64, period int) (float64, bool) {
	if period <= 0 || len(series) < period+1 {
		return 0, false
	}
	gains, losses := 0.0, 0.0
	for i := len(series) - period; i < len(series); i++ {
		delta := series[i] - series[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	if losses == 0 {
		return 100, true
	}
	rs := gains / losses
	return 100 - 100/(1+rs), true
}

// macdLast returns (macd, signal, histogram) for the given periods.
func macdLast(series []float64, fast, slow, signal int) (float64, float64, float64, bool) {
	if len(series) == 0 || fast <= 0 || slow <= 0 || signal <= 0 {
		return 0, 0, 0, false
	}
	fastEMA := emaSeries(series, fast)
	slowEMA := emaSeries(series, slow)
	macd := make([]float64, len(series))
	for i := range series {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signalEMA := emaSeries(macd, signal)
	last := len(series) - 1
	return macd[last], signalEMA[last], macd[last] - signalEMA[last], true
}

// bbandsLast returns (upper, middle, lower) for the trailing window.
func bbandsLast(series []float64, period int, stddev float64) (float64, float64, float64, bool) {
	middle, ok := smaLast(series, period)
	if !ok {
		return 0, 0, 0, false
	}
	window := series[len(series)-period:]
	variance := 0.0
	for _, v := range window {
		d := v - middle
		variance += d * d
	}
	// Sample standard deviation to match the usual rolling-std default.
	if period < 2 {
		return 0, 0, 0, false
	}
	sd := math.Sqrt(variance / float64(period-1))
	return middle + stddev*sd, middle, middle - stddev*sd, true
}
