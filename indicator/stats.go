package indicator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Slope calculates the least-squares slope over the last 'lookback' values.
// Returns 0 with insufficient or null-bearing history.
func Slope(values []float64, lookback int) float64 {
	if lookback < 2 || len(values) < lookback {
		return 0
	}

	window := values[len(values)-lookback:]
	xs := make([]float64, 0, lookback)
	ys := make([]float64, 0, lookback)
	for i, v := range window {
		if IsNull(v) {
			return 0
		}
		xs = append(xs, float64(i))
		ys = append(ys, v)
	}

	_, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) {
		return 0
	}
	return beta
}

// PercentileRank returns the empirical percentile (0..100) of value within
// history. Returns null when history is empty.
func PercentileRank(value float64, history []float64) float64 {
	clean := make([]float64, 0, len(history))
	for _, v := range history {
		if !IsNull(v) {
			clean = append(clean, v)
		}
	}
	if len(clean) == 0 {
		return Null
	}
	sort.Float64s(clean)
	return stat.CDF(value, stat.Empirical, clean, nil) * 100
}

// ZScore returns the z-score of the last value against the trailing window.
// Zero standard deviation yields 0.
func ZScore(values []float64, window int) float64 {
	if len(values) < window || window < 2 {
		return 0
	}
	sample := make([]float64, 0, window)
	for _, v := range values[len(values)-window:] {
		if !IsNull(v) {
			sample = append(sample, v)
		}
	}
	if len(sample) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(sample, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return (sample[len(sample)-1] - mean) / std
}

// CompositeADXBB calculates the trend-expansion score
// (ADX[-1] - ADX[-lookback]) * (BBwidth[-1] / mean(BBwidth[-widthPeriod:])).
// Returns 0 when any divisor is 0 or history is insufficient.
func CompositeADXBB(adx, bbWidth []float64, lookback, widthPeriod int) float64 {
	if len(adx) < lookback || len(bbWidth) < widthPeriod || lookback < 1 || widthPeriod < 1 {
		return 0
	}

	adxNow := adx[len(adx)-1]
	adxThen := adx[len(adx)-lookback]
	if IsNull(adxNow) || IsNull(adxThen) {
		return 0
	}

	widths := bbWidth[len(bbWidth)-widthPeriod:]
	sum, count := 0.0, 0
	for _, w := range widths {
		if !IsNull(w) {
			sum += w
			count++
		}
	}
	if count == 0 || sum == 0 {
		return 0
	}
	meanWidth := sum / float64(count)
	widthNow := bbWidth[len(bbWidth)-1]
	if IsNull(widthNow) || meanWidth == 0 {
		return 0
	}

	return (adxNow - adxThen) * (widthNow / meanWidth)
}
