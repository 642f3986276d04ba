// Package indicator provides the pure indicator functions of the decision core.
// Every function is referentially transparent: the same input series always
// produces bit-identical output. Insufficient history yields null-leading
// (NaN) sequences, zero denominators yield 0.
package indicator

import (
	"math"
)

// Null is the missing-value marker used in indicator sequences
var Null = math.NaN()

// IsNull reports whether a value is the missing-value marker
func IsNull(v float64) bool {
	return math.IsNaN(v)
}

// padNull overwrites the first n values of a sequence with the null marker.
// go-talib zero-fills its warmup region, which is indistinguishable from a
// real zero; downstream code needs the distinction.
func padNull(values []float64, n int) []float64 {
	if n > len(values) {
		n = len(values)
	}
	for i := 0; i < n; i++ {
		values[i] = Null
	}
	return values
}

// nulls returns a sequence of n null values
func nulls(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = Null
	}
	return out
}

// EMA calculates an exponential moving average with alpha = 2/(period+1),
// seeded from the first value
func EMA(input []float64, period int) []float64 {
	if len(input) == 0 || period <= 0 {
		return nulls(len(input))
	}

	alpha := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(input))
	out[0] = input[0]
	for i := 1; i < len(input); i++ {
		out[i] = alpha*input[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI calculates Wilder's Relative Strength Index.
// The first 'period' values are null. Constant-price input is defined as 50.
func RSI(input []float64, period int) []float64 {
	out := nulls(len(input))
	if len(input) <= period || period <= 0 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := input[i] - input[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(input); i++ {
		delta := input[i] - input[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgGain+avgLoss == 0 {
		return 50
	}
	return 100 * avgGain / (avgGain + avgLoss)
}

// TrueRange calculates the per-bar true range:
// max(h-l, |h-prevClose|, |l-prevClose|). The first bar uses h-l.
func TrueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		if i == 0 {
			out[i] = high[i] - low[i]
			continue
		}
		tr := high[i] - low[i]
		if v := math.Abs(high[i] - close[i-1]); v > tr {
			tr = v
		}
		if v := math.Abs(low[i] - close[i-1]); v > tr {
			tr = v
		}
		out[i] = tr
	}
	return out
}

// ATR calculates the rolling mean of the true range.
// The first period-1 values are null.
func ATR(high, low, close []float64, period int) []float64 {
	if len(close) < period || period <= 0 {
		return nulls(len(close))
	}
	return SMA(TrueRange(high, low, close), period)
}

// DMI calculates Wilder's directional movement indices.
// Returns +DI, -DI and ADX, where ADX is the rolling mean of
// 100*|+DI - -DI|/(+DI + -DI). Zero denominators yield 0.
func DMI(high, low, close []float64, period int) (plusDI, minusDI, adx []float64) {
	n := len(close)
	plusDI, minusDI, adx = nulls(n), nulls(n), nulls(n)
	if n <= period || period <= 0 {
		return plusDI, minusDI, adx
	}

	tr := TrueRange(high, low, close)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	// Wilder smoothing of DM and TR
	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	dx := nulls(n)
	for i := period; i < n; i++ {
		if i > period {
			smTR = smTR - smTR/float64(period) + tr[i]
			smPlus = smPlus - smPlus/float64(period) + plusDM[i]
			smMinus = smMinus - smMinus/float64(period) + minusDM[i]
		}
		if smTR == 0 {
			plusDI[i], minusDI[i], dx[i] = 0, 0, 0
			continue
		}
		plusDI[i] = 100 * smPlus / smTR
		minusDI[i] = 100 * smMinus / smTR
		if sum := plusDI[i] + minusDI[i]; sum != 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		} else {
			dx[i] = 0
		}
	}

	// ADX: rolling mean of DX once a full window of DX values exists
	for i := 2*period - 1; i < n; i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += dx[j]
		}
		adx[i] = sum / float64(period)
	}
	return plusDI, minusDI, adx
}

// MACD calculates line = EMA(fast) - EMA(slow), signal = EMA(line, signalPeriod)
// and histogram = line - signal
func MACD(input []float64, fast, slow, signal int) (line, signalLine, hist []float64) {
	emaFast := EMA(input, fast)
	emaSlow := EMA(input, slow)

	line = make([]float64, len(input))
	for i := range input {
		line[i] = emaFast[i] - emaSlow[i]
	}
	signalLine = EMA(line, signal)
	hist = make([]float64, len(input))
	for i := range input {
		hist[i] = line[i] - signalLine[i]
	}
	return line, signalLine, hist
}

// Polarity calculates the rolling sum of sign(close delta) divided by the
// period, bounded in [-1, 1]. The first 'period' values are null.
func Polarity(input []float64, period int) []float64 {
	out := nulls(len(input))
	if len(input) <= period || period <= 0 {
		return out
	}
	signs := make([]float64, len(input))
	for i := 1; i < len(input); i++ {
		switch {
		case input[i] > input[i-1]:
			signs[i] = 1
		case input[i] < input[i-1]:
			signs[i] = -1
		}
	}
	for i := period; i < len(input); i++ {
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			sum += signs[j]
		}
		out[i] = sum / float64(period)
	}
	return out
}

// PivotLevels are floor-trader pivots computed from a prior completed
// higher-timeframe candle
type PivotLevels struct {
	Pivot float64
	R1    float64
	S1    float64
	R2    float64
	S2    float64
}

// Pivots calculates floor-trader pivot levels from the given candle values
func Pivots(high, low, close float64) PivotLevels {
	p := (high + low + close) / 3
	return PivotLevels{
		Pivot: p,
		R1:    2*p - low,
		S1:    2*p - high,
		R2:    p + (high - low),
		S2:    p - (high - low),
	}
}

// Levels returns all pivot levels as a slice for proximity checks
func (p PivotLevels) Levels() []float64 {
	return []float64{p.Pivot, p.R1, p.S1, p.R2, p.S2}
}

// NWaveTarget projects the next price objective from the most recent
// completed swing: the prior wave height is added to the latest close in
// the direction of the move. Returns null with insufficient history.
func NWaveTarget(high, low, close []float64, lookback int, up bool) float64 {
	if len(close) < lookback || lookback <= 0 {
		return Null
	}
	hh, ll := high[len(high)-lookback], low[len(low)-lookback]
	for i := len(close) - lookback; i < len(close); i++ {
		if high[i] > hh {
			hh = high[i]
		}
		if low[i] < ll {
			ll = low[i]
		}
	}
	wave := hh - ll
	last := close[len(close)-1]
	if up {
		return last + wave
	}
	return last - wave
}
