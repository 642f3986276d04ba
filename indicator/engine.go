package indicator

import (
	"github.com/hiroq/fxcore/core"
)

// Metadata keys for the enumerated indicator set
const (
	KeyRSI        = "rsi"
	KeyEMAFast    = "ema_fast"
	KeyEMASlow    = "ema_slow"
	KeyEMAMid     = "ema_mid"
	KeyATR        = "atr"
	KeyADX        = "adx"
	KeyPlusDI     = "plus_di"
	KeyMinusDI    = "minus_di"
	KeyBBUpper    = "bb_upper"
	KeyBBMid      = "bb_mid"
	KeyBBLower    = "bb_lower"
	KeyBBWidth    = "bb_width"
	KeyMACD       = "macd"
	KeyMACDSignal = "macd_signal"
	KeyMACDHist   = "macd_hist"
	KeyPolarity   = "polarity"
)

// Params holds the indicator periods used when filling a dataframe
type Params struct {
	RSIPeriod      int
	EMAFastPeriod  int
	EMASlowPeriod  int
	EMAMidPeriod   int
	ATRPeriod      int
	ADXPeriod      int
	BBPeriod       int
	BBStdDev       float64
	MACDFast       int
	MACDSlow       int
	MACDSignal     int
	PolarityPeriod int
}

// DefaultParams returns the standard parameter set
func DefaultParams() Params {
	return Params{
		RSIPeriod:      14,
		EMAFastPeriod:  9,
		EMASlowPeriod:  21,
		EMAMidPeriod:   50,
		ATRPeriod:      14,
		ADXPeriod:      14,
		BBPeriod:       20,
		BBStdDev:       2.0,
		MACDFast:       12,
		MACDSlow:       26,
		MACDSignal:     9,
		PolarityPeriod: 10,
	}
}

// WarmupPeriod returns the candle count needed before all indicators are defined
func (p Params) WarmupPeriod() int {
	warmup := 2 * p.ADXPeriod // ADX needs a DX window on top of the DI warmup
	for _, n := range []int{p.RSIPeriod + 1, p.EMAMidPeriod, p.ATRPeriod, p.BBPeriod, p.MACDSlow + p.MACDSignal, p.PolarityPeriod + 1} {
		if n > warmup {
			warmup = n
		}
	}
	return warmup + 2
}

// Fill computes the enumerated indicator set for a dataframe and attaches
// every sequence to the frame's metadata, aligned with the candles
func Fill(df *core.Dataframe, p Params) {
	if df == nil || df.Len() == 0 {
		return
	}
	if df.Metadata == nil {
		df.Metadata = make(map[string]core.Series[float64])
	}

	closes := df.Close.Values()
	highs := df.High.Values()
	lows := df.Low.Values()

	df.Metadata[KeyRSI] = RSI(closes, p.RSIPeriod)
	df.Metadata[KeyEMAFast] = EMA(closes, p.EMAFastPeriod)
	df.Metadata[KeyEMASlow] = EMA(closes, p.EMASlowPeriod)
	df.Metadata[KeyEMAMid] = EMA(closes, p.EMAMidPeriod)
	df.Metadata[KeyATR] = ATR(highs, lows, closes, p.ATRPeriod)

	plusDI, minusDI, adx := DMI(highs, lows, closes, p.ADXPeriod)
	df.Metadata[KeyPlusDI] = plusDI
	df.Metadata[KeyMinusDI] = minusDI
	df.Metadata[KeyADX] = adx

	upper, middle, lower := BB(closes, p.BBPeriod, p.BBStdDev)
	df.Metadata[KeyBBUpper] = upper
	df.Metadata[KeyBBMid] = middle
	df.Metadata[KeyBBLower] = lower

	width := make([]float64, len(closes))
	for i := range closes {
		if IsNull(upper[i]) || IsNull(lower[i]) {
			width[i] = Null
			continue
		}
		width[i] = upper[i] - lower[i]
	}
	df.Metadata[KeyBBWidth] = width

	line, signal, hist := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	df.Metadata[KeyMACD] = line
	df.Metadata[KeyMACDSignal] = signal
	df.Metadata[KeyMACDHist] = hist

	df.Metadata[KeyPolarity] = Polarity(closes, p.PolarityPeriod)
}

// Latest returns the most recent value of a metadata series, or null when
// the series is absent or empty
func Latest(df *core.Dataframe, key string) float64 {
	if df == nil || df.Metadata == nil {
		return Null
	}
	series, ok := df.Metadata[key]
	if !ok || series.Length() == 0 {
		return Null
	}
	return series.Last(0)
}

// At returns the value 'position' bars back from the end of a metadata
// series, or null when out of range
func At(df *core.Dataframe, key string, position int) float64 {
	if df == nil || df.Metadata == nil {
		return Null
	}
	series, ok := df.Metadata[key]
	if !ok || series.Length() <= position {
		return Null
	}
	return series.Last(position)
}

// FillGaps forward-fills then back-fills null values across a sequence.
// Used only during aggregation; indicator outputs themselves keep their
// null-leading shape.
func FillGaps(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)

	last := Null
	for i := 0; i < len(out); i++ {
		if IsNull(out[i]) {
			out[i] = last
		} else {
			last = out[i]
		}
	}
	last = Null
	for i := len(out) - 1; i >= 0; i-- {
		if IsNull(out[i]) {
			out[i] = last
		} else {
			last = out[i]
		}
	}
	return out
}
