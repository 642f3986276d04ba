package indicator

import "github.com/markcheno/go-talib"

// MaType represents moving average type
type MaType = talib.MaType

// Moving average type constants
const (
	TypeSMA = talib.SMA // Simple Moving Average
	TypeEMA = talib.EMA // Exponential Moving Average
	TypeWMA = talib.WMA // Weighted Moving Average
)

// BB calculates Bollinger Bands around a simple moving average.
// Returns upper, middle, and lower bands with null-leading padding.
func BB(input []float64, period int, deviation float64) ([]float64, []float64, []float64) {
	upper, middle, lower := talib.BBands(input, period, deviation, deviation, TypeSMA)
	return padNull(upper, period-1), padNull(middle, period-1), padNull(lower, period-1)
}

// SMA calculates Simple Moving Average with null-leading padding
func SMA(input []float64, period int) []float64 {
	return padNull(talib.Sma(input, period), period-1)
}

// StdDev calculates the rolling standard deviation with null-leading padding
func StdDev(input []float64, period int, nbDev float64) []float64 {
	return padNull(talib.StdDev(input, period, nbDev), period-1)
}
