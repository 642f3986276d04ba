package core

import (
	"time"
)

// Dataframe is a time series container for OHLCV and computed indicator data
type Dataframe struct {
	Instrument string
	Timeframe  Timeframe

	Close  Series[float64]
	Open   Series[float64]
	High   Series[float64]
	Low    Series[float64]
	Volume Series[float64]

	Time       []time.Time
	LastUpdate time.Time

	// Named indicator series aligned one-to-one with the candles
	Metadata map[string]Series[float64]
}

// NewDataframe creates an empty dataframe for an instrument and timeframe
func NewDataframe(instrument string, tf Timeframe) *Dataframe {
	return &Dataframe{
		Instrument: instrument,
		Timeframe:  tf,
		Metadata:   make(map[string]Series[float64]),
	}
}

// Len returns the number of candles held by the dataframe
func (df Dataframe) Len() int {
	return len(df.Time)
}

// Update appends a candle or replaces the last one when the timestamp matches.
// Incomplete candles are ignored unless allowIncomplete is set.
func (df *Dataframe) Update(c Candle, allowIncomplete bool) {
	if !c.Complete && !allowIncomplete {
		return
	}

	last := len(df.Time) - 1
	if last >= 0 && c.Time.Equal(df.Time[last]) {
		df.Open[last] = c.Open
		df.High[last] = c.High
		df.Low[last] = c.Low
		df.Close[last] = c.Close
		df.Volume[last] = c.Volume
		df.LastUpdate = c.UpdatedAt
		return
	}

	// Late candles are dropped, time must be non-decreasing
	if last >= 0 && c.Time.Before(df.Time[last]) {
		return
	}

	df.Open = append(df.Open, c.Open)
	df.High = append(df.High, c.High)
	df.Low = append(df.Low, c.Low)
	df.Close = append(df.Close, c.Close)
	df.Volume = append(df.Volume, c.Volume)
	df.Time = append(df.Time, c.Time)
	df.LastUpdate = c.UpdatedAt
}

// Trim drops candles beyond the retention limit, keeping the most recent ones
func (df *Dataframe) Trim(retain int) {
	size := len(df.Time)
	if retain <= 0 || size <= retain {
		return
	}
	start := size - retain

	df.Open = df.Open[start:]
	df.High = df.High[start:]
	df.Low = df.Low[start:]
	df.Close = df.Close[start:]
	df.Volume = df.Volume[start:]
	df.Time = df.Time[start:]
	for key := range df.Metadata {
		if len(df.Metadata[key]) > retain {
			df.Metadata[key] = df.Metadata[key][len(df.Metadata[key])-retain:]
		}
	}
}

// LastCandle rebuilds the most recent candle from the series
func (df Dataframe) LastCandle() Candle {
	last := len(df.Time) - 1
	if last < 0 {
		return Candle{}
	}
	return Candle{
		Instrument: df.Instrument,
		Time:       df.Time[last],
		UpdatedAt:  df.LastUpdate,
		Open:       df.Open[last],
		High:       df.High[last],
		Low:        df.Low[last],
		Close:      df.Close[last],
		Volume:     df.Volume[last],
		Complete:   true,
	}
}

// CandleAt rebuilds the candle 'position' steps back from the most recent
func (df Dataframe) CandleAt(position int) Candle {
	idx := len(df.Time) - 1 - position
	if idx < 0 {
		return Candle{}
	}
	return Candle{
		Instrument: df.Instrument,
		Time:       df.Time[idx],
		UpdatedAt:  df.LastUpdate,
		Open:       df.Open[idx],
		High:       df.High[idx],
		Low:        df.Low[idx],
		Close:      df.Close[idx],
		Volume:     df.Volume[idx],
		Complete:   true,
	}
}

// Sample returns a subset of the dataframe with the last 'positions' elements
// Used for windowing operations on a dataframe
func (df Dataframe) Sample(positions int) Dataframe {
	size := len(df.Time)
	start := size - positions

	// Return the entire dataframe if requested sample is larger than dataframe
	if start <= 0 {
		return df
	}

	sample := Dataframe{
		Instrument: df.Instrument,
		Timeframe:  df.Timeframe,
		Close:      df.Close.LastValues(positions),
		Open:       df.Open.LastValues(positions),
		High:       df.High.LastValues(positions),
		Low:        df.Low.LastValues(positions),
		Volume:     df.Volume.LastValues(positions),
		Time:       df.Time[start:],
		LastUpdate: df.LastUpdate,
		Metadata:   make(map[string]Series[float64]),
	}

	// Also copy metadata series
	for key := range df.Metadata {
		sample.Metadata[key] = df.Metadata[key].LastValues(positions)
	}

	return sample
}

// MarketContext bundles everything the decision pipeline needs for one tick
type MarketContext struct {
	Instrument string
	Frames     map[Timeframe]*Dataframe
	Tick       Tick
	SpreadPips float64
	Account    Account
	Now        time.Time
}

// Frame returns the dataframe for a timeframe, or nil when absent
func (m *MarketContext) Frame(tf Timeframe) *Dataframe {
	if m.Frames == nil {
		return nil
	}
	return m.Frames[tf]
}
