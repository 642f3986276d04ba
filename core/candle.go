package core

import (
	"fmt"
	"strconv"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
)

// Timeframe identifies a candle aggregation period
type Timeframe string

// Supported timeframes
const (
	TimeframeM1  Timeframe = "1m"
	TimeframeM5  Timeframe = "5m"
	TimeframeM15 Timeframe = "15m"
	TimeframeH1  Timeframe = "1h"
	TimeframeH4  Timeframe = "4h"
	TimeframeD1  Timeframe = "1d"
)

// Duration converts the timeframe to its wall-clock duration
func (tf Timeframe) Duration() (time.Duration, error) {
	d, err := str2duration.ParseDuration(string(tf))
	if err != nil {
		return 0, fmt.Errorf("invalid timeframe %q: %w", tf, err)
	}
	return d, nil
}

// Candle represents a trading candle with OHLCV data
type Candle struct {
	Instrument string
	Time       time.Time
	UpdatedAt  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	Complete   bool
}

// Validate checks the OHLC ordering invariant: low <= min(open,close) <= max(open,close) <= high
func (c Candle) Validate() error {
	lo, hi := c.Open, c.Close
	if lo > hi {
		lo, hi = hi, lo
	}
	if c.Low > lo || c.High < hi {
		return fmt.Errorf("%w: o=%v h=%v l=%v c=%v", ErrMalformedCandle, c.Open, c.High, c.Low, c.Close)
	}
	return nil
}

// IsEmpty checks if the candle contains no significant data
func (c Candle) IsEmpty() bool {
	return c.Instrument == "" && c.Close == 0 && c.Open == 0 && c.Volume == 0
}

// Body returns the absolute size of the candle body
func (c Candle) Body() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// UpperWick returns the length of the upper shadow
func (c Candle) UpperWick() float64 {
	if c.Close >= c.Open {
		return c.High - c.Close
	}
	return c.High - c.Open
}

// LowerWick returns the length of the lower shadow
func (c Candle) LowerWick() float64 {
	if c.Close >= c.Open {
		return c.Open - c.Low
	}
	return c.Close - c.Low
}

// ToSlice converts a candle to a string slice for serialization
// with the specified decimal precision
func (c Candle) ToSlice(precision int) []string {
	return []string{
		fmt.Sprintf("%d", c.Time.Unix()),
		strconv.FormatFloat(c.Open, 'f', precision, 64),
		strconv.FormatFloat(c.Close, 'f', precision, 64),
		strconv.FormatFloat(c.Low, 'f', precision, 64),
		strconv.FormatFloat(c.High, 'f', precision, 64),
		strconv.FormatFloat(c.Volume, 'f', precision, 64),
	}
}

// Tick is the most recent bid/ask quote for an instrument
type Tick struct {
	Instrument string
	Time       time.Time
	Bid        float64
	Ask        float64
}

// Mid returns the quote midpoint
func (t Tick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// Spread returns the bid/ask spread in price units
func (t Tick) Spread() float64 {
	return t.Ask - t.Bid
}
