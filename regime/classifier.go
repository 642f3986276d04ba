// Package regime classifies the current market regime from the indicator
// snapshot of the primary timeframe.
package regime

import (
	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/indicator"
	"github.com/hiroq/fxcore/logger"
)

// Classifier applies the ordered regime rules
type Classifier struct {
	cfg *config.Config
	log logger.Logger
}

// NewClassifier creates a classifier with the given thresholds
func NewClassifier(cfg *config.Config, log logger.Logger) *Classifier {
	return &Classifier{cfg: cfg, log: log}
}

// Classify returns the regime for the primary frame. atrPercentile is the
// current ATR's rank over the daily history; pass indicator.Null when a
// daily history is unavailable and the percentile rule is skipped.
func (c *Classifier) Classify(df *core.Dataframe, atrPercentile float64) core.Regime {
	adx := indicator.Latest(df, indicator.KeyADX)
	emaFast := indicator.Latest(df, indicator.KeyEMAFast)
	emaSlow := indicator.Latest(df, indicator.KeyEMASlow)

	// Undefined ADX (flat or short history) clamps to 0
	if indicator.IsNull(adx) {
		adx = 0
	}

	score := indicator.CompositeADXBB(
		seriesOf(df, indicator.KeyADX),
		seriesOf(df, indicator.KeyBBWidth),
		c.cfg.CompositeLookback,
		c.cfg.CompositeWidthPeriod,
	)

	regime := core.Regime{Score: score}

	switch {
	case !indicator.IsNull(atrPercentile) && atrPercentile < c.cfg.ATRPercentileMin:
		regime.Kind = core.RegimeNoTrade
	case adx >= c.cfg.GrayUpper:
		regime.Kind = core.RegimeTrend
		regime.Direction = c.trendDirection(df, emaFast, emaSlow)
		if regime.Direction == "" {
			regime.Kind = core.RegimeGray
		}
	case adx <= c.cfg.GrayLower-5:
		regime.Kind = core.RegimeRange
	default:
		regime.Kind = core.RegimeGray
	}

	// A breakout of the recent range overrides trend/range/gray
	if regime.Kind != core.RegimeNoTrade {
		if dir, ok := c.breakDirection(df); ok {
			regime.Kind = core.RegimeBreak
			regime.Direction = dir
		}
	}

	c.log.WithField("regime", string(regime.Kind)).
		WithField("adx", adx).
		Debugf("regime classified, score=%.3f", score)
	return regime
}

// trendDirection resolves the trend side from the EMA spread, falling back
// to the ADX slope on an exact tie. Returns "" when both are flat.
func (c *Classifier) trendDirection(df *core.Dataframe, emaFast, emaSlow float64) core.Side {
	switch {
	case emaFast > emaSlow:
		return core.SideLong
	case emaFast < emaSlow:
		return core.SideShort
	}

	slope := indicator.Slope(seriesOf(df, indicator.KeyADX), c.cfg.ADXSlopeLookback)
	switch {
	case slope > 0:
		return core.SideLong
	case slope < 0:
		return core.SideShort
	}
	return ""
}

// breakDirection reports whether the last closed candle closed strictly
// outside the previous lookback candles' high/low range
func (c *Classifier) breakDirection(df *core.Dataframe) (core.Side, bool) {
	lookback := c.cfg.BreakLookback
	if df.Len() < lookback+1 {
		return "", false
	}

	last := df.Close.Last(0)
	hh := df.High.Last(1)
	ll := df.Low.Last(1)
	for i := 2; i <= lookback; i++ {
		if h := df.High.Last(i); h > hh {
			hh = h
		}
		if l := df.Low.Last(i); l < ll {
			ll = l
		}
	}

	switch {
	case last > hh:
		return core.SideLong, true
	case last < ll:
		return core.SideShort, true
	}
	return "", false
}

func seriesOf(df *core.Dataframe, key string) []float64 {
	if df == nil || df.Metadata == nil {
		return nil
	}
	return df.Metadata[key].Values()
}
