// Package filter implements the ordered entry gate pipeline. The first
// failing gate short-circuits with its reason code; one gate may rewrite the
// candidate side instead of blocking.
package filter

import (
	"math"
	"time"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/indicator"
	"github.com/hiroq/fxcore/logger"
	"github.com/hiroq/fxcore/state"
)

// Input carries the per-tick context the cascade evaluates against
type Input struct {
	Regime    core.Regime
	Mode      core.TradeMode
	Side      core.Side
	Tradeable bool
}

// Cascade evaluates the entry gates in a fixed order
type Cascade struct {
	cfg    *config.Config
	log    logger.Logger
	store  *state.Store
	scorer core.PatternScorer // optional
	loc    *time.Location
}

// NewCascade creates the gate pipeline. scorer may be nil.
func NewCascade(cfg *config.Config, store *state.Store, scorer core.PatternScorer, log logger.Logger) *Cascade {
	loc, err := time.LoadLocation(cfg.SessionTimezone)
	if err != nil {
		log.Warnf("unknown session timezone %q, using UTC", cfg.SessionTimezone)
		loc = time.UTC
	}
	return &Cascade{cfg: cfg, log: log, store: store, scorer: scorer, loc: loc}
}

type gate struct {
	name string
	run  func(mctx *core.MarketContext, in *Input) core.Outcome
}

// Apply runs every gate in order against the candidate. The returned side is
// the (possibly rewritten) candidate; the outcome carries the first failing
// gate's reason.
func (c *Cascade) Apply(mctx *core.MarketContext, in Input) (core.Side, core.Outcome) {
	gates := []gate{
		{"quiet_hours", c.quietHours},
		{"pivot_proximity", c.pivotProximity},
		{"spread_vol_spike", c.spreadAndVolSpike},
		{"tradeable", c.tradeable},
		{"volatility_floor", c.volatilityFloor},
		{"rsi_cross", c.rsiCross},
		{"rapid_reversal", c.rapidReversal},
		{"counter_trend", c.counterTrend},
		{"climax_reversal", c.climaxReversal},
		{"overshoot", c.overshoot},
		{"candle_bias", c.candleBias},
		{"composite_score", c.compositeScore},
		{"reentry_cooldown", c.reentryCooldown},
	}

	for _, g := range gates {
		if out := g.run(mctx, &in); !out.IsOk() {
			c.log.WithField("gate", g.name).
				WithField("reason", string(out.Reason)).
				Debug("entry blocked")
			return in.Side, out
		}
	}
	return in.Side, core.Ok()
}

// Gate 1: block inside either configured quiet interval, wrap-around aware
func (c *Cascade) quietHours(mctx *core.MarketContext, _ *Input) core.Outcome {
	hour := mctx.Now.In(c.loc).Hour()
	if inHourInterval(hour, c.cfg.QuietStart1, c.cfg.QuietEnd1) ||
		inHourInterval(hour, c.cfg.QuietStart2, c.cfg.QuietEnd2) {
		return core.Skip(core.ReasonQuietHours)
	}
	return core.Ok()
}

// inHourInterval treats start > end as an interval spanning midnight.
// Negative bounds disable the interval.
func inHourInterval(hour, start, end int) bool {
	if start < 0 || end < 0 {
		return false
	}
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// Gate 2: block near any floor-trader pivot level of the prior H1 candle
func (c *Cascade) pivotProximity(mctx *core.MarketContext, _ *Input) core.Outcome {
	h1 := mctx.Frame(core.TimeframeH1)
	if h1 == nil || h1.Len() < 2 {
		return core.Ok()
	}

	levels := indicator.Pivots(h1.High.Last(1), h1.Low.Last(1), h1.Close.Last(1)).Levels()
	price := mctx.Tick.Mid()
	suppress := c.cfg.SuppressionPips * core.PipSize(mctx.Instrument)
	for _, lv := range levels {
		if math.Abs(price-lv) <= suppress {
			return core.Skip(core.ReasonPivotProximity)
		}
	}
	return core.Ok()
}

// Gate 3: wide spread or an ATR jump versus the previous bar
func (c *Cascade) spreadAndVolSpike(mctx *core.MarketContext, _ *Input) core.Outcome {
	if mctx.SpreadPips > c.cfg.MaxSpreadPips {
		return core.Skip(core.ReasonWideSpread)
	}

	m5 := mctx.Frame(core.TimeframeM5)
	if m5 != nil {
		atr := indicator.Latest(m5, indicator.KeyATR)
		prev := indicator.At(m5, indicator.KeyATR, 1)
		if !indicator.IsNull(atr) && !indicator.IsNull(prev) && prev > 0 &&
			atr > c.cfg.VolSpikeRatio*prev {
			return core.Skip(core.ReasonVolatilitySpike)
		}
	}
	return core.Ok()
}

// Gate 4: broker session flag
func (c *Cascade) tradeable(_ *core.MarketContext, in *Input) core.Outcome {
	if !in.Tradeable {
		return core.Skip(core.ReasonUntradeable)
	}
	return core.Ok()
}

// Gate 5: regime-aware volatility floor on the M5 frame
func (c *Cascade) volatilityFloor(mctx *core.MarketContext, in *Input) core.Outcome {
	m5 := mctx.Frame(core.TimeframeM5)
	if m5 == nil {
		return core.Skip(core.ReasonInsufficientHistory)
	}

	pip := core.PipSize(mctx.Instrument)
	atr := indicator.Latest(m5, indicator.KeyATR)
	width := indicator.Latest(m5, indicator.KeyBBWidth)
	if indicator.IsNull(atr) || indicator.IsNull(width) {
		return core.Skip(core.ReasonInsufficientHistory)
	}

	if in.Mode == core.ModeTrendFollow && atr/pip < c.cfg.TrendATRMin {
		return core.Skip(core.ReasonATRFloor)
	}

	if !c.strongTrend(m5, in.Regime) && width/pip < c.cfg.BBWidthMinPips {
		return core.Skip(core.ReasonBBWidthFloor)
	}
	return core.Ok()
}

// strongTrend reports a trending regime backed by an ADX above the
// counter-trend bypass threshold
func (c *Cascade) strongTrend(df *core.Dataframe, regime core.Regime) bool {
	if !regime.IsTrend() {
		return false
	}
	adx := indicator.Latest(df, indicator.KeyADX)
	return !indicator.IsNull(adx) && adx >= c.cfg.CounterTrendADX
}

// Gate 6: strict mode requires a recent M1 RSI cross out of an extreme into
// the neutral band
func (c *Cascade) rsiCross(mctx *core.MarketContext, in *Input) core.Outcome {
	if !c.cfg.StrictRSICross {
		return core.Ok()
	}
	m1 := mctx.Frame(core.TimeframeM1)
	if m1 == nil {
		return core.Skip(core.ReasonNoRSICross)
	}

	lookback := c.cfg.RSICrossLookback
	for i := 0; i < lookback; i++ {
		cur := indicator.At(m1, indicator.KeyRSI, i)
		prev := indicator.At(m1, indicator.KeyRSI, i+1)
		if indicator.IsNull(cur) || indicator.IsNull(prev) {
			continue
		}
		if in.Side == core.SideLong && prev < 30 && cur >= 35 && cur <= 65 {
			return core.Ok()
		}
		if in.Side == core.SideShort && prev > 70 && cur >= 35 && cur <= 65 {
			return core.Ok()
		}
	}
	return core.Skip(core.ReasonNoRSICross)
}

// Gate 7: M5/M15 RSI divergence confirmed by the M5 MACD histogram
func (c *Cascade) rapidReversal(mctx *core.MarketContext, _ *Input) core.Outcome {
	m5 := mctx.Frame(core.TimeframeM5)
	m15 := mctx.Frame(core.TimeframeM15)
	if m5 == nil || m15 == nil {
		return core.Ok()
	}

	rsi5 := indicator.Latest(m5, indicator.KeyRSI)
	rsi15 := indicator.Latest(m15, indicator.KeyRSI)
	hist := indicator.Latest(m5, indicator.KeyMACDHist)
	if indicator.IsNull(rsi5) || indicator.IsNull(rsi15) || indicator.IsNull(hist) {
		return core.Ok()
	}

	diff := rsi5 - rsi15
	if math.Abs(diff) >= c.cfg.ReversalDiff && sign(hist) == sign(diff) && sign(diff) != 0 {
		return core.Skip(core.ReasonRapidReversal)
	}
	return core.Ok()
}

// Gate 8: counter-trend block. Either guard alone blocks: aligned M15/H1 EMA
// direction opposing the candidate, or a strong H1 trend opposing it. The
// ADX bypass (aligned M5 EMA plus ADX at or above the threshold) releases
// both guards.
func (c *Cascade) counterTrend(mctx *core.MarketContext, in *Input) core.Outcome {
	m15 := mctx.Frame(core.TimeframeM15)
	h1 := mctx.Frame(core.TimeframeH1)
	if m15 == nil || h1 == nil {
		return core.Ok()
	}

	dir15 := emaDirection(m15)
	dirH1 := emaDirection(h1)
	opposing := in.Side.Opposite()

	aligned := dir15 != "" && dir15 == dirH1 && dir15 == opposing

	adxH1 := indicator.Latest(h1, indicator.KeyADX)
	strongOppose := dirH1 == opposing && !indicator.IsNull(adxH1) && adxH1 >= c.cfg.GrayUpper

	if !aligned && !strongOppose {
		return core.Ok()
	}

	if m5 := mctx.Frame(core.TimeframeM5); m5 != nil {
		adx5 := indicator.Latest(m5, indicator.KeyADX)
		if emaDirection(m5) == in.Side && !indicator.IsNull(adx5) && adx5 >= c.cfg.CounterTrendADX {
			return core.Ok()
		}
	}
	return core.Skip(core.ReasonCounterTrend)
}

func emaDirection(df *core.Dataframe) core.Side {
	fast := indicator.Latest(df, indicator.KeyEMAFast)
	slow := indicator.Latest(df, indicator.KeyEMASlow)
	if indicator.IsNull(fast) || indicator.IsNull(slow) {
		return ""
	}
	switch {
	case fast > slow:
		return core.SideLong
	case fast < slow:
		return core.SideShort
	}
	return ""
}

// Gate 9: climax reversal rewrites the candidate side on a band breach with
// an abnormal ATR z-score. Never blocks.
func (c *Cascade) climaxReversal(mctx *core.MarketContext, in *Input) core.Outcome {
	m5 := mctx.Frame(core.TimeframeM5)
	if m5 == nil || m5.Len() == 0 {
		return core.Ok()
	}

	z := indicator.ZScore(m5.Metadata[indicator.KeyATR].Values(), c.cfg.ClimaxZWindow)
	if z <= c.cfg.ClimaxZ {
		return core.Ok()
	}

	close := m5.Close.Last(0)
	upper := indicator.Latest(m5, indicator.KeyBBUpper)
	lower := indicator.Latest(m5, indicator.KeyBBLower)
	switch {
	case !indicator.IsNull(upper) && close > upper:
		in.Side = core.SideShort
	case !indicator.IsNull(lower) && close < lower:
		in.Side = core.SideLong
	}
	return core.Ok()
}

// Gate 10: block entries beyond the adaptive overshoot band in the
// candidate's direction
func (c *Cascade) overshoot(mctx *core.MarketContext, in *Input) core.Outcome {
	m5 := mctx.Frame(core.TimeframeM5)
	if m5 == nil {
		return core.Ok()
	}

	ema := indicator.Latest(m5, indicator.KeyEMAFast)
	atr := indicator.Latest(m5, indicator.KeyATR)
	if indicator.IsNull(ema) || indicator.IsNull(atr) {
		return core.Ok()
	}

	up := in.Side == core.SideLong
	if c.store.Overshoot.Overshot(mctx.Tick.Mid(), ema, atr, c.cfg.OvershootATRMult, up) {
		return core.Skip(core.ReasonOvershoot)
	}
	return core.Ok()
}

// Gate 11: recent exhaustion wick against the candidate, on above-average
// volume. A configured pattern scorer can veto the block when it still sees
// continuation.
func (c *Cascade) candleBias(mctx *core.MarketContext, in *Input) core.Outcome {
	m5 := mctx.Frame(core.TimeframeM5)
	if m5 == nil || m5.Len() < c.cfg.VolSpikePeriod {
		return core.Ok()
	}

	volAvg := averageTail(m5.Volume.Values(), c.cfg.VolSpikePeriod)

	bars := c.cfg.RevBlockBars
	if bars > m5.Len() {
		bars = m5.Len()
	}
	for i := 0; i < bars; i++ {
		candle := m5.CandleAt(i)
		body := candle.Body()
		if body == 0 {
			continue
		}

		var wick float64
		if in.Side == core.SideLong {
			wick = candle.UpperWick()
		} else {
			wick = candle.LowerWick()
		}
		if wick <= c.cfg.TailRatioBlock*body || candle.Volume <= volAvg {
			continue
		}

		if c.scorer != nil {
			if p, err := c.scorer.Score(recentCandles(m5, c.cfg.VolSpikePeriod)); err == nil && p >= 0.5 {
				continue
			}
		}
		return core.Skip(core.ReasonCandleBias)
	}
	return core.Ok()
}

func recentCandles(df *core.Dataframe, n int) []core.Candle {
	if n > df.Len() {
		n = df.Len()
	}
	candles := make([]core.Candle, n)
	for i := 0; i < n; i++ {
		candles[n-1-i] = df.CandleAt(i)
	}
	return candles
}

func averageTail(values []float64, n int) float64 {
	if n > len(values) {
		n = len(values)
	}
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// Gate 12: composite ADX-Bollinger score threshold
func (c *Cascade) compositeScore(_ *core.MarketContext, in *Input) core.Outcome {
	if in.Regime.Score < c.cfg.CompositeMin {
		return core.Skip(core.ReasonCompositeScore)
	}
	return core.Ok()
}

// Gate 13: same-side reentry suppression after a stop-loss exit, evaluated
// against the final candidate side
func (c *Cascade) reentryCooldown(mctx *core.MarketContext, in *Input) core.Outcome {
	blocked := c.store.ReentryBlocked(
		in.Side,
		mctx.Tick.Mid(),
		core.PipSize(mctx.Instrument),
		mctx.SpreadPips,
		c.cfg.TriggerPipsOverBreak,
		c.cfg.ReentryCooldown,
	)
	if blocked {
		return core.Skip(core.ReasonReentryCooldown)
	}
	return core.Ok()
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
