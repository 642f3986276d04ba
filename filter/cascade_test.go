package filter

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/indicator"
	zerologger "github.com/hiroq/fxcore/logger/zerolog"
	"github.com/hiroq/fxcore/state"
)

type fakeScorer struct {
	score float64
	err   error
}

func (f *fakeScorer) Score([]core.Candle) (float64, error) {
	return f.score, f.err
}

func testFilterCfg() *config.Config {
	return &config.Config{
		QuietStart1:          23,
		QuietEnd1:            2,
		QuietStart2:          -1,
		QuietEnd2:            -1,
		SessionTimezone:      "UTC",
		SuppressionPips:      3,
		MaxSpreadPips:        2,
		VolSpikeRatio:        2.5,
		TrendATRMin:          2,
		BBWidthMinPips:       3,
		RSICrossLookback:     5,
		ReversalDiff:         25,
		CounterTrendADX:      35,
		GrayUpper:            30,
		ClimaxZ:              2.0,
		ClimaxZWindow:        10,
		OvershootATRMult:     1.5,
		TailRatioBlock:       2.0,
		RevBlockBars:         3,
		VolSpikePeriod:       5,
		CompositeMin:         0.0,
		TriggerPipsOverBreak: 1,
		ReentryCooldown:      300 * time.Second,
	}
}

func newTestCascade(cfg *config.Config, scorer core.PatternScorer) (*Cascade, *state.Store, *state.FakeClock) {
	clock := &state.FakeClock{Wall: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
	store := state.NewStore(clock, "EURUSD", 12)
	zl := zerolog.Nop()
	return NewCascade(cfg, store, scorer, zerologger.NewAdapter(&zl)), store, clock
}

func constantSeries(value float64, n int) core.Series[float64] {
	s := make(core.Series[float64], n)
	for i := range s {
		s[i] = value
	}
	return s
}

// m5Frame builds a calm ten-candle frame that passes every gate
func m5Frame() *core.Dataframe {
	df := core.NewDataframe("EURUSD", core.TimeframeM5)
	t0 := time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		df.Update(core.Candle{
			Instrument: "EURUSD",
			Time:       t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:       1.0999,
			High:       1.1002,
			Low:        1.0998,
			Close:      1.1001,
			Volume:     100,
			Complete:   true,
		}, false)
	}
	n := df.Len()
	df.Metadata[indicator.KeyATR] = constantSeries(0.0008, n)
	df.Metadata[indicator.KeyBBWidth] = constantSeries(0.0005, n)
	df.Metadata[indicator.KeyBBUpper] = constantSeries(1.1020, n)
	df.Metadata[indicator.KeyBBLower] = constantSeries(1.0980, n)
	df.Metadata[indicator.KeyRSI] = constantSeries(55, n)
	df.Metadata[indicator.KeyEMAFast] = constantSeries(1.1001, n)
	df.Metadata[indicator.KeyEMASlow] = constantSeries(1.1001, n)
	df.Metadata[indicator.KeyMACDHist] = constantSeries(0.0001, n)
	df.Metadata[indicator.KeyADX] = constantSeries(20, n)
	return df
}

// metaFrame builds a candle-less frame carrying only indicator metadata
func metaFrame(emaFast, emaSlow, adx float64) *core.Dataframe {
	df := core.NewDataframe("EURUSD", core.TimeframeM15)
	df.Metadata[indicator.KeyEMAFast] = core.Series[float64]{emaFast}
	df.Metadata[indicator.KeyEMASlow] = core.Series[float64]{emaSlow}
	if adx > 0 {
		df.Metadata[indicator.KeyADX] = core.Series[float64]{adx}
	}
	return df
}

func baseContext(m5 *core.Dataframe) *core.MarketContext {
	close := m5.Close.Last(0)
	return &core.MarketContext{
		Instrument: "EURUSD",
		Frames:     map[core.Timeframe]*core.Dataframe{core.TimeframeM5: m5},
		Tick:       core.Tick{Instrument: "EURUSD", Bid: close - 0.0001, Ask: close + 0.0001},
		SpreadPips: 0.5,
		Now:        time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
	}
}

func baseInput() Input {
	return Input{
		Regime:    core.Regime{Kind: core.RegimeRange, Score: 0.5},
		Mode:      core.ModeScalpMomentum,
		Side:      core.SideLong,
		Tradeable: true,
	}
}

func TestApply_CalmMarketPasses(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	side, out := c.Apply(baseContext(m5Frame()), baseInput())
	require.True(t, out.IsOk(), "unexpected outcome %s", out)
	assert.Equal(t, core.SideLong, side)
}

func TestApply_QuietHoursWrapMidnight(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	for _, hour := range []int{23, 0, 1} {
		mctx := baseContext(m5Frame())
		mctx.Now = time.Date(2025, 6, 2, hour, 30, 0, 0, time.UTC)
		_, out := c.Apply(mctx, baseInput())
		assert.Equal(t, core.ReasonQuietHours, out.Reason, "hour %d", hour)
	}

	mctx := baseContext(m5Frame())
	mctx.Now = time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC)
	_, out := c.Apply(mctx, baseInput())
	assert.True(t, out.IsOk())
}

func TestApply_PivotProximity(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	h1 := core.NewDataframe("EURUSD", core.TimeframeH1)
	t0 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		h1.Update(core.Candle{
			Instrument: "EURUSD",
			Time:       t0.Add(time.Duration(i) * time.Hour),
			Open:       1.1000, High: 1.1010, Low: 1.0990, Close: 1.1000,
			Volume: 100, Complete: true,
		}, false)
	}

	mctx := baseContext(m5Frame())
	mctx.Frames[core.TimeframeH1] = h1 // prior H1 pivot sits at 1.1000

	_, out := c.Apply(mctx, baseInput())
	assert.Equal(t, core.ReasonPivotProximity, out.Reason)
}

func TestApply_WideSpread(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	mctx := baseContext(m5Frame())
	mctx.SpreadPips = 2.5

	_, out := c.Apply(mctx, baseInput())
	assert.Equal(t, core.ReasonWideSpread, out.Reason)
}

func TestApply_VolatilitySpike(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	m5 := m5Frame()
	atr := constantSeries(0.0008, m5.Len())
	atr[len(atr)-1] = 0.0025 // > 2.5x the previous bar
	m5.Metadata[indicator.KeyATR] = atr

	_, out := c.Apply(baseContext(m5), baseInput())
	assert.Equal(t, core.ReasonVolatilitySpike, out.Reason)
}

func TestApply_Untradeable(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	in := baseInput()
	in.Tradeable = false

	_, out := c.Apply(baseContext(m5Frame()), in)
	assert.Equal(t, core.ReasonUntradeable, out.Reason)
}

func TestApply_BBWidthFloor(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	m5 := m5Frame()
	m5.Metadata[indicator.KeyBBWidth] = constantSeries(0.0002, m5.Len()) // 2 pips

	_, out := c.Apply(baseContext(m5), baseInput())
	assert.Equal(t, core.ReasonBBWidthFloor, out.Reason)
}

func TestApply_StrongTrendBypassesWidthFloor(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	m5 := m5Frame()
	m5.Metadata[indicator.KeyBBWidth] = constantSeries(0.0002, m5.Len())
	m5.Metadata[indicator.KeyADX] = constantSeries(40, m5.Len())

	in := baseInput()
	in.Regime = core.Regime{Kind: core.RegimeTrend, Direction: core.SideLong, Score: 0.5}

	_, out := c.Apply(baseContext(m5), in)
	assert.True(t, out.IsOk(), "unexpected outcome %s", out)
}

func TestApply_TrendATRFloor(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	m5 := m5Frame()
	m5.Metadata[indicator.KeyATR] = constantSeries(0.0001, m5.Len()) // 1 pip

	in := baseInput()
	in.Mode = core.ModeTrendFollow

	_, out := c.Apply(baseContext(m5), in)
	assert.Equal(t, core.ReasonATRFloor, out.Reason)
}

func TestApply_MissingIndicatorsBlock(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	m5 := m5Frame()
	delete(m5.Metadata, indicator.KeyATR)

	_, out := c.Apply(baseContext(m5), baseInput())
	assert.Equal(t, core.ReasonInsufficientHistory, out.Reason)
}

func TestApply_StrictRSICross(t *testing.T) {
	cfg := testFilterCfg()
	cfg.StrictRSICross = true
	c, _, _ := newTestCascade(cfg, nil)

	m1 := core.NewDataframe("EURUSD", core.TimeframeM1)
	m1.Metadata[indicator.KeyRSI] = core.Series[float64]{50, 50, 28, 40, 50}

	mctx := baseContext(m5Frame())
	mctx.Frames[core.TimeframeM1] = m1

	// 28 -> 40 crossed out of oversold into the neutral band
	_, out := c.Apply(mctx, baseInput())
	assert.True(t, out.IsOk(), "unexpected outcome %s", out)

	// a short candidate needs the overbought cross instead
	in := baseInput()
	in.Side = core.SideShort
	_, out = c.Apply(mctx, in)
	assert.Equal(t, core.ReasonNoRSICross, out.Reason)

	m1.Metadata[indicator.KeyRSI] = core.Series[float64]{50, 50, 74, 60, 55}
	_, out = c.Apply(mctx, in)
	assert.True(t, out.IsOk())
}

func TestApply_RapidReversal(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	m5 := m5Frame()
	m5.Metadata[indicator.KeyRSI] = constantSeries(80, m5.Len())

	m15 := metaFrame(1.1000, 1.1000, 0)
	m15.Metadata[indicator.KeyRSI] = core.Series[float64]{50}

	mctx := baseContext(m5)
	mctx.Frames[core.TimeframeM15] = m15
	mctx.Frames[core.TimeframeH1] = metaFrame(1.1000, 1.1000, 0)

	_, out := c.Apply(mctx, baseInput())
	assert.Equal(t, core.ReasonRapidReversal, out.Reason)

	// divergence without histogram confirmation passes
	m5.Metadata[indicator.KeyMACDHist] = constantSeries(-0.0001, m5.Len())
	_, out = c.Apply(mctx, baseInput())
	assert.True(t, out.IsOk(), "unexpected outcome %s", out)
}

func TestApply_CounterTrendAlignedBlock(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	mctx := baseContext(m5Frame())
	mctx.Frames[core.TimeframeM15] = metaFrame(1.0990, 1.1000, 0) // short
	mctx.Frames[core.TimeframeH1] = metaFrame(1.0990, 1.1000, 0)  // short

	_, out := c.Apply(mctx, baseInput()) // long candidate
	assert.Equal(t, core.ReasonCounterTrend, out.Reason)
}

func TestApply_CounterTrendStrongH1Alone(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	mctx := baseContext(m5Frame())
	mctx.Frames[core.TimeframeM15] = metaFrame(1.1000, 1.1000, 0) // flat
	mctx.Frames[core.TimeframeH1] = metaFrame(1.0990, 1.1000, 35) // strong short

	_, out := c.Apply(mctx, baseInput())
	assert.Equal(t, core.ReasonCounterTrend, out.Reason)
}

func TestApply_CounterTrendADXBypass(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	m5 := m5Frame()
	m5.Metadata[indicator.KeyEMAFast] = constantSeries(1.1005, m5.Len())
	m5.Metadata[indicator.KeyEMASlow] = constantSeries(1.1000, m5.Len())
	m5.Metadata[indicator.KeyADX] = constantSeries(40, m5.Len())

	mctx := baseContext(m5)
	mctx.Frames[core.TimeframeM15] = metaFrame(1.0990, 1.1000, 0)
	mctx.Frames[core.TimeframeH1] = metaFrame(1.0990, 1.1000, 35)

	_, out := c.Apply(mctx, baseInput())
	assert.True(t, out.IsOk(), "unexpected outcome %s", out)
}

func TestApply_ClimaxRewritesSide(t *testing.T) {
	cfg := testFilterCfg()
	cfg.VolSpikeRatio = 10 // keep the spike gate out of the way
	c, _, _ := newTestCascade(cfg, nil)

	m5 := m5Frame()
	m5.Update(core.Candle{
		Instrument: "EURUSD",
		Time:       time.Date(2025, 6, 2, 11, 50, 0, 0, time.UTC),
		Open:       1.1028, High: 1.1031, Low: 1.1027, Close: 1.1030,
		Volume: 100, Complete: true,
	}, false)

	n := m5.Len()
	atr := constantSeries(0.0005, n)
	atr[n-1] = 0.0020 // abnormal expansion, z above threshold over the window
	m5.Metadata[indicator.KeyATR] = atr
	m5.Metadata[indicator.KeyBBWidth] = constantSeries(0.0005, n)
	m5.Metadata[indicator.KeyBBUpper] = constantSeries(1.1020, n)
	m5.Metadata[indicator.KeyBBLower] = constantSeries(1.0980, n)
	m5.Metadata[indicator.KeyRSI] = constantSeries(55, n)
	m5.Metadata[indicator.KeyEMAFast] = constantSeries(1.1030, n)
	m5.Metadata[indicator.KeyEMASlow] = constantSeries(1.1030, n)
	m5.Metadata[indicator.KeyMACDHist] = constantSeries(0.0001, n)
	m5.Metadata[indicator.KeyADX] = constantSeries(20, n)

	side, out := c.Apply(baseContext(m5), baseInput())
	require.True(t, out.IsOk(), "unexpected outcome %s", out)
	assert.Equal(t, core.SideShort, side)
}

func TestApply_OvershootBlocksExtendedSide(t *testing.T) {
	c, store, _ := newTestCascade(testFilterCfg(), nil)

	m5 := m5Frame()
	m5.Metadata[indicator.KeyEMAFast] = constantSeries(1.0980, m5.Len())

	for i := 0; i < 12; i++ {
		store.Overshoot.Push(1.0981, 1.0979)
	}

	// mid 1.1001 is far beyond ema + atr band for a long
	_, out := c.Apply(baseContext(m5), baseInput())
	assert.Equal(t, core.ReasonOvershoot, out.Reason)

	in := baseInput()
	in.Side = core.SideShort
	_, out = c.Apply(baseContext(m5), in)
	assert.True(t, out.IsOk(), "unexpected outcome %s", out)
}

func TestApply_CandleBias(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), nil)

	m5 := m5Frame()
	// exhaustion wick against the long on triple the average volume
	m5.Update(core.Candle{
		Instrument: "EURUSD",
		Time:       time.Date(2025, 6, 2, 11, 50, 0, 0, time.UTC),
		Open:       1.1000, High: 1.1010, Low: 1.0999, Close: 1.1002,
		Volume: 300, Complete: true,
	}, false)
	for key := range m5.Metadata {
		m5.Metadata[key] = append(m5.Metadata[key], m5.Metadata[key].Last(0))
	}

	_, out := c.Apply(baseContext(m5), baseInput())
	assert.Equal(t, core.ReasonCandleBias, out.Reason)
}

func TestApply_ScorerVetoesCandleBias(t *testing.T) {
	c, _, _ := newTestCascade(testFilterCfg(), &fakeScorer{score: 0.8})

	m5 := m5Frame()
	m5.Update(core.Candle{
		Instrument: "EURUSD",
		Time:       time.Date(2025, 6, 2, 11, 50, 0, 0, time.UTC),
		Open:       1.1000, High: 1.1010, Low: 1.0999, Close: 1.1002,
		Volume: 300, Complete: true,
	}, false)
	for key := range m5.Metadata {
		m5.Metadata[key] = append(m5.Metadata[key], m5.Metadata[key].Last(0))
	}

	_, out := c.Apply(baseContext(m5), baseInput())
	assert.True(t, out.IsOk(), "unexpected outcome %s", out)
}

func TestApply_CompositeScoreFloor(t *testing.T) {
	cfg := testFilterCfg()
	cfg.CompositeMin = 0.5
	c, _, _ := newTestCascade(cfg, nil)

	in := baseInput()
	in.Regime.Score = 0.2

	_, out := c.Apply(baseContext(m5Frame()), in)
	assert.Equal(t, core.ReasonCompositeScore, out.Reason)
}

func TestApply_ReentryCooldown(t *testing.T) {
	c, store, clock := newTestCascade(testFilterCfg(), nil)

	store.RecordStopLoss(core.SideLong, 1.0950)
	clock.Advance(30 * time.Second)

	m5 := m5Frame()
	mctx := baseContext(m5)
	mctx.Tick = core.Tick{Instrument: "EURUSD", Bid: 1.09479, Ask: 1.09481}
	mctx.SpreadPips = 0.2

	// overshoot anchor must track the new price area
	m5.Metadata[indicator.KeyEMAFast] = constantSeries(1.0948, m5.Len())
	m5.Metadata[indicator.KeyEMASlow] = constantSeries(1.0948, m5.Len())

	_, out := c.Apply(mctx, baseInput())
	assert.Equal(t, core.ReasonReentryCooldown, out.Reason)

	// the opposite side is unaffected
	in := baseInput()
	in.Side = core.SideShort
	_, out = c.Apply(mctx, in)
	assert.True(t, out.IsOk(), "unexpected outcome %s", out)

	// expiry releases the block
	clock.Advance(300 * time.Second)
	_, out = c.Apply(mctx, baseInput())
	assert.True(t, out.IsOk(), "unexpected outcome %s", out)
}
