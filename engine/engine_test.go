package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/gateway/dryrun"
	"github.com/hiroq/fxcore/indicator"
	"github.com/hiroq/fxcore/logger"
	zerologger "github.com/hiroq/fxcore/logger/zerolog"
	"github.com/hiroq/fxcore/order"
	"github.com/hiroq/fxcore/state"
	"github.com/hiroq/fxcore/supervisor"
)

type fakeAdvisor struct {
	regime      core.RegimeCall
	regimeErr   error
	regimeCalls int
	plan        *core.EntryPlan
	planErr     error
	planCalls   int
}

func (f *fakeAdvisor) ClassifyRegime(_ context.Context, _ *core.MarketContext) (core.RegimeCall, error) {
	f.regimeCalls++
	return f.regime, f.regimeErr
}

func (f *fakeAdvisor) SelectMode(_ context.Context, _ *core.MarketContext, _ int) ([]core.ModeVote, error) {
	return nil, nil
}

func (f *fakeAdvisor) ProposePlan(_ context.Context, _ *core.MarketContext) (*core.EntryPlan, error) {
	f.planCalls++
	return f.plan, f.planErr
}

func (f *fakeAdvisor) ExitDecision(_ context.Context, _ *core.MarketContext, _ core.PositionRecord) (core.ExitCall, error) {
	return core.ExitCall{Action: core.ExitActionHold}, nil
}

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(func(string) (string, bool) { return "", false })
	require.NoError(t, err)
	return cfg
}

func nopLogger() logger.Logger {
	zl := zerolog.Nop()
	return zerologger.NewAdapter(&zl)
}

func testEngine(t *testing.T, walletInstrument string) (*Engine, *state.Store, *state.FakeClock) {
	t.Helper()

	cfg := defaultConfig(t)
	log := nopLogger()
	clk := &state.FakeClock{Wall: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
	store := state.NewStore(clk, cfg.Instrument, cfg.OvershootWindow)
	wallet := dryrun.NewWallet(walletInstrument, log)
	coord := order.NewCoordinator(cfg, wallet, store, nil, nil, log)
	super := supervisor.NewSupervisor(cfg, wallet, store, coord, nil, order.NewTradeSummary(cfg.Instrument), nil, log)
	return New(cfg, wallet, store, coord, super, nil, log), store, clk
}

func planContext(atr float64) *core.MarketContext {
	df := core.NewDataframe("USDJPY", core.TimeframeM5)
	df.Metadata[indicator.KeyATR] = core.Series[float64]{atr}
	return &core.MarketContext{
		Instrument: "USDJPY",
		Frames:     map[core.Timeframe]*core.Dataframe{core.TimeframeM5: df},
		Tick:       core.Tick{Instrument: "USDJPY", Bid: 155.005, Ask: 155.015},
	}
}

func TestTick_SnapshotFailureIsTransient(t *testing.T) {
	// wallet serves another instrument, so every snapshot fails
	eng, _, _ := testEngine(t, "EURUSD")

	out := eng.Tick(context.Background())
	require.Equal(t, core.StatusFailed, out.Status)
	assert.Equal(t, core.FailTransient, out.Kind)
	assert.Equal(t, core.ReasonGatewayError, out.Reason)
	assert.False(t, out.Fatal())
}

type accountDownGateway struct {
	*dryrun.Wallet
}

func (g *accountDownGateway) Account(_ context.Context) (core.Account, error) {
	return core.Account{}, core.Transient(errors.New("account stream down"))
}

func TestTick_AccountFailureStillSupervises(t *testing.T) {
	cfg := defaultConfig(t)
	log := nopLogger()
	clk := &state.FakeClock{Wall: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
	store := state.NewStore(clk, cfg.Instrument, cfg.OvershootWindow)
	gw := &accountDownGateway{Wallet: dryrun.NewWallet(cfg.Instrument, log)}
	coord := order.NewCoordinator(cfg, gw, store, nil, nil, log)
	super := supervisor.NewSupervisor(cfg, gw, store, coord, nil, order.NewTradeSummary(cfg.Instrument), nil, log)
	eng := New(cfg, gw, store, coord, super, nil, log)

	// a ledger record the broker no longer knows about
	require.NoError(t, store.PutPending(&core.PendingLimitRecord{
		OrderID:    "ord-9",
		Instrument: cfg.Instrument,
		Side:       core.SideLong,
		LimitPrice: 154.900,
		Units:      0.5,
		UUID:       "u9",
		PositionID: "p9",
		TradeMode:  core.ModeScalpMomentum,
		State:      core.PendingSubmitted,
	}))

	out := eng.Tick(context.Background())
	require.Equal(t, core.StatusFailed, out.Status)
	assert.Equal(t, core.FailTransient, out.Kind)
	assert.Equal(t, core.ReasonGatewayError, out.Reason)

	// the supervision pass ran before the account fetch and reconciled
	// the stale record away
	assert.Nil(t, store.PendingByUUID("u9"))
}

func TestRulePlan_MarketFromATR(t *testing.T) {
	eng, _, _ := testEngine(t, "USDJPY")

	// 8-pip ATR with the default 2.0 TP and 1.2 SL multipliers
	p := eng.rulePlan(planContext(0.08), core.ModeTrendFollow, core.SideLong)
	assert.Equal(t, core.ExecMarket, p.Exec)
	assert.Equal(t, core.SideLong, p.Side)
	assert.InDelta(t, 16.0, p.TPPips, 1e-9)
	assert.InDelta(t, 9.6, p.SLPips, 1e-9)
	assert.InDelta(t, 0.6, p.TPProb, 1e-9)
	assert.InDelta(t, 0.4, p.SLProb, 1e-9)
	assert.Equal(t, core.ModeTrendFollow, p.TradeMode)
}

func TestRulePlan_ScalpMomentumGoesLimit(t *testing.T) {
	eng, _, _ := testEngine(t, "USDJPY")

	p := eng.rulePlan(planContext(0.08), core.ModeScalpMomentum, core.SideLong)
	assert.Equal(t, core.ExecLimit, p.Exec)
	assert.InDelta(t, 154.995, p.LimitPrice, 1e-9) // mid less the 1.5-pip offset
	assert.Equal(t, 120, p.ValidForSec)

	p = eng.rulePlan(planContext(0.08), core.ModeScalpMomentum, core.SideShort)
	assert.InDelta(t, 155.025, p.LimitPrice, 1e-9)
}

func TestRulePlan_FallsBackToTenPips(t *testing.T) {
	eng, _, _ := testEngine(t, "USDJPY")

	mctx := &core.MarketContext{Instrument: "USDJPY", Tick: core.Tick{Bid: 155.005, Ask: 155.015}}
	p := eng.rulePlan(mctx, core.ModeTrendFollow, core.SideShort)
	assert.InDelta(t, 20.0, p.TPPips, 1e-9)
	assert.InDelta(t, 12.0, p.SLPips, 1e-9)
}

func TestAdviseRegime_DecisiveOverrideKeepsScore(t *testing.T) {
	eng, _, clk := testEngine(t, "USDJPY")
	mctx := planContext(0.08)
	rule := core.Regime{Kind: core.RegimeRange, Score: 0.4}

	advisor := &fakeAdvisor{regime: core.RegimeCall{
		Regime: core.Regime{Kind: core.RegimeTrend, Direction: core.SideLong},
		Probs:  map[core.RegimeKind]float64{core.RegimeTrend: 0.8},
	}}

	got := eng.adviseRegime(context.Background(), mctx, advisor, rule)
	assert.Equal(t, core.RegimeTrend, got.Kind)
	assert.Equal(t, core.SideLong, got.Direction)
	assert.InDelta(t, 0.4, got.Score, 1e-9)
	assert.Equal(t, 1, advisor.regimeCalls)

	// inside the cadence window the advisor is not consulted again
	got = eng.adviseRegime(context.Background(), mctx, advisor, rule)
	assert.Equal(t, core.RegimeRange, got.Kind)
	assert.Equal(t, 1, advisor.regimeCalls)

	// an indecisive probability leaves the rule classification alone
	clk.Advance(61 * time.Second)
	advisor.regime.Probs[core.RegimeTrend] = 0.5
	got = eng.adviseRegime(context.Background(), mctx, advisor, rule)
	assert.Equal(t, core.RegimeRange, got.Kind)
	assert.Equal(t, 2, advisor.regimeCalls)
}

func TestAdviseRegime_ErrorKeepsRule(t *testing.T) {
	eng, _, _ := testEngine(t, "USDJPY")
	rule := core.Regime{Kind: core.RegimeGray}

	advisor := &fakeAdvisor{regimeErr: context.DeadlineExceeded}
	got := eng.adviseRegime(context.Background(), planContext(0.08), advisor, rule)
	assert.Equal(t, core.RegimeGray, got.Kind)
}

func TestProposePlan_AdoptsMatchingAdvisorPlan(t *testing.T) {
	eng, _, clk := testEngine(t, "USDJPY")
	mctx := planContext(0.08)

	advisor := &fakeAdvisor{plan: &core.EntryPlan{
		Side: core.SideLong, TPPips: 15, SLPips: 7, TPProb: 0.7, SLProb: 0.3, Exec: core.ExecMarket,
	}}

	p := eng.proposePlan(context.Background(), mctx, advisor, core.ModeTrendFollow, core.SideLong)
	assert.InDelta(t, 15.0, p.TPPips, 1e-9)
	assert.Equal(t, core.ModeTrendFollow, p.TradeMode)
	assert.Equal(t, 1, advisor.planCalls)

	// throttled: the rule plan fills in without another advisor call
	p = eng.proposePlan(context.Background(), mctx, advisor, core.ModeTrendFollow, core.SideLong)
	assert.InDelta(t, 16.0, p.TPPips, 1e-9)
	assert.Equal(t, 1, advisor.planCalls)

	// a plan for the other side is discarded
	clk.Advance(61 * time.Second)
	advisor.plan.Side = core.SideShort
	p = eng.proposePlan(context.Background(), mctx, advisor, core.ModeTrendFollow, core.SideLong)
	assert.InDelta(t, 16.0, p.TPPips, 1e-9)
	assert.Equal(t, 2, advisor.planCalls)
}

func TestProposePlan_DiscardsLimitPlanWithoutPrice(t *testing.T) {
	eng, _, _ := testEngine(t, "USDJPY")
	mctx := planContext(0.08)

	advisor := &fakeAdvisor{plan: &core.EntryPlan{
		Side: core.SideLong, TPPips: 15, SLPips: 7, TPProb: 0.7, SLProb: 0.3, Exec: core.ExecLimit,
	}}

	// a limit plan without a price falls back to the rule plan
	p := eng.proposePlan(context.Background(), mctx, advisor, core.ModeTrendFollow, core.SideLong)
	assert.Equal(t, 1, advisor.planCalls)
	assert.Equal(t, core.ExecMarket, p.Exec)
	assert.InDelta(t, 16.0, p.TPPips, 1e-9)
}

func TestProposePlan_NilAdvisorUsesRule(t *testing.T) {
	eng, _, _ := testEngine(t, "USDJPY")

	p := eng.proposePlan(context.Background(), planContext(0.08), nil, core.ModeScalpReversion, core.SideShort)
	assert.InDelta(t, 16.0, p.TPPips, 1e-9)
	assert.Equal(t, core.ModeScalpReversion, p.TradeMode)
}

func TestCadence_ScalpTradeShortensInterval(t *testing.T) {
	eng, store, _ := testEngine(t, "USDJPY")

	assert.Equal(t, 60*time.Second, eng.cadence())

	store.TrackTrade(&state.TradeState{TradeID: "t1", Instrument: "USDJPY", Mode: core.ModeScalpMomentum})
	assert.Equal(t, 15*time.Second, eng.cadence())

	store.Trade("t1").CloseSent = true
	assert.Equal(t, 60*time.Second, eng.cadence())
}

func TestNew_MaintainsAllTimeframes(t *testing.T) {
	eng, _, _ := testEngine(t, "USDJPY")

	for _, tf := range []core.Timeframe{
		core.TimeframeM1, core.TimeframeM5, core.TimeframeM15,
		core.TimeframeH1, core.TimeframeH4, core.TimeframeD1,
	} {
		require.NotNil(t, eng.frames[tf], "missing frame for %s", tf)
	}
}

func TestDailyATRPercentile(t *testing.T) {
	eng, _, _ := testEngine(t, "USDJPY")

	assert.True(t, indicator.IsNull(eng.dailyATRPercentile()))

	eng.frames[core.TimeframeD1].Metadata[indicator.KeyATR] = core.Series[float64]{0.4, 0.8, 0.6, 1.0}
	assert.InDelta(t, 100.0, eng.dailyATRPercentile(), 1e-9)

	eng.frames[core.TimeframeD1].Metadata[indicator.KeyATR] = core.Series[float64]{0.4, 0.8, indicator.Null}
	assert.True(t, indicator.IsNull(eng.dailyATRPercentile()))
}

func TestIngest_PushesOvershootOncePerCandle(t *testing.T) {
	eng, store, _ := testEngine(t, "USDJPY")
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	snap := core.Snapshot{
		Instrument: "USDJPY",
		Candles: map[core.Timeframe][]core.Candle{
			core.TimeframeM5: {{
				Instrument: "USDJPY", Time: at,
				Open: 155.000, High: 155.020, Low: 154.980, Close: 155.010,
				Volume: 100, Complete: true,
			}},
		},
	}

	eng.ingest(snap)
	assert.Equal(t, 1, store.Overshoot.Len())

	// the same bar again is a replacement, not a new extreme
	eng.ingest(snap)
	assert.Equal(t, 1, store.Overshoot.Len())

	snap.Candles[core.TimeframeM5][0].Time = at.Add(5 * time.Minute)
	eng.ingest(snap)
	assert.Equal(t, 2, store.Overshoot.Len())
}
