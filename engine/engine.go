// Package engine drives the decision pipeline: one serial pass per tick from
// market snapshot through indicators, regime, mode, filters, plan validation,
// sizing and submission, with the position supervisor running first.
package engine

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/filter"
	"github.com/hiroq/fxcore/indicator"
	"github.com/hiroq/fxcore/logger"
	"github.com/hiroq/fxcore/mode"
	"github.com/hiroq/fxcore/order"
	"github.com/hiroq/fxcore/plan"
	"github.com/hiroq/fxcore/regime"
	"github.com/hiroq/fxcore/risk"
	"github.com/hiroq/fxcore/state"
	"github.com/hiroq/fxcore/supervisor"
)

// Timeframes the engine maintains
var engineTimeframes = []core.Timeframe{
	core.TimeframeM1,
	core.TimeframeM5,
	core.TimeframeM15,
	core.TimeframeH1,
	core.TimeframeH4,
	core.TimeframeD1,
}

// advisorBox wraps the advisor interface for atomic swapping
type advisorBox struct {
	advisor core.TradeAdvisor
}

// Engine owns the per-instrument decision loop
type Engine struct {
	cfg     *config.Config
	log     logger.Logger
	gateway core.BrokerGateway
	store   *state.Store

	params     indicator.Params
	classifier *regime.Classifier
	selector   *mode.Selector
	cascade    *filter.Cascade
	validator  *plan.Validator
	sizer      *risk.Sizer
	coord      *order.Coordinator
	super      *supervisor.Supervisor

	advisor atomic.Pointer[advisorBox]

	frames     map[core.Timeframe]*core.Dataframe
	lastM5Time time.Time
	lastTick   time.Duration
	ticked     bool
}

// New wires the pipeline components into an engine
func New(
	cfg *config.Config,
	gateway core.BrokerGateway,
	store *state.Store,
	coord *order.Coordinator,
	super *supervisor.Supervisor,
	scorer core.PatternScorer,
	log logger.Logger,
) *Engine {
	frames := make(map[core.Timeframe]*core.Dataframe, len(engineTimeframes))
	for _, tf := range engineTimeframes {
		frames[tf] = core.NewDataframe(cfg.Instrument, tf)
	}

	e := &Engine{
		cfg:        cfg,
		log:        log,
		gateway:    gateway,
		store:      store,
		params:     indicator.DefaultParams(),
		classifier: regime.NewClassifier(cfg, log),
		selector:   mode.NewSelector(cfg, log),
		cascade:    filter.NewCascade(cfg, store, scorer, log),
		validator:  plan.NewValidator(cfg, log),
		sizer:      risk.NewSizer(cfg, log),
		coord:      coord,
		super:      super,
		frames:     frames,
	}
	e.advisor.Store(&advisorBox{})
	return e
}

// SetAdvisor atomically swaps the advisor used from the next tick on. The
// policy updater calls this from its own goroutine.
func (e *Engine) SetAdvisor(advisor core.TradeAdvisor) {
	e.advisor.Store(&advisorBox{advisor: advisor})
}

// Warmup preloads enough candle history for the indicator lookbacks
func (e *Engine) Warmup(ctx context.Context) error {
	snap, err := e.snapshot(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, tf := range engineTimeframes {
		total += len(snap.Candles[tf])
	}
	bar := progressbar.Default(int64(total))

	for _, tf := range engineTimeframes {
		for _, candle := range snap.Candles[tf] {
			e.frames[tf].Update(candle, false)
			if err := bar.Add(1); err != nil {
				e.log.Warnf("update progressbar fail: %v", err)
			}
		}
		indicator.Fill(e.frames[tf], e.params)
	}
	e.log.Infof("warmup complete, %d candles preloaded", total)
	return nil
}

// Tick runs one full pass. The returned outcome explains why no entry was
// made; only fatal outcomes should stop the loop.
func (e *Engine) Tick(ctx context.Context) core.Outcome {
	advisor := e.advisor.Load().advisor

	catchUp := e.ticked && e.store.Clock.Monotonic()-e.lastTick > 2*e.cfg.Cadence
	if catchUp {
		e.log.Warn("tick missed, running catch-up pass")
	}
	e.lastTick = e.store.Clock.Monotonic()
	e.ticked = true

	snap, err := e.snapshot(ctx)
	if err != nil {
		// Supervision still runs on the cached frames
		e.log.Warnf("snapshot unavailable: %v", err)
		if mctx := e.cachedContext(); mctx != nil {
			e.super.Run(ctx, mctx, advisor)
		}
		return core.Fail(core.FailTransient, core.ReasonGatewayError, err)
	}
	e.ingest(snap)

	pip := core.PipSize(e.cfg.Instrument)
	mctx := &core.MarketContext{
		Instrument: e.cfg.Instrument,
		Frames:     e.frames,
		Tick:       snap.Tick,
		SpreadPips: snap.Tick.Spread() / pip,
		Now:        e.store.Clock.Now(),
	}

	// Supervision needs no account data and must not miss a tick over it
	if out := e.super.Run(ctx, mctx, advisor); out.Fatal() {
		return out
	}

	account, err := e.account(ctx)
	if err != nil {
		e.log.Warnf("account unavailable: %v", err)
		return core.Fail(core.FailTransient, core.ReasonGatewayError, err)
	}
	mctx.Account = account

	return e.entryPipeline(ctx, mctx, advisor)
}

// entryPipeline runs regime, mode, cascade, plan, sizing and submission
func (e *Engine) entryPipeline(ctx context.Context, mctx *core.MarketContext, advisor core.TradeAdvisor) core.Outcome {
	m5 := mctx.Frame(core.TimeframeM5)

	rgm := e.classifier.Classify(m5, e.dailyATRPercentile())
	rgm = e.adviseRegime(ctx, mctx, advisor, rgm)
	if rgm.Kind == core.RegimeNoTrade {
		return core.Skip(core.ReasonNoTradeRegime)
	}

	tradeMode := e.selector.Select(ctx, mctx, m5, rgm, e.overshootFlag(mctx, m5), advisor)
	if tradeMode == core.ModeNoTrade {
		return core.Skip(core.ReasonNoTradeRegime)
	}

	side, ok := mode.DecideEntry(tradeMode, rgm, m5)
	if !ok {
		return core.Skip(core.ReasonNoCandidate)
	}

	tradeable := e.tradeable(ctx)
	side, out := e.cascade.Apply(mctx, filter.Input{
		Regime:    rgm,
		Mode:      tradeMode,
		Side:      side,
		Tradeable: tradeable,
	})
	if !out.IsOk() {
		return out
	}

	entry := e.proposePlan(ctx, mctx, advisor, tradeMode, side)

	atrPips := 0.0
	if atr := indicator.Latest(m5, indicator.KeyATR); !indicator.IsNull(atr) {
		atrPips = atr / core.PipSize(mctx.Instrument)
	}
	entry, out = e.validator.Validate(entry, atrPips, mctx.SpreadPips)
	if !out.IsOk() {
		return out
	}

	lot, out := e.sizer.Size(mctx.Account, entry.SLPips)
	if !out.IsOk() {
		return out
	}
	entry.Lot = lot

	return e.coord.Submit(ctx, mctx.Instrument, entry)
}

// proposePlan asks the advisor for a plan under its cooldown bucket and
// falls back to the ATR rule plan
func (e *Engine) proposePlan(ctx context.Context, mctx *core.MarketContext, advisor core.TradeAdvisor, tradeMode core.TradeMode, side core.Side) core.EntryPlan {
	if advisor != nil && !e.store.Cooldowns.Active(state.BucketEntryAI, e.cfg.Cadence) {
		e.store.Cooldowns.Touch(state.BucketEntryAI)

		cctx, cancel := context.WithTimeout(ctx, e.cfg.CallDeadline)
		proposed, err := advisor.ProposePlan(cctx, mctx)
		cancel()
		if err == nil && proposed != nil && proposed.Side == side {
			if proposed.Exec == core.ExecLimit && proposed.LimitPrice <= 0 {
				e.log.Warn("advisor limit plan carries no limit price, discarded")
			} else {
				proposed.TradeMode = tradeMode
				return *proposed
			}
		}
	}
	return e.rulePlan(mctx, tradeMode, side)
}

// rulePlan derives TP/SL from the current M5 ATR. Scalp momentum entries go
// in as limit orders at a small offset; everything else enters at market.
func (e *Engine) rulePlan(mctx *core.MarketContext, tradeMode core.TradeMode, side core.Side) core.EntryPlan {
	pip := core.PipSize(mctx.Instrument)
	atrPips := 10.0
	if m5 := mctx.Frame(core.TimeframeM5); m5 != nil {
		if atr := indicator.Latest(m5, indicator.KeyATR); !indicator.IsNull(atr) {
			atrPips = atr / pip
		}
	}

	p := core.EntryPlan{
		Side:      side,
		TPPips:    atrPips * e.cfg.TPATRMult,
		SLPips:    atrPips * e.cfg.ATRSLMult,
		TPProb:    0.6,
		SLProb:    0.4,
		Exec:      core.ExecMarket,
		TradeMode: tradeMode,
	}

	if tradeMode == core.ModeScalpMomentum {
		offset := e.cfg.LimitOffsetPips * pip
		price := mctx.Tick.Mid() - offset
		if side == core.SideShort {
			price = mctx.Tick.Mid() + offset
		}
		p.Exec = core.ExecLimit
		p.LimitPrice = core.RoundToInstrument(mctx.Instrument, price)
		p.ValidForSec = e.cfg.LimitValidFor
	}
	return p
}

// adviseRegime lets the advisor override the rule classifier when its best
// probability is decisive, throttled by the regime cooldown bucket
func (e *Engine) adviseRegime(ctx context.Context, mctx *core.MarketContext, advisor core.TradeAdvisor, rgm core.Regime) core.Regime {
	if advisor == nil || e.store.Cooldowns.Active(state.BucketRegimeAI, e.cfg.Cadence) {
		return rgm
	}
	e.store.Cooldowns.Touch(state.BucketRegimeAI)

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallDeadline)
	call, err := advisor.ClassifyRegime(cctx, mctx)
	cancel()
	if err != nil || call.Regime.Kind == "" {
		return rgm
	}
	if call.Probs[call.Regime.Kind] >= 0.6 {
		call.Regime.Score = rgm.Score
		return call.Regime
	}
	return rgm
}

// overshootFlag reports whether price sits beyond the adaptive band on
// either side
func (e *Engine) overshootFlag(mctx *core.MarketContext, m5 *core.Dataframe) bool {
	ema := indicator.Latest(m5, indicator.KeyEMAFast)
	atr := indicator.Latest(m5, indicator.KeyATR)
	if indicator.IsNull(ema) || indicator.IsNull(atr) {
		return false
	}
	price := mctx.Tick.Mid()
	return e.store.Overshoot.Overshot(price, ema, atr, e.cfg.OvershootATRMult, true) ||
		e.store.Overshoot.Overshot(price, ema, atr, e.cfg.OvershootATRMult, false)
}

// dailyATRPercentile ranks the current daily ATR against its own history
func (e *Engine) dailyATRPercentile() float64 {
	d1 := e.frames[core.TimeframeD1]
	if d1 == nil || d1.Metadata == nil {
		return indicator.Null
	}
	history := d1.Metadata[indicator.KeyATR].Values()
	if len(history) == 0 {
		return indicator.Null
	}
	current := history[len(history)-1]
	if indicator.IsNull(current) {
		return indicator.Null
	}
	return indicator.PercentileRank(current, history)
}

// ingest folds the snapshot into the frames, refreshes indicators and feeds
// newly completed M5 candles into the overshoot window
func (e *Engine) ingest(snap core.Snapshot) {
	retain := e.params.WarmupPeriod() * 4

	for _, tf := range engineTimeframes {
		df := e.frames[tf]
		for _, candle := range snap.Candles[tf] {
			df.Update(candle, false)
		}
		df.Trim(retain)
		indicator.Fill(df, e.params)
	}

	m5 := e.frames[core.TimeframeM5]
	if m5.Len() > 0 {
		last := m5.LastCandle()
		if last.Time.After(e.lastM5Time) {
			e.store.Overshoot.Push(last.High, last.Low)
			e.lastM5Time = last.Time
		}
	}
}

// cachedContext builds a context from the frames of the previous tick, used
// for supervision when the snapshot fails
func (e *Engine) cachedContext() *core.MarketContext {
	m5 := e.frames[core.TimeframeM5]
	if m5 == nil || m5.Len() == 0 {
		return nil
	}
	last := m5.LastCandle()
	pip := core.PipSize(e.cfg.Instrument)
	tick := core.Tick{Instrument: e.cfg.Instrument, Time: last.Time, Bid: last.Close, Ask: last.Close}
	return &core.MarketContext{
		Instrument: e.cfg.Instrument,
		Frames:     e.frames,
		Tick:       tick,
		SpreadPips: tick.Spread() / pip,
		Now:        e.store.Clock.Now(),
	}
}

func (e *Engine) snapshot(ctx context.Context) (core.Snapshot, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallDeadline)
	defer cancel()
	return e.gateway.MarketSnapshot(cctx, e.cfg.Instrument, engineTimeframes)
}

func (e *Engine) account(ctx context.Context) (core.Account, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallDeadline)
	defer cancel()
	return e.gateway.Account(cctx)
}

func (e *Engine) tradeable(ctx context.Context) bool {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallDeadline)
	defer cancel()
	ok, err := e.gateway.InstrumentTradeable(cctx, e.cfg.Instrument)
	if err != nil {
		e.log.Warnf("tradeable check failed: %v", err)
		return false
	}
	return ok
}

// Run drives ticks at the configured cadence until the context is cancelled.
// Scalp cadence takes over while scalp trades are being supervised.
func (e *Engine) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		out := e.Tick(ctx)
		if out.Fatal() {
			return out.Err
		}
		if !out.IsOk() {
			e.log.WithField("outcome", out.String()).Debug("tick finished without entry")
		}

		timer.Reset(e.cadence())
	}
}

// cadence shortens the tick interval while a scalp trade is open
func (e *Engine) cadence() time.Duration {
	for _, ts := range e.store.Trades() {
		if ts.Mode.IsScalp() && !ts.CloseSent {
			return e.cfg.ScalpCadence
		}
	}
	return e.cfg.Cadence
}

// PrintSummary writes the closed-trade table and return histogram
func (e *Engine) PrintSummary(w io.Writer) {
	summary := e.super.Summary()
	if summary == nil {
		return
	}
	if _, err := io.WriteString(w, summary.String()); err != nil {
		return
	}
	if err := summary.PrintReturns(w); err != nil {
		e.log.Warnf("histogram render failed: %v", err)
	}
}
