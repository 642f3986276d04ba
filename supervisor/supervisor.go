// Package supervisor manages the lifecycle of open positions and working
// limit orders: stale-limit aging, trailing stops, scalp hold-time,
// momentum-loss exits and reentry cooldown bookkeeping.
package supervisor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/StudioSol/set"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/indicator"
	"github.com/hiroq/fxcore/logger"
	"github.com/hiroq/fxcore/order"
	"github.com/hiroq/fxcore/state"
)

// Supervisor inspects broker state once per tick and applies the exit rules
type Supervisor struct {
	cfg      *config.Config
	log      logger.Logger
	gateway  core.BrokerGateway
	store    *state.Store
	coord    *order.Coordinator
	trades   core.TradeStorage // optional
	summary  *order.TradeSummary
	notifier core.Notifier // optional

	finalized *set.LinkedHashSetString // trade ids already written out
}

// NewSupervisor creates a position supervisor. trades and notifier may be nil.
func NewSupervisor(
	cfg *config.Config,
	gateway core.BrokerGateway,
	store *state.Store,
	coord *order.Coordinator,
	trades core.TradeStorage,
	summary *order.TradeSummary,
	notifier core.Notifier,
	log logger.Logger,
) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		log:       log,
		gateway:   gateway,
		store:     store,
		coord:     coord,
		trades:    trades,
		summary:   summary,
		notifier:  notifier,
		finalized: set.NewLinkedHashSetString(),
	}
}

// Summary exposes the accumulated closed-trade statistics
func (s *Supervisor) Summary() *order.TradeSummary {
	return s.summary
}

// Run executes one supervision pass. Gateway failures skip the pass; the
// ledgers are only mutated from committed broker responses.
func (s *Supervisor) Run(ctx context.Context, mctx *core.MarketContext, advisor core.TradeAdvisor) core.Outcome {
	passStart := s.store.Clock.Monotonic()

	positions, err := s.gateway.OpenPositions(ctx)
	if err != nil {
		s.log.Warnf("open positions unavailable: %v", err)
		return core.Skip(core.ReasonGatewayError)
	}
	pendings, err := s.gateway.PendingOrders(ctx, mctx.Instrument)
	if err != nil {
		s.log.Warnf("pending orders unavailable: %v", err)
		return core.Skip(core.ReasonGatewayError)
	}

	s.reconcile(positions, pendings)
	s.agePendingLimits(ctx, mctx, advisor, pendings)
	s.superviseOpen(ctx, mctx, advisor, positions)
	s.finalizeClosed(mctx, positions, passStart)
	return core.Ok()
}

// reconcile drops ledger records the broker no longer recognizes. A record
// whose order vanished while a position carries its id has filled; anything
// else is stale.
func (s *Supervisor) reconcile(positions []core.PositionRecord, pendings []core.PendingOrder) {
	known := set.NewLinkedHashSetString()
	for _, p := range pendings {
		known.Add(p.OrderID)
	}

	for _, rec := range s.store.Pendings() {
		if known.InArray(rec.OrderID) {
			continue
		}

		if pos, ok := positionByID(positions, rec.PositionID); ok {
			rec.State = core.PendingFilled
			s.trackFill(rec, pos)
		} else {
			s.log.WithField("uuid", rec.UUID).Info("dropping stale pending limit")
		}
		s.store.RemovePending(rec.UUID)
	}
}

// trackFill starts supervising a limit order that filled into a position
func (s *Supervisor) trackFill(rec *core.PendingLimitRecord, pos core.PositionRecord) {
	if s.store.Trade(pos.TradeID) != nil {
		return
	}

	pip := core.PipSize(rec.Instrument)
	slPrice := pos.AvgPrice - rec.SLPips*pip
	tpPrice := pos.AvgPrice + rec.TPPips*pip
	if rec.Side == core.SideShort {
		slPrice = pos.AvgPrice + rec.SLPips*pip
		tpPrice = pos.AvgPrice - rec.TPPips*pip
	}
	s.store.TrackTrade(&state.TradeState{
		TradeID:    pos.TradeID,
		Instrument: rec.Instrument,
		Side:       rec.Side,
		Mode:       rec.TradeMode,
		PositionID: rec.PositionID,
		OpenedAt:   s.store.Clock.Monotonic(),
		EntryPrice: pos.AvgPrice,
		SLPrice:    core.RoundToInstrument(rec.Instrument, slPrice),
		TPPrice:    core.RoundToInstrument(rec.Instrument, tpPrice),
	})
}

// agePendingLimits converts or renews limits that outlived their age budget
func (s *Supervisor) agePendingLimits(ctx context.Context, mctx *core.MarketContext, advisor core.TradeAdvisor, pendings []core.PendingOrder) {
	live := set.NewLinkedHashSetString()
	for _, p := range pendings {
		live.Add(p.OrderID)
	}

	m5 := mctx.Frame(core.TimeframeM5)
	pip := core.PipSize(mctx.Instrument)
	price := mctx.Tick.Mid()

	for _, rec := range s.store.Pendings() {
		if !live.InArray(rec.OrderID) {
			continue
		}
		age := s.store.Clock.Monotonic() - rec.PlacedAt
		if age <= s.cfg.MaxLimitAge {
			continue
		}
		rec.State = core.PendingAged

		if s.shouldConvert(mctx, m5, rec, price, pip) && s.advisorConfirms(ctx, mctx, advisor, rec.Side) {
			s.convertToMarket(ctx, rec)
			continue
		}

		// Renewal waits out a growing backoff before re-placing
		if age <= s.cfg.MaxLimitAge+s.coord.RenewalDelay(rec.RetryCount) {
			continue
		}
		if rec.RetryCount >= s.cfg.MaxLimitRetry {
			s.cancelFinal(ctx, rec)
			continue
		}
		s.renew(ctx, rec, price, pip)
	}
}

// shouldConvert checks the price-deviation and trend-strength conditions for
// a market conversion
func (s *Supervisor) shouldConvert(mctx *core.MarketContext, m5 *core.Dataframe, rec *core.PendingLimitRecord, price, pip float64) bool {
	if m5 == nil {
		return false
	}
	atr := indicator.Latest(m5, indicator.KeyATR)
	adx := indicator.Latest(m5, indicator.KeyADX)
	if indicator.IsNull(atr) || indicator.IsNull(adx) {
		return false
	}

	deviationPips := math.Abs(price-rec.LimitPrice) / pip
	return deviationPips > s.cfg.LimitThresholdATR*(atr/pip) && adx >= s.cfg.ConvertMinADX
}

// advisorConfirms asks the advisor for a fresh plan and accepts the
// conversion when it still wants the same side. A missing advisor confirms;
// a failing one does not.
func (s *Supervisor) advisorConfirms(ctx context.Context, mctx *core.MarketContext, advisor core.TradeAdvisor, side core.Side) bool {
	if advisor == nil {
		return true
	}
	plan, err := advisor.ProposePlan(ctx, mctx)
	if err != nil || plan == nil {
		return false
	}
	return plan.Side == side
}

// convertToMarket cancels the limit and enters at market under the same
// position id and uuid
func (s *Supervisor) convertToMarket(ctx context.Context, rec *core.PendingLimitRecord) {
	if err := s.gateway.CancelOrder(ctx, rec.OrderID); err != nil {
		s.log.Warnf("cancel before conversion failed: %v", err)
		return
	}

	comment, err := (core.OrderComment{PositionID: rec.PositionID, UUID: rec.UUID, Mode: rec.TradeMode}).Encode()
	if err != nil {
		s.log.Errorf("conversion comment: %v", err)
		return
	}
	result, err := s.gateway.PlaceMarketWithTPSL(ctx, core.MarketOrderRequest{
		Instrument: rec.Instrument,
		Units:      rec.Units,
		Side:       rec.Side,
		TPPips:     rec.TPPips,
		SLPips:     rec.SLPips,
		Comment:    comment,
	})
	if err != nil {
		s.log.Warnf("market conversion failed, retrying next tick: %v", err)
		return
	}

	rec.State = core.PendingConverted
	s.store.RemovePending(rec.UUID)
	s.trackFill(rec, core.PositionRecord{
		TradeID:  result.TradeID,
		AvgPrice: result.FillPrice,
	})
	s.log.WithField("uuid", rec.UUID).Info("stale limit converted to market")
}

// renew cancels and re-places the limit at a fresh offset from the current
// price, bumping the retry count
func (s *Supervisor) renew(ctx context.Context, rec *core.PendingLimitRecord, price, pip float64) {
	if err := s.gateway.CancelOrder(ctx, rec.OrderID); err != nil {
		s.log.Warnf("cancel before renewal failed: %v", err)
		return
	}

	newPrice := price - s.cfg.LimitOffsetPips*pip
	if rec.Side == core.SideShort {
		newPrice = price + s.cfg.LimitOffsetPips*pip
	}
	newPrice = core.RoundToInstrument(rec.Instrument, newPrice)

	comment, err := (core.OrderComment{PositionID: rec.PositionID, UUID: rec.UUID, Mode: rec.TradeMode}).Encode()
	if err != nil {
		s.log.Errorf("renewal comment: %v", err)
		return
	}
	result, err := s.gateway.PlaceLimit(ctx, core.LimitOrderRequest{
		Instrument:  rec.Instrument,
		Units:       rec.Units,
		Side:        rec.Side,
		LimitPrice:  newPrice,
		TPPips:      rec.TPPips,
		SLPips:      rec.SLPips,
		Comment:     comment,
		ValidForSec: s.cfg.LimitValidFor,
	})
	if err != nil {
		s.log.Warnf("limit renewal failed, record dropped: %v", err)
		s.store.RemovePending(rec.UUID)
		return
	}

	rec.OrderID = result.OrderID
	rec.LimitPrice = newPrice
	rec.PlacedAt = s.store.Clock.Monotonic()
	rec.RetryCount++
	rec.State = core.PendingRenewed
	s.log.WithField("uuid", rec.UUID).
		Infof("limit renewed at %s (retry %d)", core.FormatPrice(rec.Instrument, newPrice), rec.RetryCount)
}

func (s *Supervisor) cancelFinal(ctx context.Context, rec *core.PendingLimitRecord) {
	if err := s.gateway.CancelOrder(ctx, rec.OrderID); err != nil {
		s.log.Warnf("final cancel failed, retrying next tick: %v", err)
		return
	}
	rec.State = core.PendingCancelled
	s.store.RemovePending(rec.UUID)
	s.log.WithField("uuid", rec.UUID).Info("pending limit cancelled after retry budget")
}

// superviseOpen applies trailing, hold-time, momentum and advisor exit rules
// to every open position
func (s *Supervisor) superviseOpen(ctx context.Context, mctx *core.MarketContext, advisor core.TradeAdvisor, positions []core.PositionRecord) {
	m5 := mctx.Frame(core.TimeframeM5)

	for _, pos := range positions {
		if pos.Instrument != mctx.Instrument {
			continue
		}

		ts := s.store.Trade(pos.TradeID)
		if ts == nil {
			ts = s.adopt(pos)
		}
		if ts.CloseSent {
			continue
		}

		s.updateExtremes(ts, m5, pos)
		s.applyTrailing(ctx, mctx, ts, m5, pos)

		if ts.Mode.IsScalp() {
			if s.holdExpired(mctx, ts) {
				s.close(ctx, mctx, ts, "hold time expired")
				continue
			}
			if s.momentumLost(m5, ts.Side) {
				s.close(ctx, mctx, ts, "momentum lost")
				continue
			}
		}

		s.advisorExit(ctx, mctx, advisor, ts, pos)
	}
}

// adopt starts tracking a position opened before this process, or whose
// tracking state was lost
func (s *Supervisor) adopt(pos core.PositionRecord) *state.TradeState {
	ts := &state.TradeState{
		TradeID:    pos.TradeID,
		Instrument: pos.Instrument,
		Side:       pos.Side,
		Mode:       core.ModeTrendFollow,
		PositionID: pos.PositionID,
		OpenedAt:   s.store.Clock.Monotonic(),
		EntryPrice: pos.AvgPrice,
		SLPrice:    pos.SLPrice,
		TPPrice:    pos.TPPrice,
	}
	s.store.TrackTrade(ts)
	return ts
}

// updateExtremes folds the latest completed candle into the running hh/ll
func (s *Supervisor) updateExtremes(ts *state.TradeState, m5 *core.Dataframe, pos core.PositionRecord) {
	if ts.HighestHigh == 0 {
		ts.HighestHigh = pos.AvgPrice
	}
	if ts.LowestLow == 0 {
		ts.LowestLow = pos.AvgPrice
	}
	if m5 == nil || m5.Len() == 0 {
		return
	}
	candle := m5.LastCandle()
	ts.HighestHigh = math.Max(ts.HighestHigh, candle.High)
	ts.LowestLow = math.Min(ts.LowestLow, candle.Low)
}

// applyTrailing moves the stop along the Chandelier level, never loosening.
// Scalp children only trail after TP1 when configured.
func (s *Supervisor) applyTrailing(ctx context.Context, mctx *core.MarketContext, ts *state.TradeState, m5 *core.Dataframe, pos core.PositionRecord) {
	if ts.Mode != core.ModeTrendFollow && !(ts.TP1Filled && s.cfg.TrailAfterTP1) {
		return
	}
	if m5 == nil {
		return
	}
	atr := indicator.Latest(m5, indicator.KeyATR)
	if indicator.IsNull(atr) {
		return
	}

	var proposed float64
	if ts.Side == core.SideLong {
		proposed = ts.HighestHigh - s.cfg.ChandelierATRMult*atr
		if proposed <= ts.TrailingSL || (ts.SLPrice != 0 && proposed <= ts.SLPrice) {
			return
		}
	} else {
		proposed = ts.LowestLow + s.cfg.ChandelierATRMult*atr
		if ts.TrailingSL != 0 && proposed >= ts.TrailingSL {
			return
		}
		if ts.SLPrice != 0 && proposed >= ts.SLPrice {
			return
		}
	}

	proposed = core.RoundToInstrument(mctx.Instrument, proposed)
	if err := s.gateway.ModifyStopLoss(ctx, ts.TradeID, proposed); err != nil {
		s.log.Warnf("stop modification failed, retrying next tick: %v", err)
		return
	}
	ts.TrailingSL = proposed
	ts.SLPrice = proposed
}

// holdExpired checks the dynamic scalp hold budget derived from M1 ATR
func (s *Supervisor) holdExpired(mctx *core.MarketContext, ts *state.TradeState) bool {
	hold := s.cfg.HoldMax
	if m1 := mctx.Frame(core.TimeframeM1); m1 != nil {
		atr := indicator.Latest(m1, indicator.KeyATR)
		if !indicator.IsNull(atr) {
			pip := core.PipSize(mctx.Instrument)
			secs := atr / pip / 0.006
			hold = clampDuration(time.Duration(secs*float64(time.Second)), s.cfg.HoldMin, s.cfg.HoldMax)
		}
	}
	return s.store.Clock.Monotonic()-ts.OpenedAt > hold
}

// momentumLost requires all three reversal signals at once: EMA gradient,
// RSI crossing 50, and MACD histogram flipping, each against the position
func (s *Supervisor) momentumLost(m5 *core.Dataframe, side core.Side) bool {
	if m5 == nil {
		return false
	}

	emaNow := indicator.At(m5, indicator.KeyEMAFast, 0)
	emaPrev := indicator.At(m5, indicator.KeyEMAFast, 1)
	rsiNow := indicator.At(m5, indicator.KeyRSI, 0)
	rsiPrev := indicator.At(m5, indicator.KeyRSI, 1)
	histNow := indicator.At(m5, indicator.KeyMACDHist, 0)
	histPrev := indicator.At(m5, indicator.KeyMACDHist, 1)
	for _, v := range []float64{emaNow, emaPrev, rsiNow, rsiPrev, histNow, histPrev} {
		if indicator.IsNull(v) {
			return false
		}
	}

	if side == core.SideLong {
		return emaNow < emaPrev && rsiNow < 50 && rsiPrev >= 50 && histNow < 0 && histPrev >= 0
	}
	return emaNow > emaPrev && rsiNow > 50 && rsiPrev <= 50 && histNow > 0 && histPrev <= 0
}

// advisorExit consults the exit advisor under its cooldown bucket
func (s *Supervisor) advisorExit(ctx context.Context, mctx *core.MarketContext, advisor core.TradeAdvisor, ts *state.TradeState, pos core.PositionRecord) {
	if advisor == nil || s.store.Cooldowns.Active(state.BucketExitAI, s.cfg.Cadence) {
		return
	}
	s.store.Cooldowns.Touch(state.BucketExitAI)

	call, err := advisor.ExitDecision(ctx, mctx, pos)
	if err != nil {
		return
	}
	if call.Action == core.ExitActionExit && call.Confidence >= 0.5 {
		s.close(ctx, mctx, ts, "advisor exit: "+call.Reason)
	}
}

// close issues the position close exactly once per trade
func (s *Supervisor) close(ctx context.Context, mctx *core.MarketContext, ts *state.TradeState, why string) {
	if err := s.gateway.ClosePosition(ctx, mctx.Instrument, ts.Side); err != nil {
		s.log.Warnf("close failed, retrying next tick: %v", err)
		return
	}
	ts.CloseSent = true
	s.log.WithField("trade_id", ts.TradeID).Info("position closed: " + why)
	if s.notifier != nil {
		s.notifier.Notify(fmt.Sprintf("closed %s %s: %s", mctx.Instrument, ts.Side, why))
	}
}

// finalizeClosed settles tracked trades whose positions are gone: records
// the result, arms the reentry cooldown on stop-loss exits and flags TP1 on
// a surviving sibling child.
func (s *Supervisor) finalizeClosed(mctx *core.MarketContext, positions []core.PositionRecord, passStart time.Duration) {
	live := set.NewLinkedHashSetString()
	for _, pos := range positions {
		live.Add(pos.TradeID)
	}
	m5 := mctx.Frame(core.TimeframeM5)

	for _, ts := range s.store.Trades() {
		if live.InArray(ts.TradeID) || s.finalized.InArray(ts.TradeID) {
			continue
		}
		// A fill tracked during this pass postdates the positions snapshot
		if ts.OpenedAt >= passStart {
			continue
		}
		s.finalized.Add(ts.TradeID)
		s.settle(ts, m5)
		s.store.ForgetTrade(ts.TradeID)
	}
}

// settle prices a vanished position from its protective levels. The stop is
// the default estimate for an unsolicited close; the target is used only
// when the tracked extremes show it traded and the stop did not.
func (s *Supervisor) settle(ts *state.TradeState, m5 *core.Dataframe) {
	pip := core.PipSize(ts.Instrument)

	hh, ll := ts.HighestHigh, ts.LowestLow
	if hh == 0 {
		hh = ts.EntryPrice
	}
	if ll == 0 {
		ll = ts.EntryPrice
	}
	if m5 != nil && m5.Len() > 0 {
		candle := m5.LastCandle()
		hh = math.Max(hh, candle.High)
		ll = math.Min(ll, candle.Low)
	}

	tpHit := ts.TPPrice != 0 &&
		(ts.Side == core.SideLong && hh >= ts.TPPrice ||
			ts.Side == core.SideShort && ll <= ts.TPPrice)
	slHit := ts.SLPrice != 0 &&
		(ts.Side == core.SideLong && ll <= ts.SLPrice ||
			ts.Side == core.SideShort && hh >= ts.SLPrice)

	lastPrice := ts.SLPrice
	if tpHit && !slHit {
		lastPrice = ts.TPPrice
	}
	if lastPrice == 0 {
		lastPrice = ts.EntryPrice
	}

	profitPips := (lastPrice - ts.EntryPrice) / pip
	if ts.Side == core.SideShort {
		profitPips = -profitPips
	}

	stopLoss := !ts.CloseSent && ts.SLPrice != 0 && profitPips < 0
	if stopLoss {
		s.store.RecordStopLoss(ts.Side, ts.SLPrice)
	}
	if profitPips >= 0 {
		s.flagTP1Sibling(ts)
	}

	profitPct := 0.0
	if ts.EntryPrice != 0 {
		profitPct = profitPips * pip / ts.EntryPrice * 100
	}
	result := core.TradeResult{
		Instrument: ts.Instrument,
		Side:       ts.Side,
		PositionID: ts.PositionID,
		ProfitPips: profitPips,
		ProfitPct:  profitPct,
		StopLoss:   stopLoss,
		OpenedAt:   s.store.Clock.Now().Add(-(s.store.Clock.Monotonic() - ts.OpenedAt)),
		ClosedAt:   s.store.Clock.Now(),
	}
	if s.summary != nil {
		s.summary.Record(result)
	}
	if s.trades != nil {
		if err := s.trades.SaveTrade(context.Background(), &result); err != nil {
			s.log.Errorf("trade journal write failed: %v", err)
		}
	}
}

// flagTP1Sibling marks the remaining child of a split entry so trailing can
// take over
func (s *Supervisor) flagTP1Sibling(ts *state.TradeState) {
	for _, other := range s.store.Trades() {
		if other.TradeID != ts.TradeID && other.PositionID == ts.PositionID {
			other.TP1Filled = true
		}
	}
}

func positionByID(positions []core.PositionRecord, positionID string) (core.PositionRecord, bool) {
	for _, pos := range positions {
		if pos.PositionID == positionID {
			return pos, true
		}
	}
	return core.PositionRecord{}, false
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
