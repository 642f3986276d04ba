// Package mode selects the trade mode for a tick by blending a rule-based
// selector with optional advisor votes.
package mode

import (
	"context"
	"math"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/indicator"
	"github.com/hiroq/fxcore/logger"
)

// StrongTrend is an advisor-only vote label collapsed into trend following
const StrongTrend core.TradeMode = "strong_trend"

// Selector blends rule output with advisor votes
type Selector struct {
	cfg *config.Config
	log logger.Logger
}

// NewSelector creates a mode selector
func NewSelector(cfg *config.Config, log logger.Logger) *Selector {
	return &Selector{cfg: cfg, log: log}
}

// Select returns the trade mode for the tick. The advisor may be nil.
// NoTrade is returned only when the regime itself is NoTrade or both
// selectors explicitly return NoTrade.
func (s *Selector) Select(
	ctx context.Context,
	mctx *core.MarketContext,
	df *core.Dataframe,
	regime core.Regime,
	overshootFlag bool,
	advisor core.TradeAdvisor,
) core.TradeMode {
	if regime.Kind == core.RegimeNoTrade {
		return core.ModeNoTrade
	}

	ruleMode := s.ruleSelect(df, regime, overshootFlag)

	advisorMode, confident := s.advisorSelect(ctx, mctx, advisor)
	if confident {
		s.log.WithField("mode", string(advisorMode)).Debug("advisor vote confident")
		if advisorMode == core.ModeNoTrade && ruleMode != core.ModeNoTrade {
			return ruleMode
		}
		return advisorMode
	}

	return ruleMode
}

// ruleSelect implements the deterministic selector.
// Range regimes fall through to scalp momentum.
func (s *Selector) ruleSelect(df *core.Dataframe, regime core.Regime, overshootFlag bool) core.TradeMode {
	if overshootFlag {
		return core.ModeScalpReversion
	}

	if s.trendStrength(df) > s.cfg.TrendThreshold {
		return core.ModeTrendFollow
	}
	if s.rangeScore(df) > s.cfg.RangeThreshold {
		return core.ModeScalpMomentum
	}
	return core.ModeScalpMomentum
}

// trendStrength is clamp(|ADX|/50) * clamp(|EMA slope in pips|/0.3)
func (s *Selector) trendStrength(df *core.Dataframe) float64 {
	adx := indicator.Latest(df, indicator.KeyADX)
	if indicator.IsNull(adx) {
		return 0
	}

	pip := core.PipSize(df.Instrument)
	slope := indicator.Slope(df.Metadata[indicator.KeyEMAFast].Values(), s.cfg.ADXSlopeLookback) / pip

	return clamp01(math.Abs(adx)/50) * clamp01(math.Abs(slope)/0.3)
}

// rangeScore is (1 - stddev_pct) * (1 - |EMA spread| / ATR)
func (s *Selector) rangeScore(df *core.Dataframe) float64 {
	atr := indicator.Latest(df, indicator.KeyATR)
	emaFast := indicator.Latest(df, indicator.KeyEMAFast)
	emaSlow := indicator.Latest(df, indicator.KeyEMASlow)
	if indicator.IsNull(atr) || atr == 0 || indicator.IsNull(emaFast) || indicator.IsNull(emaSlow) {
		return 0
	}

	closes := df.Close.Values()
	last := closes[len(closes)-1]
	if last == 0 {
		return 0
	}

	std := indicator.StdDev(closes, minInt(len(closes), 20), 1)
	stdPct := std[len(std)-1] / last
	if indicator.IsNull(stdPct) {
		return 0
	}

	return clamp01(1-stdPct) * clamp01(1-math.Abs(emaFast-emaSlow)/atr)
}

// advisorSelect consults the advisor n times worth of votes and applies the
// plurality rule. Returns low confidence when votes are unavailable or split.
func (s *Selector) advisorSelect(ctx context.Context, mctx *core.MarketContext, advisor core.TradeAdvisor) (core.TradeMode, bool) {
	if advisor == nil {
		return core.ModeNoTrade, false
	}

	votes, err := advisor.SelectMode(ctx, mctx, s.cfg.AdvisorVotes)
	if err != nil || len(votes) == 0 {
		// Advisory only: failures are discarded without error
		return core.ModeNoTrade, false
	}

	counts := make(map[core.TradeMode]int)
	best := votes[0]
	for _, v := range votes {
		m := normalizeVote(v.Mode)
		if m == "" {
			continue
		}
		counts[m]++
		if v.Prob > best.Prob {
			best = v
		}
	}

	var plurality core.TradeMode
	max := 0
	for m, n := range counts {
		if n > max {
			plurality, max = m, n
		}
	}

	if max >= s.cfg.StratVoteMin {
		return plurality, true
	}
	return normalizeVote(best.Mode), false
}

// normalizeVote maps advisor vote labels onto the core mode set, dropping
// anything unrecognized
func normalizeVote(m core.TradeMode) core.TradeMode {
	switch m {
	case StrongTrend:
		return core.ModeTrendFollow
	case core.ModeTrendFollow, core.ModeScalpMomentum, core.ModeScalpReversion, core.ModeMicroScalp, core.ModeNoTrade:
		return m
	}
	return ""
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
