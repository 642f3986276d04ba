package core

import (
	"encoding/json"
	"fmt"
)

// Side represents the direction of a position or candidate entry
type Side string

// Position sides
const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the other side
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// TradeMode is the tagged trade-mode variant selected for a tick
type TradeMode string

// Available trade modes
const (
	ModeTrendFollow    TradeMode = "trend_follow"
	ModeScalpMomentum  TradeMode = "scalp_momentum"
	ModeScalpReversion TradeMode = "scalp_reversion"
	ModeMicroScalp     TradeMode = "micro_scalp"
	ModeNoTrade        TradeMode = "no_trade"
)

// IsScalp reports whether the mode is subject to scalp hold-time rules
func (m TradeMode) IsScalp() bool {
	return m == ModeScalpMomentum || m == ModeScalpReversion || m == ModeMicroScalp
}

// RegimeKind is the market regime classification tag
type RegimeKind string

// Regime kinds
const (
	RegimeTrend   RegimeKind = "trend"
	RegimeRange   RegimeKind = "range"
	RegimeGray    RegimeKind = "gray"
	RegimeNoTrade RegimeKind = "no_trade"
	RegimeBreak   RegimeKind = "break"
)

// Regime is a classified market regime with its optional direction and composite score
type Regime struct {
	Kind      RegimeKind
	Direction Side    // set for trend and break regimes
	Score     float64 // composite ADX/BB score used by the classifier
}

// IsTrend reports whether the regime is directional (trend or break)
func (r Regime) IsTrend() bool {
	return r.Kind == RegimeTrend || r.Kind == RegimeBreak
}

// ExecutionMode selects how an entry plan reaches the market
type ExecutionMode string

// Execution modes
const (
	ExecMarket ExecutionMode = "market"
	ExecLimit  ExecutionMode = "limit"
)

// EntryPlan is a fully specified entry request produced within a single tick.
// It is consumed by the order coordinator and never persisted across ticks.
type EntryPlan struct {
	Side        Side          `json:"side"`
	TPPips      float64       `json:"tp_pips"`
	SLPips      float64       `json:"sl_pips"`
	TPProb      float64       `json:"tp_prob"`
	SLProb      float64       `json:"sl_prob"`
	Exec        ExecutionMode `json:"mode"`
	LimitPrice  float64       `json:"limit_price,omitempty"`
	ValidForSec int           `json:"valid_for_sec,omitempty"`
	Lot         float64       `json:"lot"`
	TradeMode   TradeMode     `json:"trade_mode"`
}

// RRR returns the risk-reward ratio of the plan
func (p EntryPlan) RRR() float64 {
	if p.SLPips == 0 {
		return 0
	}
	return p.TPPips / p.SLPips
}

// ExpectedValue returns the probability-weighted pip expectancy
func (p EntryPlan) ExpectedValue() float64 {
	return p.TPPips*p.TPProb - p.SLPips*p.SLProb
}

// Marshal serializes the plan to JSON
func (p EntryPlan) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalEntryPlan parses a JSON-encoded entry plan
func UnmarshalEntryPlan(data []byte) (EntryPlan, error) {
	var p EntryPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return EntryPlan{}, fmt.Errorf("invalid entry plan: %w", err)
	}
	return p, nil
}
