package core

import "fmt"

// Reason is a machine-readable code explaining a skipped or failed stage
type Reason string

// Reason codes emitted by the decision pipeline
const (
	ReasonNone                Reason = ""
	ReasonQuietHours          Reason = "quiet_hours"
	ReasonPivotProximity      Reason = "pivot_proximity"
	ReasonWideSpread          Reason = "wide_spread"
	ReasonVolatilitySpike     Reason = "volatility_spike"
	ReasonUntradeable         Reason = "untradeable"
	ReasonATRFloor            Reason = "atr_floor"
	ReasonBBWidthFloor        Reason = "bb_width_floor"
	ReasonNoRSICross          Reason = "no_rsi_cross"
	ReasonRapidReversal       Reason = "rapid_reversal"
	ReasonCounterTrend        Reason = "counter_trend"
	ReasonOvershoot           Reason = "overshoot"
	ReasonCandleBias          Reason = "candle_bias"
	ReasonCompositeScore      Reason = "composite_score"
	ReasonInsufficientHistory Reason = "insufficient_history"
	ReasonReentryCooldown     Reason = "reentry_cooldown"
	ReasonNoTradeRegime       Reason = "no_trade_regime"
	ReasonNoCandidate         Reason = "no_candidate"
	ReasonMinNetTP            Reason = "min_net_tp"
	ReasonInvalidLimitPrice   Reason = "invalid_limit_price"
	ReasonMinRRR              Reason = "min_rrr"
	ReasonNegativeEV          Reason = "negative_ev"
	ReasonMinTPProb           Reason = "min_tp_prob"
	ReasonZeroLot             Reason = "zero_lot"
	ReasonGatewayError        Reason = "gateway_error"
	ReasonAdvisorError        Reason = "advisor_error"
)

// FailKind classifies a failed outcome per the error taxonomy
type FailKind string

// Failure kinds
const (
	FailValidation FailKind = "validation"
	FailTransient  FailKind = "transient"
	FailStale      FailKind = "stale"
	FailFatal      FailKind = "fatal"
	FailInvariant  FailKind = "invariant"
)

// OutcomeStatus tags the result of a pipeline stage
type OutcomeStatus int

// Outcome statuses
const (
	StatusOk OutcomeStatus = iota
	StatusSkipped
	StatusFailed
)

// Outcome is the tagged result propagated between pipeline stages.
// Only a fatal failure aborts the tick.
type Outcome struct {
	Status OutcomeStatus
	Reason Reason
	Kind   FailKind
	Err    error
}

// Ok returns a successful outcome
func Ok() Outcome {
	return Outcome{Status: StatusOk}
}

// Skip returns a locally recovered outcome carrying its reason code
func Skip(reason Reason) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// Fail returns a failed outcome with its kind and underlying error
func Fail(kind FailKind, reason Reason, err error) Outcome {
	return Outcome{Status: StatusFailed, Kind: kind, Reason: reason, Err: err}
}

// IsOk reports whether the stage succeeded
func (o Outcome) IsOk() bool {
	return o.Status == StatusOk
}

// Fatal reports whether the outcome must abort the tick
func (o Outcome) Fatal() bool {
	return o.Status == StatusFailed && (o.Kind == FailFatal || o.Kind == FailInvariant)
}

// String renders the outcome as a reason code plus human-readable detail
func (o Outcome) String() string {
	switch o.Status {
	case StatusOk:
		return "ok"
	case StatusSkipped:
		return fmt.Sprintf("skip(%s)", o.Reason)
	default:
		return fmt.Sprintf("fail(%s/%s): %v", o.Kind, o.Reason, o.Err)
	}
}
