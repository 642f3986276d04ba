package core

import (
	"context"
	"time"
)

// Snapshot is one tick's view of the market for a single instrument
type Snapshot struct {
	Instrument string
	Candles    map[Timeframe][]Candle
	Tick       Tick
}

// MarketOrderRequest asks the gateway for a market order with attached TP/SL distances
type MarketOrderRequest struct {
	Instrument string
	Units      float64
	Side       Side
	TPPips     float64
	SLPips     float64
	Comment    string
}

// LimitOrderRequest asks the gateway for a working limit order
type LimitOrderRequest struct {
	Instrument  string
	Units       float64
	Side        Side
	LimitPrice  float64
	TPPips      float64
	SLPips      float64
	Comment     string
	ValidForSec int
}

// BrokerGateway is the broker/exchange adapter consumed by the core.
// All calls may fail transient (retry next tick) or fatal (surface); see GatewayError.
type BrokerGateway interface {
	MarketSnapshot(ctx context.Context, instrument string, tfs []Timeframe) (Snapshot, error)
	OpenPositions(ctx context.Context) ([]PositionRecord, error)
	PendingOrders(ctx context.Context, instrument string) ([]PendingOrder, error)
	PlaceMarketWithTPSL(ctx context.Context, req MarketOrderRequest) (OrderResult, error)
	PlaceLimit(ctx context.Context, req LimitOrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	ModifyStopLoss(ctx context.Context, tradeID string, newSLPrice float64) error
	ClosePosition(ctx context.Context, instrument string, side Side) error
	InstrumentTradeable(ctx context.Context, instrument string) (bool, error)
	Account(ctx context.Context) (Account, error)
}

// RegimeCall is an advisor regime opinion with per-kind probabilities
type RegimeCall struct {
	Regime Regime
	Probs  map[RegimeKind]float64
}

// ModeVote is a single advisor vote for a trade mode
type ModeVote struct {
	Mode TradeMode
	Prob float64
}

// ExitAction enumerates the advisor's exit opinions
type ExitAction string

// Exit actions
const (
	ExitActionExit  ExitAction = "EXIT"
	ExitActionHold  ExitAction = "HOLD"
	ExitActionScale ExitAction = "SCALE"
)

// ExitCall is the advisor's exit decision for an open position
type ExitCall struct {
	Action     ExitAction
	Confidence float64
	Reason     string
}

// TradeAdvisor biases regime, mode and plan choices. It is purely advisory:
// responses that fail parsing or violate invariants are discarded without error.
type TradeAdvisor interface {
	ClassifyRegime(ctx context.Context, mctx *MarketContext) (RegimeCall, error)
	SelectMode(ctx context.Context, mctx *MarketContext, n int) ([]ModeVote, error)
	ProposePlan(ctx context.Context, mctx *MarketContext) (*EntryPlan, error)
	ExitDecision(ctx context.Context, mctx *MarketContext, pos PositionRecord) (ExitCall, error)
}

// PatternScorer scores recent candles with a probability in [0,1]
type PatternScorer interface {
	Score(candles []Candle) (float64, error)
}

// Notifier receives human-facing events from the pipeline
type Notifier interface {
	Notify(string)
	OnOrder(order Order)
	OnError(err error)
}

// NotifierWithStart is a notifier that needs its own receive loop
type NotifierWithStart interface {
	Notifier
	Start()
}

// OrderStorage defines the interface for order journal operations
type OrderStorage interface {
	CreateOrder(ctx context.Context, order *Order) error
	UpdateOrder(ctx context.Context, order *Order) error
	Orders(ctx context.Context, filters ...OrderFilter) ([]*Order, error)
}

// TradeStorage persists closed-trade results
type TradeStorage interface {
	SaveTrade(ctx context.Context, trade *TradeResult) error
	Trades(ctx context.Context, instrument string) ([]*TradeResult, error)
}

// Clock separates the monotonic time source used by cooldowns from the
// wall clock used by session gates
type Clock interface {
	Now() time.Time
	Monotonic() time.Duration
}
