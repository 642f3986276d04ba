package core

import (
	"time"
)

// OrderFilter defines a function type for filtering orders
type OrderFilter func(order Order) bool

// OrderType represents the type of order (LIMIT, MARKET, etc.)
type OrderType string

// OrderStatusType represents the status of an order (NEW, FILLED, etc.)
type OrderStatusType string

// Order type constants
const (
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeMarket OrderType = "MARKET"
)

// Order status constants
const (
	OrderStatusTypeNew      OrderStatusType = "NEW"
	OrderStatusTypeFilled   OrderStatusType = "FILLED"
	OrderStatusTypeCanceled OrderStatusType = "CANCELED"
	OrderStatusTypeRejected OrderStatusType = "REJECTED"
	OrderStatusTypeExpired  OrderStatusType = "EXPIRED"
)

// Order is the journal record of a submitted child order
type Order struct {
	ID         int64           `db:"id" json:"id" gorm:"primaryKey,autoIncrement"`
	BrokerID   string          `db:"broker_id" json:"broker_id"`
	Instrument string          `db:"instrument" json:"instrument"`
	Side       Side            `db:"side" json:"side"`
	Type       OrderType       `db:"type" json:"type"`
	Status     OrderStatusType `db:"status" json:"status"`
	Price      float64         `db:"price" json:"price"`
	Units      float64         `db:"units" json:"units"`
	TPPips     float64         `db:"tp_pips" json:"tp_pips"`
	SLPips     float64         `db:"sl_pips" json:"sl_pips"`
	PositionID string          `db:"position_id" json:"position_id"`
	UUID       string          `db:"uuid" json:"uuid"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// WithStatus filters orders by status
func WithStatus(status OrderStatusType) OrderFilter {
	return func(order Order) bool {
		return order.Status == status
	}
}

// WithInstrument filters orders by instrument
func WithInstrument(instrument string) OrderFilter {
	return func(order Order) bool {
		return order.Instrument == instrument
	}
}

// WithPositionID filters orders by shared position id
func WithPositionID(id string) OrderFilter {
	return func(order Order) bool {
		return order.PositionID == id
	}
}

// PendingOrder is a working order as reported by the broker gateway
type PendingOrder struct {
	OrderID    string
	Instrument string
	Side       Side
	Type       OrderType
	Price      float64
	Units      float64
	CreatedAt  time.Time
}

// PendingLimitState tracks a pending limit through its lifecycle
type PendingLimitState string

// Pending limit lifecycle states. Converted, Cancelled and Filled are terminal.
const (
	PendingSubmitted PendingLimitState = "submitted"
	PendingAged      PendingLimitState = "aged"
	PendingConverted PendingLimitState = "converted_to_market"
	PendingRenewed   PendingLimitState = "renewed"
	PendingCancelled PendingLimitState = "cancelled"
	PendingFilled    PendingLimitState = "filled"
)

// PendingLimitRecord is the coordinator-owned ledger entry for a working limit order.
// At most one record exists per (instrument, uuid).
type PendingLimitRecord struct {
	OrderID    string            `json:"order_id"`
	Instrument string            `json:"instrument"`
	Side       Side              `json:"side"`
	LimitPrice float64           `json:"limit_price"`
	TPPips     float64           `json:"tp_pips"`
	SLPips     float64           `json:"sl_pips"`
	Units      float64           `json:"units"`
	PlacedAt   time.Duration     `json:"placed_at"` // monotonic clock reading
	RetryCount int               `json:"retry_count"`
	UUID       string            `json:"uuid"`
	PositionID string            `json:"position_id"`
	TradeMode  TradeMode         `json:"trade_mode"`
	State      PendingLimitState `json:"state"`
}

// PositionRecord is the read model of an open position sourced from the gateway
type PositionRecord struct {
	TradeID      string
	Instrument   string
	Side         Side
	Units        float64
	AvgPrice     float64
	OpenTime     time.Time
	UnrealizedPL float64
	SLPrice      float64
	TPPrice      float64
	PositionID   string
}

// OrderResult is the gateway response to a successful submission
type OrderResult struct {
	OrderID   string
	TradeID   string
	FillPrice float64
}

// TradeResult contains the outcome of a completed trade
type TradeResult struct {
	ID         int64     `gorm:"primaryKey,autoIncrement" json:"id"`
	Instrument string    `json:"instrument"`
	Side       Side      `json:"side"`
	PositionID string    `json:"position_id"`
	ProfitPips float64   `json:"profit_pips"`
	ProfitPct  float64   `json:"profit_pct"`
	StopLoss   bool      `json:"stop_loss"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}
