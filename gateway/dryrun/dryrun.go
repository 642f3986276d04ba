// Package dryrun provides an in-memory broker gateway that fills orders
// against the candle stream it is fed. It keeps the decision core fully
// exercisable without a live broker connection.
package dryrun

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/logger"
)

type pendingLimit struct {
	order   core.PendingOrder
	tp      float64
	sl      float64
	comment string
}

type openPosition struct {
	record  core.PositionRecord
	tpPrice float64
	slPrice float64
}

// Wallet is a deterministic paper broker for one instrument
type Wallet struct {
	mu sync.Mutex

	log        logger.Logger
	instrument string
	balance    float64
	currency   string
	spreadPips float64
	tradeable  bool

	candles map[core.Timeframe][]core.Candle
	tick    core.Tick

	positions map[string]*openPosition  // by trade id
	pendings  map[string]*pendingLimit  // by order id
	orderSeq  int64
	tradeSeq  int64
}

// Option configures a dry-run wallet
type Option func(*Wallet)

// WithBalance sets the starting balance
func WithBalance(amount float64, currency string) Option {
	return func(w *Wallet) {
		w.balance = amount
		w.currency = currency
	}
}

// WithSpreadPips sets the constant simulated spread
func WithSpreadPips(pips float64) Option {
	return func(w *Wallet) {
		w.spreadPips = pips
	}
}

// NewWallet creates a dry-run gateway for an instrument
func NewWallet(instrument string, log logger.Logger, options ...Option) *Wallet {
	w := &Wallet{
		log:        log,
		instrument: instrument,
		balance:    10000,
		currency:   "JPY",
		spreadPips: 0.5,
		tradeable:  true,
		candles:    make(map[core.Timeframe][]core.Candle),
		positions:  make(map[string]*openPosition),
		pendings:   make(map[string]*pendingLimit),
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// SetTradeable toggles the session flag
func (w *Wallet) SetTradeable(tradeable bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tradeable = tradeable
}

// OnCandle feeds one candle into the wallet, updating the quote and
// processing working orders and protective exits against the bar's range
func (w *Wallet) OnCandle(tf core.Timeframe, candle core.Candle) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.candles[tf] = append(w.candles[tf], candle)

	half := w.spreadPips * core.PipSize(w.instrument) / 2
	w.tick = core.Tick{
		Instrument: w.instrument,
		Time:       candle.Time,
		Bid:        candle.Close - half,
		Ask:        candle.Close + half,
	}

	if !candle.Complete {
		return
	}
	w.fillPendings(candle)
	w.protectiveExits(candle)
}

// fillPendings fills limit orders whose price traded inside the bar
func (w *Wallet) fillPendings(candle core.Candle) {
	for id, p := range w.pendings {
		crossed := candle.Low <= p.order.Price && p.order.Price <= candle.High
		if !crossed {
			continue
		}
		delete(w.pendings, id)
		w.openAt(p.order.Side, p.order.Units, p.order.Price, p.tp, p.sl, p.comment)
		w.log.Infof("dryrun: limit %s filled at %s", id, core.FormatPrice(w.instrument, p.order.Price))
	}
}

// protectiveExits closes positions whose TP or SL traded inside the bar.
// SL wins when both are inside one bar.
func (w *Wallet) protectiveExits(candle core.Candle) {
	for id, pos := range w.positions {
		slHit := pos.slPrice != 0 && candle.Low <= pos.slPrice && pos.slPrice <= candle.High
		tpHit := pos.tpPrice != 0 && candle.Low <= pos.tpPrice && pos.tpPrice <= candle.High
		if pos.record.Side == core.SideShort {
			slHit = pos.slPrice != 0 && candle.High >= pos.slPrice && pos.slPrice >= candle.Low
			tpHit = pos.tpPrice != 0 && candle.High >= pos.tpPrice && pos.tpPrice >= candle.Low
		}

		switch {
		case slHit:
			w.settle(id, pos, pos.slPrice)
		case tpHit:
			w.settle(id, pos, pos.tpPrice)
		}
	}
}

func (w *Wallet) settle(tradeID string, pos *openPosition, exitPrice float64) {
	profit := (exitPrice - pos.record.AvgPrice) * pos.record.Units
	if pos.record.Side == core.SideShort {
		profit = -profit
	}
	w.balance += profit
	delete(w.positions, tradeID)
	w.log.Infof("dryrun: trade %s settled at %s, pnl %.2f",
		tradeID, core.FormatPrice(w.instrument, exitPrice), profit)
}

func (w *Wallet) openAt(side core.Side, units, price, tpPips, slPips float64, comment string) core.OrderResult {
	w.tradeSeq++
	tradeID := "t" + strconv.FormatInt(w.tradeSeq, 10)
	w.orderSeq++
	orderID := "o" + strconv.FormatInt(w.orderSeq, 10)

	pip := core.PipSize(w.instrument)
	tpPrice, slPrice := 0.0, 0.0
	if side == core.SideLong {
		if tpPips > 0 {
			tpPrice = price + tpPips*pip
		}
		if slPips > 0 {
			slPrice = price - slPips*pip
		}
	} else {
		if tpPips > 0 {
			tpPrice = price - tpPips*pip
		}
		if slPips > 0 {
			slPrice = price + slPips*pip
		}
	}

	positionID := ""
	if c, err := core.DecodeOrderComment(comment); err == nil {
		positionID = c.PositionID
	}

	w.positions[tradeID] = &openPosition{
		record: core.PositionRecord{
			TradeID:    tradeID,
			Instrument: w.instrument,
			Side:       side,
			Units:      units,
			AvgPrice:   price,
			OpenTime:   w.tick.Time,
			SLPrice:    slPrice,
			TPPrice:    tpPrice,
			PositionID: positionID,
		},
		tpPrice: tpPrice,
		slPrice: slPrice,
	}
	return core.OrderResult{OrderID: orderID, TradeID: tradeID, FillPrice: price}
}

// MarketSnapshot returns the current candle history and tick
func (w *Wallet) MarketSnapshot(_ context.Context, instrument string, tfs []core.Timeframe) (core.Snapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if instrument != w.instrument {
		return core.Snapshot{}, core.Fatal(fmt.Errorf("unknown instrument %s", instrument))
	}

	candles := make(map[core.Timeframe][]core.Candle, len(tfs))
	for _, tf := range tfs {
		candles[tf] = append([]core.Candle(nil), w.candles[tf]...)
	}
	return core.Snapshot{Instrument: instrument, Candles: candles, Tick: w.tick}, nil
}

// OpenPositions returns the live positions
func (w *Wallet) OpenPositions(_ context.Context) ([]core.PositionRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	records := make([]core.PositionRecord, 0, len(w.positions))
	for _, pos := range w.positions {
		pnl := (w.tick.Mid() - pos.record.AvgPrice) * pos.record.Units
		if pos.record.Side == core.SideShort {
			pnl = -pnl
		}
		rec := pos.record
		rec.UnrealizedPL = pnl
		records = append(records, rec)
	}
	return records, nil
}

// PendingOrders returns the working limit orders
func (w *Wallet) PendingOrders(_ context.Context, instrument string) ([]core.PendingOrder, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	orders := make([]core.PendingOrder, 0, len(w.pendings))
	for _, p := range w.pendings {
		if p.order.Instrument == instrument {
			orders = append(orders, p.order)
		}
	}
	return orders, nil
}

// PlaceMarketWithTPSL fills immediately at the quoted side of the spread
func (w *Wallet) PlaceMarketWithTPSL(_ context.Context, req core.MarketOrderRequest) (core.OrderResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.tradeable {
		return core.OrderResult{}, core.Transient(fmt.Errorf("instrument %s not tradeable", req.Instrument))
	}

	price := w.tick.Ask
	if req.Side == core.SideShort {
		price = w.tick.Bid
	}
	return w.openAt(req.Side, req.Units, price, req.TPPips, req.SLPips, req.Comment), nil
}

// PlaceLimit registers a working limit order
func (w *Wallet) PlaceLimit(_ context.Context, req core.LimitOrderRequest) (core.OrderResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.tradeable {
		return core.OrderResult{}, core.Transient(fmt.Errorf("instrument %s not tradeable", req.Instrument))
	}

	w.orderSeq++
	orderID := "o" + strconv.FormatInt(w.orderSeq, 10)
	w.pendings[orderID] = &pendingLimit{
		order: core.PendingOrder{
			OrderID:    orderID,
			Instrument: req.Instrument,
			Side:       req.Side,
			Type:       core.OrderTypeLimit,
			Price:      req.LimitPrice,
			Units:      req.Units,
			CreatedAt:  w.tick.Time,
		},
		tp:      req.TPPips,
		sl:      req.SLPips,
		comment: req.Comment,
	}
	return core.OrderResult{OrderID: orderID}, nil
}

// CancelOrder removes a working order
func (w *Wallet) CancelOrder(_ context.Context, orderID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.pendings[orderID]; !ok {
		return core.Transient(core.ErrOrderNotFound)
	}
	delete(w.pendings, orderID)
	return nil
}

// ModifyStopLoss moves a position's protective stop
func (w *Wallet) ModifyStopLoss(_ context.Context, tradeID string, newSLPrice float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	pos, ok := w.positions[tradeID]
	if !ok {
		return core.Transient(core.ErrOrderNotFound)
	}
	pos.slPrice = newSLPrice
	pos.record.SLPrice = newSLPrice
	return nil
}

// ClosePosition settles every open position on a side at the current quote
func (w *Wallet) ClosePosition(_ context.Context, instrument string, side core.Side) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	price := w.tick.Bid
	if side == core.SideShort {
		price = w.tick.Ask
	}
	for id, pos := range w.positions {
		if pos.record.Instrument == instrument && pos.record.Side == side {
			w.settle(id, pos, price)
		}
	}
	return nil
}

// InstrumentTradeable reports the session flag
func (w *Wallet) InstrumentTradeable(_ context.Context, instrument string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tradeable && instrument == w.instrument, nil
}

// Account returns the simulated account state
func (w *Wallet) Account(_ context.Context) (core.Account, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	unrealized := 0.0
	for _, pos := range w.positions {
		pnl := (w.tick.Mid() - pos.record.AvgPrice) * pos.record.Units
		if pos.record.Side == core.SideShort {
			pnl = -pnl
		}
		unrealized += pnl
	}

	return core.Account{
		ID:              "dryrun",
		Currency:        w.currency,
		Balance:         w.balance,
		UnrealizedPL:    unrealized,
		MarginAvailable: w.balance,
		OpenTradeCount:  len(w.positions),
	}, nil
}
