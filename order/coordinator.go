// Package order turns validated entry plans into broker orders and keeps
// the journal and pending-limit ledger in step with submissions.
package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/logger"
	"github.com/hiroq/fxcore/state"
)

// SplitRatios returns the (child1, child2) units split for a trade mode.
// A zero second ratio means a single child order.
func SplitRatios(mode core.TradeMode) (float64, float64) {
	switch mode {
	case core.ModeTrendFollow:
		return 0.7, 0.3
	case core.ModeScalpMomentum:
		return 0.5, 0.5
	}
	return 1.0, 0.0
}

// Coordinator submits child orders for a plan and records their state
type Coordinator struct {
	cfg      *config.Config
	log      logger.Logger
	gateway  core.BrokerGateway
	store    *state.Store
	journal  core.OrderStorage
	notifier core.Notifier // optional
	retry    *backoff.Backoff
}

// NewCoordinator creates an order coordinator. notifier may be nil.
func NewCoordinator(
	cfg *config.Config,
	gateway core.BrokerGateway,
	store *state.Store,
	journal core.OrderStorage,
	notifier core.Notifier,
	log logger.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:      cfg,
		log:      log,
		gateway:  gateway,
		store:    store,
		journal:  journal,
		notifier: notifier,
		retry: &backoff.Backoff{
			Min:    cfg.Cadence,
			Max:    10 * cfg.Cadence,
			Factor: 2,
			Jitter: false,
		},
	}
}

// RenewalDelay returns how long a pending limit should wait before its next
// renewal attempt
func (c *Coordinator) RenewalDelay(retryCount int) time.Duration {
	return c.retry.ForAttempt(float64(retryCount))
}

// Submit translates the plan into one or two child orders sharing a position
// id and places them best-effort. A failed first child aborts the entry; a
// failed second child leaves the first standing and is reported. Submission
// failures are not retried within the tick.
func (c *Coordinator) Submit(ctx context.Context, instrument string, plan core.EntryPlan) core.Outcome {
	positionID, err := c.newPositionID()
	if err != nil {
		return core.Fail(core.FailInvariant, core.ReasonGatewayError, err)
	}

	ratio1, ratio2 := SplitRatios(plan.TradeMode)
	children := []float64{ratio1}
	if ratio2 > 0 {
		children = append(children, ratio2)
	}

	for i, ratio := range children {
		units := plan.Lot * ratio
		if out := c.placeChild(ctx, instrument, plan, positionID, units); !out.IsOk() {
			if i == 0 {
				return out
			}
			// First child is live; report and let the supervisor manage it
			c.log.WithField("position_id", positionID).
				Errorf("second child failed: %v", out.Err)
			if c.notifier != nil {
				c.notifier.OnError(fmt.Errorf("partial entry %s: %w", positionID, out.Err))
			}
		}
	}
	return core.Ok()
}

func (c *Coordinator) placeChild(
	ctx context.Context,
	instrument string,
	plan core.EntryPlan,
	positionID string,
	units float64,
) core.Outcome {
	comment := core.OrderComment{PositionID: positionID, Mode: plan.TradeMode}
	if plan.Exec == core.ExecLimit {
		comment.UUID = uuid.NewString()
	}
	encoded, err := comment.Encode()
	if err != nil {
		return core.Fail(core.FailInvariant, core.ReasonGatewayError, err)
	}

	if plan.Exec == core.ExecLimit {
		return c.placeLimitChild(ctx, instrument, plan, comment, encoded, units)
	}
	return c.placeMarketChild(ctx, instrument, plan, comment, encoded, units)
}

func (c *Coordinator) placeMarketChild(
	ctx context.Context,
	instrument string,
	plan core.EntryPlan,
	comment core.OrderComment,
	encoded string,
	units float64,
) core.Outcome {
	result, err := c.gateway.PlaceMarketWithTPSL(ctx, core.MarketOrderRequest{
		Instrument: instrument,
		Units:      units,
		Side:       plan.Side,
		TPPips:     plan.TPPips,
		SLPips:     plan.SLPips,
		Comment:    encoded,
	})
	if err != nil {
		return c.gatewayFailure("market submission", err)
	}

	pip := core.PipSize(instrument)
	slPrice := result.FillPrice - plan.SLPips*pip
	tpPrice := result.FillPrice + plan.TPPips*pip
	if plan.Side == core.SideShort {
		slPrice = result.FillPrice + plan.SLPips*pip
		tpPrice = result.FillPrice - plan.TPPips*pip
	}
	c.store.TrackTrade(&state.TradeState{
		TradeID:    result.TradeID,
		Instrument: instrument,
		Side:       plan.Side,
		Mode:       plan.TradeMode,
		PositionID: comment.PositionID,
		OpenedAt:   c.store.Clock.Monotonic(),
		EntryPrice: result.FillPrice,
		SLPrice:    core.RoundToInstrument(instrument, slPrice),
		TPPrice:    core.RoundToInstrument(instrument, tpPrice),
	})

	c.journalOrder(ctx, instrument, plan, comment, core.OrderTypeMarket,
		result.OrderID, result.FillPrice, units)
	return core.Ok()
}

func (c *Coordinator) placeLimitChild(
	ctx context.Context,
	instrument string,
	plan core.EntryPlan,
	comment core.OrderComment,
	encoded string,
	units float64,
) core.Outcome {
	limitPrice := core.RoundToInstrument(instrument, plan.LimitPrice)
	validFor := plan.ValidForSec
	if validFor == 0 {
		validFor = c.cfg.LimitValidFor
	}

	result, err := c.gateway.PlaceLimit(ctx, core.LimitOrderRequest{
		Instrument:  instrument,
		Units:       units,
		Side:        plan.Side,
		LimitPrice:  limitPrice,
		TPPips:      plan.TPPips,
		SLPips:      plan.SLPips,
		Comment:     encoded,
		ValidForSec: validFor,
	})
	if err != nil {
		return c.gatewayFailure("limit submission", err)
	}

	rec := &core.PendingLimitRecord{
		OrderID:    result.OrderID,
		Instrument: instrument,
		Side:       plan.Side,
		LimitPrice: limitPrice,
		TPPips:     plan.TPPips,
		SLPips:     plan.SLPips,
		Units:      units,
		PlacedAt:   c.store.Clock.Monotonic(),
		UUID:       comment.UUID,
		PositionID: comment.PositionID,
		TradeMode:  plan.TradeMode,
		State:      core.PendingSubmitted,
	}
	if err := c.store.PutPending(rec); err != nil {
		// Ledger refused the record; take the order back down
		if cerr := c.gateway.CancelOrder(ctx, result.OrderID); cerr != nil {
			c.log.Errorf("cancel after ledger conflict failed: %v", cerr)
		}
		return core.Fail(core.FailInvariant, core.ReasonGatewayError, err)
	}

	c.journalOrder(ctx, instrument, plan, comment, core.OrderTypeLimit,
		result.OrderID, limitPrice, units)
	return core.Ok()
}

// journalOrder persists the child order and emits the notification. Journal
// failures are logged only; the order is already live.
func (c *Coordinator) journalOrder(
	ctx context.Context,
	instrument string,
	plan core.EntryPlan,
	comment core.OrderComment,
	orderType core.OrderType,
	brokerID string,
	price float64,
	units float64,
) {
	record := &core.Order{
		BrokerID:   brokerID,
		Instrument: instrument,
		Side:       plan.Side,
		Type:       orderType,
		Status:     core.OrderStatusTypeNew,
		Price:      price,
		Units:      units,
		TPPips:     plan.TPPips,
		SLPips:     plan.SLPips,
		PositionID: comment.PositionID,
		UUID:       comment.UUID,
		CreatedAt:  c.store.Clock.Now(),
		UpdatedAt:  c.store.Clock.Now(),
	}
	if c.journal != nil {
		if err := c.journal.CreateOrder(ctx, record); err != nil {
			c.log.Errorf("order journal write failed: %v", err)
		}
	}
	if c.notifier != nil {
		c.notifier.OnOrder(*record)
	}
}

func (c *Coordinator) gatewayFailure(op string, err error) core.Outcome {
	if !core.IsTransient(err) {
		return core.Fail(core.FailFatal, core.ReasonGatewayError, err)
	}
	c.log.Warnf("%s failed, retrying next tick: %v", op, err)
	return core.Fail(core.FailTransient, core.ReasonGatewayError, err)
}

// newPositionID issues a random 8-hex position id, unique for the process
func (c *Coordinator) newPositionID() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		id := hex.EncodeToString(buf)
		if err := c.store.ClaimPositionID(id); err == nil {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: could not issue a fresh position id", core.ErrInvariantViolated)
}
