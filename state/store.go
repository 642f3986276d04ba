package state

import (
	"fmt"
	"sort"
	"time"

	"github.com/hiroq/fxcore/core"
	"github.com/samber/lo"
)

// StopLossEvent records a stop-loss exit for the reentry cooldown
type StopLossEvent struct {
	At    time.Duration // monotonic
	Price float64
}

// TradeState is the supervisor's per-trade bookkeeping
type TradeState struct {
	TradeID     string
	Instrument  string
	Side        core.Side
	Mode        core.TradeMode
	PositionID  string
	OpenedAt    time.Duration // monotonic
	EntryPrice  float64
	SLPrice     float64
	TPPrice     float64
	HighestHigh float64
	LowestLow   float64
	TrailingSL  float64
	TP1Filled   bool
	CloseSent   bool
}

// Store is the single mutation point for all core ledgers. It is owned by
// the driver goroutine; no external mutation is allowed.
type Store struct {
	Clock     core.Clock
	Cooldowns *CooldownLedger
	Overshoot *OvershootWindow

	instrument string
	pending    map[string]*core.PendingLimitRecord // keyed by uuid
	lastStop   map[core.Side]StopLossEvent
	trades     map[string]*TradeState // keyed by trade id
	usedIDs    map[string]struct{}    // position ids issued this process
}

// NewStore creates the ledgers for one instrument
func NewStore(clock core.Clock, instrument string, overshootWindow int) *Store {
	return &Store{
		Clock:      clock,
		Cooldowns:  NewCooldownLedger(clock),
		Overshoot:  NewOvershootWindow(overshootWindow),
		instrument: instrument,
		pending:    make(map[string]*core.PendingLimitRecord),
		lastStop:   make(map[core.Side]StopLossEvent),
		trades:     make(map[string]*TradeState),
		usedIDs:    make(map[string]struct{}),
	}
}

// Instrument returns the instrument the store is bound to
func (s *Store) Instrument() string {
	return s.instrument
}

// SetInstrument rebinds the store, resetting the overshoot window
func (s *Store) SetInstrument(instrument string) {
	if instrument == s.instrument {
		return
	}
	s.instrument = instrument
	s.Overshoot.Reset()
}

// ClaimPositionID records a freshly issued position id, rejecting duplicates
func (s *Store) ClaimPositionID(id string) error {
	if _, taken := s.usedIDs[id]; taken {
		return fmt.Errorf("%w: position id %s reused", core.ErrInvariantViolated, id)
	}
	s.usedIDs[id] = struct{}{}
	return nil
}

// PutPending inserts a pending-limit record. At most one record may exist
// per (instrument, uuid).
func (s *Store) PutPending(rec *core.PendingLimitRecord) error {
	if _, exists := s.pending[rec.UUID]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicatePending, rec.UUID)
	}
	s.pending[rec.UUID] = rec
	return nil
}

// PendingByUUID returns the record for a uuid, or nil
func (s *Store) PendingByUUID(uuid string) *core.PendingLimitRecord {
	return s.pending[uuid]
}

// Pendings returns all pending-limit records ordered by placement time
func (s *Store) Pendings() []*core.PendingLimitRecord {
	recs := lo.Values(s.pending)
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].PlacedAt < recs[j].PlacedAt
	})
	return recs
}

// RemovePending drops a record by uuid
func (s *Store) RemovePending(uuid string) {
	delete(s.pending, uuid)
}

// RecordStopLoss records a stop-loss exit on a side and touches its
// cooldown bucket
func (s *Store) RecordStopLoss(side core.Side, price float64) {
	now := s.Clock.Monotonic()
	s.lastStop[side] = StopLossEvent{At: now, Price: price}
	s.Cooldowns.Set(StopLossBucket(side), now)
}

// LastStopLoss returns the last stop-loss event for a side
func (s *Store) LastStopLoss(side core.Side) (StopLossEvent, bool) {
	ev, ok := s.lastStop[side]
	return ev, ok
}

// ReentryBlocked reports whether a same-side re-entry is still suppressed.
// After a stop-loss exit the side is blocked for the cooldown window unless
// price has moved back past the stop level by triggerPips plus the spread
// in the original direction.
func (s *Store) ReentryBlocked(side core.Side, price, pip, spreadPips, triggerPips float64, cooldown time.Duration) bool {
	ev, ok := s.lastStop[side]
	if !ok {
		return false
	}
	if s.Clock.Monotonic()-ev.At >= cooldown {
		return false
	}

	escape := (triggerPips + spreadPips) * pip
	if side == core.SideLong {
		return price <= ev.Price+escape
	}
	return price >= ev.Price-escape
}

// TrackTrade starts supervisor bookkeeping for a filled trade
func (s *Store) TrackTrade(ts *TradeState) {
	s.trades[ts.TradeID] = ts
}

// Trade returns the tracked state for a trade id, or nil
func (s *Store) Trade(tradeID string) *TradeState {
	return s.trades[tradeID]
}

// Trades returns all tracked trade states
func (s *Store) Trades() []*TradeState {
	return lo.Values(s.trades)
}

// ForgetTrade removes a trade from tracking
func (s *Store) ForgetTrade(tradeID string) {
	delete(s.trades, tradeID)
}
