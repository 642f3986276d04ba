package dryrun

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiroq/fxcore/core"
	zerologger "github.com/hiroq/fxcore/logger/zerolog"
)

func testWallet(t *testing.T) *Wallet {
	t.Helper()
	zl := zerolog.Nop()
	return NewWallet("USDJPY", zerologger.NewAdapter(&zl),
		WithBalance(1_000_000, "JPY"),
		WithSpreadPips(1),
	)
}

func bar(close, high, low float64, at time.Time) core.Candle {
	return core.Candle{
		Instrument: "USDJPY",
		Time:       at,
		Open:       close,
		High:       high,
		Low:        low,
		Close:      close,
		Volume:     100,
		Complete:   true,
	}
}

func TestWallet_MarketFillAndProtectiveStop(t *testing.T) {
	w := testWallet(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	w.OnCandle(core.TimeframeM5, bar(155.000, 155.010, 154.990, at))

	comment, err := (core.OrderComment{PositionID: "p1", UUID: "u1", Mode: core.ModeTrendFollow}).Encode()
	require.NoError(t, err)

	// fills at the ask with a 1-pip spread
	result, err := w.PlaceMarketWithTPSL(ctx, core.MarketOrderRequest{
		Instrument: "USDJPY", Units: 1000, Side: core.SideLong,
		TPPips: 10, SLPips: 5, Comment: comment,
	})
	require.NoError(t, err)
	assert.InDelta(t, 155.005, result.FillPrice, 1e-9)

	positions, err := w.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, "p1", pos.PositionID)
	assert.InDelta(t, 154.955, pos.SLPrice, 1e-9)
	assert.InDelta(t, 155.105, pos.TPPrice, 1e-9)

	account, err := w.Account(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, account.OpenTradeCount)

	// a bar trading through the stop settles the position at the stop
	w.OnCandle(core.TimeframeM5, bar(154.960, 154.990, 154.950, at.Add(5*time.Minute)))

	positions, err = w.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	account, err = w.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1_000_000-50, account.Balance, 1e-6)
	assert.Equal(t, 0, account.OpenTradeCount)
}

func TestWallet_StopWinsWhenBothLevelsTrade(t *testing.T) {
	w := testWallet(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	w.OnCandle(core.TimeframeM5, bar(155.000, 155.010, 154.990, at))
	_, err := w.PlaceMarketWithTPSL(ctx, core.MarketOrderRequest{
		Instrument: "USDJPY", Units: 1000, Side: core.SideLong,
		TPPips: 2, SLPips: 2,
	})
	require.NoError(t, err)

	// both 155.025 and 154.985 are inside the bar
	w.OnCandle(core.TimeframeM5, bar(155.000, 155.030, 154.980, at.Add(5*time.Minute)))

	account, err := w.Account(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1_000_000-20, account.Balance, 1e-6)
}

func TestWallet_LimitFillsWhenPriceCrosses(t *testing.T) {
	w := testWallet(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	w.OnCandle(core.TimeframeM5, bar(155.000, 155.010, 154.990, at))

	result, err := w.PlaceLimit(ctx, core.LimitOrderRequest{
		Instrument: "USDJPY", Units: 1000, Side: core.SideLong,
		LimitPrice: 154.950, TPPips: 10, SLPips: 5, ValidForSec: 120,
	})
	require.NoError(t, err)

	pendings, err := w.PendingOrders(ctx, "USDJPY")
	require.NoError(t, err)
	require.Len(t, pendings, 1)
	assert.Equal(t, result.OrderID, pendings[0].OrderID)

	// the bar does not reach the limit price
	w.OnCandle(core.TimeframeM5, bar(154.980, 155.000, 154.960, at.Add(5*time.Minute)))
	pendings, _ = w.PendingOrders(ctx, "USDJPY")
	assert.Len(t, pendings, 1)

	// the next one trades through it
	w.OnCandle(core.TimeframeM5, bar(154.960, 154.990, 154.940, at.Add(10*time.Minute)))
	pendings, _ = w.PendingOrders(ctx, "USDJPY")
	assert.Empty(t, pendings)

	positions, err := w.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.InDelta(t, 154.950, positions[0].AvgPrice, 1e-9)
}

func TestWallet_CancelOrder(t *testing.T) {
	w := testWallet(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	w.OnCandle(core.TimeframeM5, bar(155.000, 155.010, 154.990, at))
	result, err := w.PlaceLimit(ctx, core.LimitOrderRequest{
		Instrument: "USDJPY", Units: 1000, Side: core.SideLong, LimitPrice: 154.950,
	})
	require.NoError(t, err)

	require.NoError(t, w.CancelOrder(ctx, result.OrderID))
	pendings, _ := w.PendingOrders(ctx, "USDJPY")
	assert.Empty(t, pendings)

	err = w.CancelOrder(ctx, "missing")
	require.ErrorIs(t, err, core.ErrOrderNotFound)
	assert.True(t, core.IsTransient(err))
}

func TestWallet_ModifyStopLoss(t *testing.T) {
	w := testWallet(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	w.OnCandle(core.TimeframeM5, bar(155.000, 155.010, 154.990, at))
	result, err := w.PlaceMarketWithTPSL(ctx, core.MarketOrderRequest{
		Instrument: "USDJPY", Units: 1000, Side: core.SideLong, SLPips: 10,
	})
	require.NoError(t, err)

	require.NoError(t, w.ModifyStopLoss(ctx, result.TradeID, 154.980))
	positions, _ := w.OpenPositions(ctx)
	require.Len(t, positions, 1)
	assert.InDelta(t, 154.980, positions[0].SLPrice, 1e-9)

	assert.ErrorIs(t, w.ModifyStopLoss(ctx, "missing", 154.980), core.ErrOrderNotFound)
}

func TestWallet_ClosePositionSettlesAtQuote(t *testing.T) {
	w := testWallet(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	w.OnCandle(core.TimeframeM5, bar(155.000, 155.010, 154.990, at))
	_, err := w.PlaceMarketWithTPSL(ctx, core.MarketOrderRequest{
		Instrument: "USDJPY", Units: 1000, Side: core.SideLong,
	})
	require.NoError(t, err)

	// long entry at the ask, close at the bid: one spread of cost
	require.NoError(t, w.ClosePosition(ctx, "USDJPY", core.SideLong))

	positions, _ := w.OpenPositions(ctx)
	assert.Empty(t, positions)
	account, _ := w.Account(ctx)
	assert.InDelta(t, 1_000_000-10, account.Balance, 1e-6)
}

func TestWallet_TradeableGate(t *testing.T) {
	w := testWallet(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	w.OnCandle(core.TimeframeM5, bar(155.000, 155.010, 154.990, at))
	w.SetTradeable(false)

	_, err := w.PlaceMarketWithTPSL(ctx, core.MarketOrderRequest{Instrument: "USDJPY", Units: 1, Side: core.SideLong})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))

	_, err = w.PlaceLimit(ctx, core.LimitOrderRequest{Instrument: "USDJPY", Units: 1, Side: core.SideLong, LimitPrice: 154.9})
	require.Error(t, err)

	ok, err := w.InstrumentTradeable(ctx, "USDJPY")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWallet_Snapshot(t *testing.T) {
	w := testWallet(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	w.OnCandle(core.TimeframeM5, bar(155.000, 155.010, 154.990, at))
	w.OnCandle(core.TimeframeM5, bar(155.020, 155.030, 154.995, at.Add(5*time.Minute)))

	snap, err := w.MarketSnapshot(ctx, "USDJPY", []core.Timeframe{core.TimeframeM5})
	require.NoError(t, err)
	assert.Len(t, snap.Candles[core.TimeframeM5], 2)
	assert.InDelta(t, 155.015, snap.Tick.Bid, 1e-9)
	assert.InDelta(t, 155.025, snap.Tick.Ask, 1e-9)

	_, err = w.MarketSnapshot(ctx, "EURUSD", nil)
	require.Error(t, err)
	assert.False(t, core.IsTransient(err))
}
