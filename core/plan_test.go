package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryPlan_RRR(t *testing.T) {
	p := EntryPlan{TPPips: 24, SLPips: 10}
	assert.InDelta(t, 2.4, p.RRR(), 1e-9)

	assert.Equal(t, 0.0, EntryPlan{TPPips: 24}.RRR())
}

func TestEntryPlan_ExpectedValue(t *testing.T) {
	p := EntryPlan{TPPips: 20, SLPips: 10, TPProb: 0.6, SLProb: 0.4}
	assert.InDelta(t, 8.0, p.ExpectedValue(), 1e-9)

	p = EntryPlan{TPPips: 10, SLPips: 20, TPProb: 0.5, SLProb: 0.5}
	assert.Less(t, p.ExpectedValue(), 0.0)
}

func TestEntryPlan_MarshalRoundTrip(t *testing.T) {
	p := EntryPlan{
		Side:        SideShort,
		TPPips:      18,
		SLPips:      9,
		TPProb:      0.55,
		SLProb:      0.45,
		Exec:        ExecLimit,
		LimitPrice:  155.125,
		ValidForSec: 120,
		Lot:         0.5,
		TradeMode:   ModeScalpMomentum,
	}

	data, err := p.Marshal()
	require.NoError(t, err)

	parsed, err := UnmarshalEntryPlan(data)
	require.NoError(t, err)
	assert.Equal(t, p, parsed)
}

func TestUnmarshalEntryPlan_Invalid(t *testing.T) {
	_, err := UnmarshalEntryPlan([]byte("{"))
	assert.Error(t, err)
}

func TestSide_Opposite(t *testing.T) {
	assert.Equal(t, SideShort, SideLong.Opposite())
	assert.Equal(t, SideLong, SideShort.Opposite())
}

func TestTradeMode_IsScalp(t *testing.T) {
	assert.True(t, ModeScalpMomentum.IsScalp())
	assert.True(t, ModeScalpReversion.IsScalp())
	assert.True(t, ModeMicroScalp.IsScalp())
	assert.False(t, ModeTrendFollow.IsScalp())
	assert.False(t, ModeNoTrade.IsScalp())
}

func TestRegime_IsTrend(t *testing.T) {
	assert.True(t, Regime{Kind: RegimeTrend}.IsTrend())
	assert.True(t, Regime{Kind: RegimeBreak}.IsTrend())
	assert.False(t, Regime{Kind: RegimeRange}.IsTrend())
	assert.False(t, Regime{Kind: RegimeGray}.IsTrend())
}

func TestOutcome(t *testing.T) {
	assert.True(t, Ok().IsOk())
	assert.Equal(t, "ok", Ok().String())

	skip := Skip(ReasonQuietHours)
	assert.False(t, skip.IsOk())
	assert.False(t, skip.Fatal())
	assert.Equal(t, "skip(quiet_hours)", skip.String())

	assert.False(t, Fail(FailTransient, ReasonGatewayError, ErrOrderNotFound).Fatal())
	assert.True(t, Fail(FailFatal, ReasonGatewayError, ErrOrderNotFound).Fatal())
	assert.True(t, Fail(FailInvariant, ReasonNone, ErrInvariantViolated).Fatal())
}
