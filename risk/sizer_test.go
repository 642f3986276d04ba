package risk

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	zerologger "github.com/hiroq/fxcore/logger/zerolog"
)

func testSizer() *Sizer {
	cfg := &config.Config{
		RiskPct:        0.01,
		MinLot:         0.01,
		MaxLot:         5,
		PipValuePerLot: 1000,
	}
	zl := zerolog.Nop()
	return NewSizer(cfg, zerologger.NewAdapter(&zl))
}

func TestSize_RiskFraction(t *testing.T) {
	s := testSizer()

	lot, outcome := s.Size(core.Account{Balance: 1_000_000}, 10)
	require.True(t, outcome.IsOk())
	assert.InDelta(t, 1.0, lot, 1e-9)
}

func TestSize_ClampsToMaxLot(t *testing.T) {
	s := testSizer()

	lot, outcome := s.Size(core.Account{Balance: 100_000_000}, 10)
	require.True(t, outcome.IsOk())
	assert.Equal(t, 5.0, lot)
}

func TestSize_RejectsBelowMinimum(t *testing.T) {
	s := testSizer()

	lot, outcome := s.Size(core.Account{Balance: 1000}, 10)
	assert.Equal(t, 0.0, lot)
	assert.Equal(t, core.StatusSkipped, outcome.Status)
	assert.Equal(t, core.ReasonZeroLot, outcome.Reason)
}

func TestSize_RejectsInvalidStop(t *testing.T) {
	s := testSizer()

	_, outcome := s.Size(core.Account{Balance: 1_000_000}, 0)
	assert.Equal(t, core.ReasonZeroLot, outcome.Reason)

	_, outcome = s.Size(core.Account{Balance: 1_000_000}, -3)
	assert.Equal(t, core.ReasonZeroLot, outcome.Reason)
}
