// Package risk converts an accepted entry plan into a lot size bounded by
// the portfolio limits.
package risk

import (
	"math"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/logger"
)

// Sizer computes the per-trade lot from the account balance and the plan's
// stop distance
type Sizer struct {
	cfg *config.Config
	log logger.Logger
}

// NewSizer creates a risk sizer
func NewSizer(cfg *config.Config, log logger.Logger) *Sizer {
	return &Sizer{cfg: cfg, log: log}
}

// Size returns the lot for a plan, clamped to [MinLot, MaxLot]. A computed
// lot below the minimum is rejected with zero_lot.
func (s *Sizer) Size(account core.Account, slPips float64) (float64, core.Outcome) {
	if slPips <= 0 || s.cfg.PipValuePerLot <= 0 {
		return 0, core.Skip(core.ReasonZeroLot)
	}

	lot := account.Balance * s.cfg.RiskPct / (slPips * s.cfg.PipValuePerLot)
	if lot < s.cfg.MinLot {
		s.log.Debugf("lot %.4f below minimum %.2f", lot, s.cfg.MinLot)
		return 0, core.Skip(core.ReasonZeroLot)
	}

	lot = math.Min(lot, s.cfg.MaxLot)
	return lot, core.Ok()
}
