// Package plan validates and normalizes entry plans before sizing and
// submission.
package plan

import (
	"fmt"
	"math"

	"github.com/hiroq/fxcore/config"
	"github.com/hiroq/fxcore/core"
	"github.com/hiroq/fxcore/logger"
)

// Validator normalizes probabilities and enforces the plan invariants.
// Validation is idempotent: validating an accepted plan again yields the
// same plan.
type Validator struct {
	cfg *config.Config
	log logger.Logger
}

// NewValidator creates a plan validator
func NewValidator(cfg *config.Config, log logger.Logger) *Validator {
	return &Validator{cfg: cfg, log: log}
}

// Validate returns the normalized plan and an outcome. On rejection the
// outcome carries the first failed rule's reason and the plan is unchanged.
func (v *Validator) Validate(p core.EntryPlan, atrPips, spreadPips float64) (core.EntryPlan, core.Outcome) {
	p.TPProb, p.SLProb = normalizeProbs(p.TPProb, p.SLProb)

	p.SLPips = math.Max(p.SLPips, math.Max(v.cfg.MinAbsSLPips, atrPips*v.cfg.ATRSLMult))

	if p.TPPips <= 0 || p.SLPips <= 0 {
		return p, core.Fail(core.FailInvariant, core.ReasonMinNetTP,
			fmt.Errorf("%w: non-positive distances after clamp tp=%.2f sl=%.2f",
				core.ErrInvariantViolated, p.TPPips, p.SLPips))
	}
	if p.Exec == core.ExecLimit && p.LimitPrice <= 0 {
		return p, core.Fail(core.FailInvariant, core.ReasonInvalidLimitPrice,
			fmt.Errorf("%w: limit plan without a limit price", core.ErrInvariantViolated))
	}

	switch {
	case p.TPPips-spreadPips < v.cfg.MinNetTPPips:
		return p, core.Skip(core.ReasonMinNetTP)
	case p.TPPips/p.SLPips < v.cfg.MinRRR:
		return p, core.Skip(core.ReasonMinRRR)
	case p.ExpectedValue() <= 0:
		return p, core.Skip(core.ReasonNegativeEV)
	case p.TPProb < v.cfg.MinTPProb:
		return p, core.Skip(core.ReasonMinTPProb)
	}

	v.log.WithField("side", string(p.Side)).
		Debugf("plan accepted tp=%.1f sl=%.1f rrr=%.2f", p.TPPips, p.SLPips, p.RRR())
	return p, core.Ok()
}

// normalizeProbs divides both probabilities by their sum when it is close
// enough to 1 to be a noisy estimate; wilder pairs are clamped to [0,1]
// first and then normalized. The result always sums to exactly 1, or 0 when
// both inputs are 0, which makes a second application a no-op.
func normalizeProbs(tp, sl float64) (float64, float64) {
	sum := tp + sl
	if sum >= 0.5 && sum <= 1.5 {
		return tp / sum, sl / sum
	}

	tp, sl = clampUnit(tp), clampUnit(sl)
	if sum = tp + sl; sum > 0 {
		return tp / sum, sl / sum
	}
	return 0, 0
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
