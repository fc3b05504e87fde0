package gates

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Per-metric base step sizes, scaled by the learning rate and intensity.
// Relax and tighten apply the same step with opposite sign, so an equal
// relax/tighten pair round-trips (away from the bounds).
const (
	stepEntropy    = 0.05
	stepProb       = 0.02
	stepConfluence = 0.05
	stepEdge       = 0.0005
)

// Rejection-histogram refinement thresholds.
const (
	entropyRejectShare = 0.60
	edgeRejectShare    = 0.40
)

// Adjustment is the direction of a threshold move.
type Adjustment string

const (
	Relax   Adjustment = "relax"
	Tighten Adjustment = "tighten"
)

// Adapt retunes thresholds toward the target signal density. It is
// time-gated: calls within AdaptInterval of the previous adaptation are
// cheap no-ops, so per-cycle invocation cannot thrash the thresholds.
// Returns true when an adaptation ran.
func (e *Engine) Adapt() bool {
	now := e.now()
	if !e.lastAdapt.IsZero() && now.Sub(e.lastAdapt) < e.cfg.AdaptInterval {
		return false
	}
	e.lastAdapt = now

	density := e.DensityStats()
	switch {
	case density.CurrentPerHour < 0.5*e.cfg.TargetPerHour:
		e.apply(Relax, 1.0)
		log.Info().
			Float64("density", density.CurrentPerHour).
			Float64("target", e.cfg.TargetPerHour).
			Msg("Thresholds relaxed: signal density below target")
	case density.CurrentPerHour > 2.0*e.cfg.TargetPerHour:
		e.apply(Tighten, 1.0)
		log.Info().
			Float64("density", density.CurrentPerHour).
			Float64("target", e.cfg.TargetPerHour).
			Msg("Thresholds tightened: signal density above target")
	}

	// Rejection-mix refinement: when one gate dominates the rejections,
	// loosen that gate specifically.
	stats := e.RejectionStats()
	if stats.Total > 0 {
		step := e.cfg.LearningRate
		if float64(stats.CountsByReason[ReasonEntropy])/float64(stats.Total) > entropyRejectShare {
			e.thresholds.Entropy.set(e.thresholds.Entropy.Current + step*stepEntropy)
			log.Debug().Msg("Entropy bound relaxed: entropy dominates rejections")
		}
		if float64(stats.CountsByReason[ReasonEdge])/float64(stats.Total) > edgeRejectShare {
			e.thresholds.EdgeRate.set(e.thresholds.EdgeRate.Current - step*stepEdge)
			log.Debug().Msg("Edge floor relaxed: edge dominates rejections")
		}
	}
	return true
}

// ForceAdjust applies a manual relax or tighten at the given intensity,
// bypassing the adaptation cadence. Operator and test use.
func (e *Engine) ForceAdjust(dir Adjustment, intensity float64) {
	if intensity <= 0 {
		return
	}
	e.apply(dir, intensity)
	log.Info().Str("direction", string(dir)).Float64("intensity", intensity).
		Msg("Forced threshold adjustment")
}

// apply moves every threshold one step. Relaxing widens acceptance:
// entropy bound up, probability cutoffs toward 0.5, confluence and edge
// floors down. Tightening is the exact mirror.
func (e *Engine) apply(dir Adjustment, intensity float64) {
	sign := 1.0
	if dir == Tighten {
		sign = -1.0
	}
	scale := sign * intensity * e.cfg.LearningRate
	th := &e.thresholds

	th.Entropy.set(th.Entropy.Current + scale*stepEntropy)
	th.BuyProb.set(th.BuyProb.Current - scale*stepProb)
	th.SellProb.set(th.SellProb.Current + scale*stepProb)
	th.Confluence.set(th.Confluence.Current - scale*stepConfluence)
	th.EdgeRate.set(th.EdgeRate.Current - scale*stepEdge)
}

// LastAdaptation reports when thresholds last adapted.
func (e *Engine) LastAdaptation() time.Time {
	return e.lastAdapt
}
