// Package fusion converts heterogeneous factor signals into one calibrated
// probability, edge estimate, and position size. All combination happens in
// log-odds space, the additive domain for independent evidence.
package fusion

import (
	"fmt"
	"math"

	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/regime"
)

// FactorInput is one raw factor signal as supplied by a strategy source.
// Validated at the fusion boundary; invalid inputs are rejected, not fixed.
type FactorInput struct {
	Name        string           `json:"name"`
	Type        regime.FactorType `json:"type"`
	Strength    float64          `json:"strength"`   // 1-10 directional strength
	Confidence  float64          `json:"confidence"` // [0,1]
	Signal      market.Direction `json:"signal"`
	Weight      float64          `json:"weight,omitempty"` // base weight, defaults to 1
	Description string           `json:"description,omitempty"`
}

// Validate checks the closed-field contract on a factor input.
func (f FactorInput) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("factor name is required")
	}
	if !f.Type.Valid() {
		return fmt.Errorf("factor %q: unknown factor type %d", f.Name, f.Type)
	}
	if f.Strength < 1 || f.Strength > 10 {
		return fmt.Errorf("factor %q: strength %.2f outside [1,10]", f.Name, f.Strength)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("factor %q: confidence %.2f outside [0,1]", f.Name, f.Confidence)
	}
	if !f.Signal.Valid() {
		return fmt.Errorf("factor %q: invalid signal direction %q", f.Name, f.Signal)
	}
	return nil
}

// Factor is a factor converted to probability space. Immutable once built.
type Factor struct {
	Name             string            `json:"name"`
	Type             regime.FactorType `json:"type"`
	Probability      float64           `json:"probability"`
	LogOdds          float64           `json:"log_odds"`
	Weight           float64           `json:"weight"`
	Confidence       float64           `json:"confidence"`
	ErrorVariance    float64           `json:"error_variance"`
	CausalUplift     float64           `json:"causal_uplift"`
	RegimeMultiplier float64           `json:"regime_multiplier"`
}

// Probability bounds: probabilities are kept strictly inside (0,1) so
// log-odds stay finite.
const (
	probFloor = 0.01
	probCeil  = 0.99

	strengthStep = 0.034 // per strength point above 1
	buyProbCap   = 0.85
	sellProbCap  = 0.15

	upliftMinTrades = 10
)

// Convert maps a validated factor input into probability space: a
// piecewise-linear strength map centered at 0.5, shrunk toward 0.5 by
// confidence, Bayesian-updated against the per-type prior, then adjusted by
// the regime's factor-type multiplier in log-odds space.
func (e *Engine) Convert(in FactorInput, reg regime.Regime) Factor {
	base := baseProbability(in)

	// Low confidence shrinks evidence toward the coin flip.
	p := 0.5 + (base-0.5)*in.Confidence

	prior := e.priors[in.Type]
	p = bayesUpdate(p, prior)

	mult := reg.Weights[in.Type]
	if mult > 0 && mult != 1.0 {
		p = logistic(logit(p) * mult)
	}
	p = clampProb(p)

	uplift := e.perf.causalUplift(in.Name, in.Type)

	weight := in.Weight
	if weight <= 0 {
		weight = 1.0
	}

	return Factor{
		Name:             in.Name,
		Type:             in.Type,
		Probability:      p,
		LogOdds:          logit(p),
		Weight:           weight,
		Confidence:       in.Confidence,
		ErrorVariance:    errorVariance(p, in.Confidence),
		CausalUplift:     uplift,
		RegimeMultiplier: mult,
	}
}

func baseProbability(in FactorInput) float64 {
	switch in.Signal {
	case market.Buy:
		return math.Min(0.51+(in.Strength-1)*strengthStep, buyProbCap)
	case market.Sell:
		return math.Max(0.49-(in.Strength-1)*strengthStep, sellProbCap)
	default:
		return 0.5
	}
}

// bayesUpdate treats the mapped probability as a likelihood against the
// per-factor-type prior: posterior = L*prior / (L*prior + (1-L)*(1-prior)).
func bayesUpdate(likelihood, prior float64) float64 {
	num := likelihood * prior
	denom := num + (1-likelihood)*(1-prior)
	if denom == 0 {
		return 0.5
	}
	return num / denom
}

// errorVariance estimates per-factor noise: low confidence and extreme
// probabilities are both less trustworthy.
func errorVariance(p, confidence float64) float64 {
	v := 0.05 + (1-confidence)*0.10
	if p > 0.8 || p < 0.2 {
		v += 0.05
	}
	return v
}

func logit(p float64) float64 {
	p = clampProb(p)
	return math.Log(p / (1 - p))
}

func logistic(x float64) float64 {
	return clampProb(1 / (1 + math.Exp(-x)))
}

func clampProb(p float64) float64 {
	if p < probFloor {
		return probFloor
	}
	if p > probCeil {
		return probCeil
	}
	return p
}
