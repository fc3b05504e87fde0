package learning

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/tradeforge/signalcore/internal/regime"
)

// Parameters is the tunable parameter set the recalibrator optimizes.
type Parameters struct {
	ConfluenceThreshold float64                 `json:"confluence_threshold"`
	StrengthThreshold   float64                 `json:"strength_threshold"`
	RegimeWeights       map[regime.Type]float64 `json:"regime_weights"`
}

// DefaultParameters returns the starting parameter set.
func DefaultParameters() Parameters {
	weights := make(map[regime.Type]float64, regime.NumTypes)
	for _, r := range regime.AllTypes() {
		weights[r] = 1.0
	}
	return Parameters{
		ConfluenceThreshold: 0.5,
		StrengthThreshold:   5.0,
		RegimeWeights:       weights,
	}
}

// Proposal is one candidate parameter change from a grid search.
type Proposal struct {
	Parameter   string  `json:"parameter"`
	Current     float64 `json:"current"`
	Candidate   float64 `json:"candidate"`
	Improvement float64 `json:"improvement"` // relative objective gain
	Confidence  float64 `json:"confidence"`  // sample-size derived, [0,1]
	SampleSize  int     `json:"sample_size"`
}

// Acceptance bounds for applying a proposal.
const (
	minProposalConfidence  = 0.7
	minProposalImprovement = 0.05
)

// Recalibrate runs the three grid searches over historical outcomes and
// applies every proposal that clears the confidence and improvement bars
// while staying within the maximum drift from the current value. It
// returns the updated parameter set together with the changes applied by
// this call; the cumulative history stays available via Adaptations.
func (t *Tracker) Recalibrate(params Parameters) (Parameters, []Adaptation) {
	proposals := t.Recommendations(params)
	now := t.now()
	var applied []Adaptation
	for _, p := range proposals {
		if p.Confidence < minProposalConfidence || p.Improvement < minProposalImprovement {
			continue
		}
		switch {
		case p.Parameter == "confluence_threshold":
			params.ConfluenceThreshold = p.Candidate
		case p.Parameter == "strength_threshold":
			params.StrengthThreshold = p.Candidate
		default:
			for _, r := range regime.AllTypes() {
				if p.Parameter == "regime_weight."+r.String() {
					params.RegimeWeights[r] = p.Candidate
				}
			}
		}
		a := Adaptation{
			Parameter: p.Parameter,
			OldValue:  p.Current,
			NewValue:  p.Candidate,
			Reason:    fmt.Sprintf("grid search: %.1f%% improvement on %d samples", p.Improvement*100, p.SampleSize),
			Timestamp: now,
		}
		t.adaptations = append(t.adaptations, a)
		applied = append(applied, a)
		log.Info().
			Str("parameter", p.Parameter).
			Float64("old", p.Current).
			Float64("new", p.Candidate).
			Float64("improvement", p.Improvement).
			Msg("Recalibration applied")
	}
	return params, applied
}

// Recommendations runs the grid searches without committing anything.
func (t *Tracker) Recommendations(params Parameters) []Proposal {
	var out []Proposal
	if p := t.searchConfluence(params.ConfluenceThreshold); p != nil {
		out = append(out, *p)
	}
	if p := t.searchStrength(params.StrengthThreshold); p != nil {
		out = append(out, *p)
	}
	out = append(out, t.searchRegimeWeights(params.RegimeWeights)...)
	return out
}

// searchConfluence finds the confluence floor whose surviving outcomes have
// the best mean return.
func (t *Tracker) searchConfluence(current float64) *Proposal {
	return t.searchThreshold("confluence_threshold", current, grid(0.30, 0.80, 0.05),
		func(o Outcome, cand float64) bool { return o.ConfluenceScore >= cand })
}

// searchStrength does the same over the signal-strength floor.
func (t *Tracker) searchStrength(current float64) *Proposal {
	return t.searchThreshold("strength_threshold", current, grid(3.0, 9.0, 0.5),
		func(o Outcome, cand float64) bool { return o.SignalStrength >= cand })
}

func (t *Tracker) searchThreshold(name string, current float64, candidates []float64, keep func(Outcome, float64) bool) *Proposal {
	baseline, baseN := t.objective(current, keep)
	if baseN < t.cfg.MinSubSample {
		return nil
	}

	best := current
	bestObj := baseline
	bestN := baseN
	for _, cand := range candidates {
		if driftExceeded(current, cand, t.cfg.MaxDrift) {
			continue
		}
		obj, n := t.objective(cand, keep)
		if n < t.cfg.MinSubSample {
			continue
		}
		if obj > bestObj {
			best, bestObj, bestN = cand, obj, n
		}
	}
	if best == current {
		return nil
	}

	improvement := 0.0
	if baseline != 0 {
		improvement = (bestObj - baseline) / math.Abs(baseline)
	} else if bestObj > 0 {
		improvement = 1.0
	}
	return &Proposal{
		Parameter:   name,
		Current:     current,
		Candidate:   best,
		Improvement: improvement,
		Confidence:  sampleConfidence(bestN),
		SampleSize:  bestN,
	}
}

// objective scores a candidate threshold by the mean realized return of the
// outcomes it would have kept.
func (t *Tracker) objective(cand float64, keep func(Outcome, float64) bool) (float64, int) {
	sum := 0.0
	n := 0
	for _, o := range t.outcomes {
		if keep(o, cand) {
			sum += o.ActualReturn
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

// searchRegimeWeights proposes per-regime weight moves toward regimes that
// outperform the overall mean, bounded by the drift cap.
func (t *Tracker) searchRegimeWeights(current map[regime.Type]float64) []Proposal {
	overall, totalN := 0.0, 0
	byRegime := make(map[regime.Type][]float64)
	for _, o := range t.outcomes {
		overall += o.ActualReturn
		totalN++
		byRegime[o.Regime] = append(byRegime[o.Regime], o.ActualReturn)
	}
	if totalN < t.cfg.MinSubSample {
		return nil
	}
	overall /= float64(totalN)

	var out []Proposal
	for r, rets := range byRegime {
		if len(rets) < t.cfg.MinSubSample {
			continue
		}
		mean := meanOf(rets)
		cur := current[r]
		if cur == 0 {
			cur = 1.0
		}

		// Relative outperformance, capped at the drift bound.
		var rel float64
		if overall != 0 {
			rel = (mean - overall) / math.Abs(overall)
		} else {
			rel = mean
		}
		rel = clamp(rel, -t.cfg.MaxDrift, t.cfg.MaxDrift)
		cand := cur * (1 + rel)
		if cand == cur {
			continue
		}

		improvement := math.Abs(rel)
		out = append(out, Proposal{
			Parameter:   "regime_weight." + r.String(),
			Current:     cur,
			Candidate:   cand,
			Improvement: improvement,
			Confidence:  sampleConfidence(len(rets)),
			SampleSize:  len(rets),
		})
	}
	return out
}

func driftExceeded(current, candidate, maxDrift float64) bool {
	if current == 0 {
		return false
	}
	return math.Abs(candidate-current)/math.Abs(current) > maxDrift
}

// sampleConfidence grows with sub-sample size, saturating at 50 samples.
func sampleConfidence(n int) float64 {
	return clamp01(float64(n) / 50.0)
}

func grid(lo, hi, step float64) []float64 {
	var out []float64
	for v := lo; v <= hi+1e-9; v += step {
		out = append(out, math.Round(v*1000)/1000)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
