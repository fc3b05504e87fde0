package regime

import (
	"math"
	"time"
)

// gaussianTerm scores one observation dimension against a regime-typical
// value. The score is the unnormalized Gaussian density exp(-z^2/2), so each
// term lies in (0,1] and a product of terms stays comparable across states.
type gaussianTerm struct {
	dim  featureDim
	mean float64
	std  float64
}

func (g gaussianTerm) score(obs Observation) float64 {
	z := (obs.feature(g.dim) - g.mean) / g.std
	return math.Exp(-0.5 * z * z)
}

// durationDist describes how long a regime typically persists, in bars.
type durationDist struct {
	mean     float64
	min, max int
}

// stateModel is one hidden state of the semi-Markov regime model: an
// emission model over observation features, a self-transition probability,
// and a duration distribution. Decoding is a deliberately simplified
// single-step Viterbi (see Detector.classify), not full forward-backward
// HSMM inference; the self-transition and duration parameters surface in
// regime snapshots rather than in exact duration-aware decoding.
type stateModel struct {
	emissions []gaussianTerm
	selfProb  float64 // probability of remaining in this state per bar
	duration  durationDist
	riskMult  float64
}

func (m stateModel) emission(obs Observation) float64 {
	p := 1.0
	for _, g := range m.emissions {
		p *= g.score(obs)
	}
	// Floor keeps a long product from collapsing to exactly zero, which
	// would erase the persistence bias and stall transitions out.
	return math.Max(p, 1e-12)
}

func (m stateModel) expectedDuration(barInterval time.Duration) time.Duration {
	return time.Duration(m.duration.mean * float64(barInterval))
}

func (m stateModel) durationBounds(barInterval time.Duration) (time.Duration, time.Duration) {
	return time.Duration(m.duration.min) * barInterval, time.Duration(m.duration.max) * barInterval
}

// stateBank returns the fixed ten-state model bank. Means and deviations
// encode what each regime rewards: trending states want directional
// momentum with volume, shock states want outsized single-window moves,
// and a liquidity crisis is high volatility on *thin* volume with erratic
// momentum.
func stateBank() [NumTypes]stateModel {
	var bank [NumTypes]stateModel

	bank[TrendingBullish] = stateModel{
		emissions: []gaussianTerm{
			{dimMomentum, 0.80, 0.25},
			{dimTrend, 0.004, 0.004},
			{dimVolumeRatio, 1.3, 0.5},
			{dimVolatility, 0.5, 0.4},
		},
		selfProb: 0.85,
		duration: durationDist{mean: 36, min: 6, max: 120},
		riskMult: 1.2,
	}
	bank[TrendingBearish] = stateModel{
		emissions: []gaussianTerm{
			{dimMomentum, 0.20, 0.25},
			{dimTrend, -0.004, 0.004},
			{dimVolumeRatio, 1.3, 0.5},
			{dimVolatility, 0.6, 0.4},
		},
		selfProb: 0.85,
		duration: durationDist{mean: 30, min: 6, max: 100},
		riskMult: 1.0,
	}
	bank[RangingTight] = stateModel{
		emissions: []gaussianTerm{
			{dimVolatility, 0.25, 0.20},
			{dimTrend, 0.0, 0.002},
			{dimMomentum, 0.5, 0.20},
			{dimBreakout, 0.05, 0.15},
		},
		selfProb: 0.90,
		duration: durationDist{mean: 48, min: 8, max: 200},
		riskMult: 0.9,
	}
	bank[RangingVolatile] = stateModel{
		emissions: []gaussianTerm{
			{dimVolatility, 0.9, 0.4},
			{dimTrend, 0.0, 0.003},
			{dimBreakout, 0.10, 0.20},
			{dimVolumeRatio, 1.0, 0.4},
		},
		selfProb: 0.80,
		duration: durationDist{mean: 24, min: 4, max: 96},
		riskMult: 0.7,
	}
	bank[ShockUp] = stateModel{
		emissions: []gaussianTerm{
			{dimPriceChange, 0.04, 0.02},
			{dimVolatility, 1.5, 0.6},
			{dimVolumeRatio, 2.5, 1.0},
		},
		selfProb: 0.40,
		duration: durationDist{mean: 4, min: 1, max: 12},
		riskMult: 0.5,
	}
	bank[ShockDown] = stateModel{
		emissions: []gaussianTerm{
			{dimPriceChange, -0.04, 0.02},
			{dimVolatility, 1.5, 0.6},
			{dimVolumeRatio, 2.5, 1.0},
		},
		selfProb: 0.40,
		duration: durationDist{mean: 4, min: 1, max: 12},
		riskMult: 0.4,
	}
	bank[LiquidityCrisis] = stateModel{
		emissions: []gaussianTerm{
			{dimVolatility, 1.8, 0.7},
			{dimVolumeRatio, 0.4, 0.3},
			{dimMomentum, 0.5, 0.35},
		},
		selfProb: 0.60,
		duration: durationDist{mean: 8, min: 2, max: 24},
		riskMult: 0.3,
	}
	bank[NewsDriven] = stateModel{
		emissions: []gaussianTerm{
			{dimNewsMagnitude, 0.7, 0.3},
			{dimVolatility, 0.8, 0.5},
			{dimVolumeRatio, 1.6, 0.8},
		},
		selfProb: 0.50,
		duration: durationDist{mean: 6, min: 1, max: 24},
		riskMult: 0.6,
	}
	bank[Breakout] = stateModel{
		emissions: []gaussianTerm{
			{dimBreakout, 0.7, 0.3},
			{dimVolumeRatio, 1.8, 0.8},
			{dimVolatility, 0.7, 0.4},
		},
		selfProb: 0.55,
		duration: durationDist{mean: 8, min: 2, max: 36},
		riskMult: 1.1,
	}
	bank[Consolidation] = stateModel{
		emissions: []gaussianTerm{
			{dimVolatility, 0.30, 0.20},
			{dimVolumeRatio, 0.7, 0.3},
			{dimTrend, 0.0, 0.002},
			{dimBreakout, 0.03, 0.10},
		},
		selfProb: 0.88,
		duration: durationDist{mean: 40, min: 8, max: 160},
		riskMult: 0.8,
	}
	return bank
}
