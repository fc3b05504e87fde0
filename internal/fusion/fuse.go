package fusion

import (
	"math"

	"github.com/tradeforge/signalcore/internal/regime"
)

// FuseResult is the combined evidence across all contributing factors.
type FuseResult struct {
	Probability float64 `json:"probability"`
	LogOdds     float64 `json:"log_odds"`
	Entropy     float64 `json:"entropy"`
	Used        int     `json:"used"` // factors that survived the uplift filter
}

// Fuse combines converted factors into one probability. Factors with
// negative causal uplift are discarded. Log-odds are decorrelated within
// each factor-type group by dividing by sqrt(group size), a cheap surrogate
// for covariance shrinkage since same-type factors tend to share inputs,
// then combined additively with weights normalized to mean 1, so uniform
// weights reduce to a plain sum of independent evidence.
//
// With zero usable factors the result is exactly neutral: p=0.5, log-odds
// 0, entropy 1.
func Fuse(factors []Factor) FuseResult {
	kept := factors[:0:0]
	groupSize := make(map[regime.FactorType]int)
	for _, f := range factors {
		if f.CausalUplift < 0 {
			continue
		}
		kept = append(kept, f)
		groupSize[f.Type]++
	}
	if len(kept) == 0 {
		return FuseResult{Probability: 0.5, LogOdds: 0, Entropy: 1}
	}

	totalWeight := 0.0
	for _, f := range kept {
		totalWeight += effectiveWeight(f)
	}
	meanWeight := totalWeight / float64(len(kept))
	if meanWeight <= 0 {
		return FuseResult{Probability: 0.5, LogOdds: 0, Entropy: 1}
	}

	combined := 0.0
	for _, f := range kept {
		decorrelated := f.LogOdds / math.Sqrt(float64(groupSize[f.Type]))
		combined += (effectiveWeight(f) / meanWeight) * decorrelated
	}

	p := logistic(combined)
	return FuseResult{
		Probability: p,
		LogOdds:     combined,
		Entropy:     Entropy(p),
		Used:        len(kept),
	}
}

func effectiveWeight(f Factor) float64 {
	w := f.Weight * (1 + f.CausalUplift) * f.RegimeMultiplier
	if w < 0 {
		return 0
	}
	return w
}

// Entropy is the binary entropy of p in bits: 1 at p=0.5, 0 at certainty.
func Entropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	h := -p*math.Log2(p) - (1-p)*math.Log2(1-p)
	return clampUnit(h)
}

// NetEdge is the expected profit after costs:
// p*R_win - (1-p)*|R_loss| - costs.
func NetEdge(p, expectedReturn, expectedLoss, tradingCosts float64) float64 {
	return p*expectedReturn - (1-p)*math.Abs(expectedLoss) - tradingCosts
}

// KellyCap is the quarter-Kelly ceiling on position fraction.
const KellyCap = 0.25

// KellyFraction is the standard Kelly criterion (p*RR - (1-p)) / RR with
// RR = |return/loss|, clamped to [0, KellyCap]. A zero expected loss
// degenerates to the RR -> infinity limit, which is p itself.
func KellyFraction(p, expectedReturn, expectedLoss float64) float64 {
	if expectedReturn <= 0 {
		return 0
	}
	loss := math.Abs(expectedLoss)
	var kelly float64
	if loss == 0 {
		kelly = p
	} else {
		rr := math.Abs(expectedReturn) / loss
		kelly = (p*rr - (1 - p)) / rr
	}
	if kelly < 0 {
		return 0
	}
	if kelly > KellyCap {
		return KellyCap
	}
	return kelly
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
