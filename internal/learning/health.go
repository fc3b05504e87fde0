package learning

import "fmt"

// HealthTier classifies overall system health.
type HealthTier string

const (
	HealthExcellent HealthTier = "excellent"
	HealthGood      HealthTier = "good"
	HealthFair      HealthTier = "fair"
	HealthPoor      HealthTier = "poor"
	HealthUnknown   HealthTier = "unknown"
)

// Health is the system-health summary surfaced to telemetry.
type Health struct {
	Tier            HealthTier `json:"tier"`
	Score           float64    `json:"score"`
	Issues          []string   `json:"issues"`
	Recommendations []string   `json:"recommendations"`
	Samples         int        `json:"samples"`
}

// Health tier cutoffs on the weighted score.
const (
	tierExcellent = 0.75
	tierGood      = 0.60
	tierFair      = 0.45
)

// Health computes the weighted health summary over the current rolling
// performance. Before the minimum sample size accrues, the tier is unknown
// and carries no issues.
func (t *Tracker) Health() Health {
	perf := t.performance
	if perf == nil {
		return Health{
			Tier:            HealthUnknown,
			Recommendations: []string{"accumulate more outcomes before acting on health metrics"},
		}
	}

	pfNorm := clamp01(perf.ProfitFactor / 3.0)
	sharpeNorm := clamp01(0.5 + perf.Sharpe/4)
	score := 0.30*perf.Accuracy + 0.25*sharpeNorm + 0.25*perf.WinRate + 0.20*pfNorm

	h := Health{
		Score:   score,
		Samples: perf.Samples,
	}
	switch {
	case score >= tierExcellent:
		h.Tier = HealthExcellent
	case score >= tierGood:
		h.Tier = HealthGood
	case score >= tierFair:
		h.Tier = HealthFair
	default:
		h.Tier = HealthPoor
	}

	if perf.Accuracy < 0.5 {
		h.Issues = append(h.Issues, fmt.Sprintf("signal accuracy %.1f%% below 50%%", perf.Accuracy*100))
		h.Recommendations = append(h.Recommendations, "recalibrate factor priors; directional accuracy is worse than chance")
	}
	if perf.WinRate < 0.45 {
		h.Issues = append(h.Issues, fmt.Sprintf("win rate %.1f%% below 45%%", perf.WinRate*100))
		h.Recommendations = append(h.Recommendations, "tighten entry thresholds to skip marginal signals")
	}
	if perf.Sharpe < 0 {
		h.Issues = append(h.Issues, fmt.Sprintf("negative Sharpe ratio %.2f", perf.Sharpe))
		h.Recommendations = append(h.Recommendations, "reduce position sizing until risk-adjusted returns recover")
	}
	if perf.MaxDrawdown > 0.15 {
		h.Issues = append(h.Issues, fmt.Sprintf("max drawdown %.1f%% above 15%%", perf.MaxDrawdown*100))
		h.Recommendations = append(h.Recommendations, "lower the Kelly ceiling or regime risk multipliers")
	}
	if perf.ProfitFactor < 1 && perf.ProfitFactor > 0 {
		h.Issues = append(h.Issues, fmt.Sprintf("profit factor %.2f below 1.0", perf.ProfitFactor))
		h.Recommendations = append(h.Recommendations, "raise the edge floor; losses outweigh wins")
	}
	if t.NeedsRecalibration() {
		h.Issues = append(h.Issues, "performance degradation detected against historical baseline")
		h.Recommendations = append(h.Recommendations, "run recalibration")
	}
	return h
}
