// Package learning closes the feedback loop: realized outcomes are scored
// into rolling model performance, degradation is detected, and bounded
// parameter updates are proposed back to the fusion and gate engines.
package learning

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/regime"
)

// Outcome is the realized result of an executed (or counterfactually
// evaluated) signal, reported back asynchronously by the execution side.
type Outcome struct {
	SignalID        string           `json:"signal_id"`
	Symbol          string           `json:"symbol"`
	Direction       market.Direction `json:"direction"`
	EntryPrice      float64          `json:"entry_price"`
	ExitPrice       float64          `json:"exit_price"`
	EntryTime       time.Time        `json:"entry_time"`
	ExitTime        time.Time        `json:"exit_time"`
	PredictedProb   float64          `json:"predicted_prob"`
	PredictedReturn float64          `json:"predicted_return"`
	ActualReturn    float64          `json:"actual_return"`
	SignalStrength  float64          `json:"signal_strength"`
	ConfluenceScore float64          `json:"confluence_score"`
	Regime          regime.Type      `json:"regime"`
	CorrectDir      bool             `json:"correct_direction"`
}

// Performance is the rolling model performance snapshot.
type Performance struct {
	Samples      int       `json:"samples"`
	Accuracy     float64   `json:"accuracy"` // fraction with correct direction
	AvgReturn    float64   `json:"avg_return"`
	Sharpe       float64   `json:"sharpe"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	WinRate      float64   `json:"win_rate"`
	ProfitFactor float64   `json:"profit_factor"`
	ComputedAt   time.Time `json:"computed_at"`
}

// Adaptation records one applied parameter change.
type Adaptation struct {
	Parameter string    `json:"parameter"`
	OldValue  float64   `json:"old_value"`
	NewValue  float64   `json:"new_value"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Config tunes the learning engine.
type Config struct {
	OutcomeRetention  time.Duration `yaml:"outcome_retention" default:"720h"` // 30 days
	PerformanceWindow time.Duration `yaml:"performance_window" default:"168h"` // 7 days
	MinSampleSize     int           `yaml:"min_sample_size" default:"50" validate:"gt=0"`
	DegradationDrop   float64       `yaml:"degradation_drop" default:"0.10" validate:"gt=0,lt=1"`
	MaxDrift          float64       `yaml:"max_drift" default:"0.20" validate:"gt=0,lt=1"`
	MinSubSample      int           `yaml:"min_sub_sample" default:"10" validate:"gt=0"`
	ScoreHistory      int           `yaml:"score_history" default:"100" validate:"gt=0"`
}

// DefaultConfig returns the production learning configuration.
func DefaultConfig() Config {
	return Config{
		OutcomeRetention:  30 * 24 * time.Hour,
		PerformanceWindow: 7 * 24 * time.Hour,
		MinSampleSize:     50,
		DegradationDrop:   0.10,
		MaxDrift:          0.20,
		MinSubSample:      10,
		ScoreHistory:      100,
	}
}

// Tracker owns the bounded outcome ledger, performance metrics, and the
// adaptation history. Not safe for concurrent use; the owning pipeline
// serializes. Duplicate outcome reports for the same signal id are dropped:
// the feedback collaborator gives no idempotency guarantee, so it is
// enforced here.
type Tracker struct {
	cfg Config

	outcomes []Outcome
	seen     map[string]struct{}

	performance *Performance
	scores      []float64
	adaptations []Adaptation
	duplicates  int

	now func() time.Time
}

// NewTracker creates a learning tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:  cfg,
		seen: make(map[string]struct{}),
		now:  time.Now,
	}
}

// AddOutcome appends one realized outcome. Duplicates (same signal id) are
// counted and ignored. Once the minimum sample size is reached, rolling
// performance is recomputed. Returns false for dropped duplicates.
func (t *Tracker) AddOutcome(o Outcome) bool {
	if o.SignalID != "" {
		if _, dup := t.seen[o.SignalID]; dup {
			t.duplicates++
			log.Warn().Str("signal_id", o.SignalID).Msg("Duplicate outcome report dropped")
			return false
		}
		t.seen[o.SignalID] = struct{}{}
	}

	t.outcomes = append(t.outcomes, o)
	t.pruneOutcomes()

	if len(t.outcomes) >= t.cfg.MinSampleSize {
		t.recomputePerformance()
	}
	return true
}

func (t *Tracker) pruneOutcomes() {
	cutoff := t.now().Add(-t.cfg.OutcomeRetention)
	i := 0
	for ; i < len(t.outcomes); i++ {
		if t.outcomes[i].ExitTime.After(cutoff) {
			break
		}
	}
	if i > 0 {
		for _, old := range t.outcomes[:i] {
			delete(t.seen, old.SignalID)
		}
		t.outcomes = t.outcomes[i:]
	}
}

// recomputePerformance rebuilds the rolling metrics over the performance
// window and appends a blended score to the degradation series.
func (t *Tracker) recomputePerformance() {
	cutoff := t.now().Add(-t.cfg.PerformanceWindow)
	window := make([]Outcome, 0, len(t.outcomes))
	for _, o := range t.outcomes {
		if o.ExitTime.After(cutoff) {
			window = append(window, o)
		}
	}
	if len(window) == 0 {
		window = t.outcomes
	}

	perf := computePerformance(window, t.now())
	t.performance = &perf

	t.scores = append(t.scores, performanceScore(perf))
	if len(t.scores) > t.cfg.ScoreHistory {
		t.scores = t.scores[len(t.scores)-t.cfg.ScoreHistory:]
	}
}

func computePerformance(window []Outcome, at time.Time) Performance {
	n := len(window)
	perf := Performance{Samples: n, ComputedAt: at}
	if n == 0 {
		return perf
	}

	correct, wins := 0, 0
	sum := 0.0
	grossWin, grossLoss := 0.0, 0.0
	for _, o := range window {
		if o.CorrectDir {
			correct++
		}
		sum += o.ActualReturn
		if o.ActualReturn > 0 {
			wins++
			grossWin += o.ActualReturn
		} else {
			grossLoss -= o.ActualReturn
		}
	}
	mean := sum / float64(n)
	perf.Accuracy = float64(correct) / float64(n)
	perf.WinRate = float64(wins) / float64(n)
	perf.AvgReturn = mean

	variance := 0.0
	for _, o := range window {
		variance += (o.ActualReturn - mean) * (o.ActualReturn - mean)
	}
	if n > 1 {
		variance /= float64(n - 1)
	}
	if std := math.Sqrt(variance); std > 0 {
		perf.Sharpe = mean / std
	}

	// Max drawdown via running-peak tracking on the cumulative return path.
	cum, peak, maxDD := 0.0, 0.0, 0.0
	for _, o := range window {
		cum += o.ActualReturn
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	perf.MaxDrawdown = maxDD

	if grossLoss > 0 {
		perf.ProfitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		perf.ProfitFactor = profitFactorCap
	}
	if perf.ProfitFactor > profitFactorCap {
		perf.ProfitFactor = profitFactorCap
	}
	return perf
}

const profitFactorCap = 10.0

// performanceScore blends accuracy, Sharpe, and win rate into one [0,1]
// health number used by the degradation check.
func performanceScore(p Performance) float64 {
	sharpeNorm := clamp01(0.5 + p.Sharpe/4)
	return 0.4*p.Accuracy + 0.3*sharpeNorm + 0.3*p.WinRate
}

// Performance returns the latest rolling metrics, or nil before the
// minimum sample size is reached.
func (t *Tracker) Performance() *Performance {
	if t.performance == nil {
		return nil
	}
	p := *t.performance
	return &p
}

// NeedsRecalibration compares the mean of the last five performance scores
// to the mean of all earlier scores; a relative drop beyond the configured
// threshold signals model degradation.
func (t *Tracker) NeedsRecalibration() bool {
	const recent = 5
	if len(t.scores) < recent+1 {
		return false
	}
	head := t.scores[:len(t.scores)-recent]
	tail := t.scores[len(t.scores)-recent:]

	prior := meanOf(head)
	latest := meanOf(tail)
	if prior <= 0 {
		return false
	}
	return (prior-latest)/prior > t.cfg.DegradationDrop
}

// Adaptations returns a copy of the applied parameter-change history.
func (t *Tracker) Adaptations() []Adaptation {
	out := make([]Adaptation, len(t.adaptations))
	copy(out, t.adaptations)
	return out
}

// Duplicates reports how many duplicate outcome reports were dropped.
func (t *Tracker) Duplicates() int {
	return t.duplicates
}

func meanOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
