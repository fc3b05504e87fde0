// Package gates is the stateful accept/reject gate between fused signals
// and execution. Thresholds self-tune toward a target signal density but
// never leave their configured bounds.
package gates

import (
	"fmt"
	"time"

	"github.com/tradeforge/signalcore/internal/fusion"
	"github.com/tradeforge/signalcore/internal/market"
)

// Bounded is one adaptive threshold with hard configuration bounds. The
// current value is clamped on every update, so out-of-range values are
// impossible by construction.
type Bounded struct {
	Current float64 `json:"current" yaml:"current"`
	Min     float64 `json:"min" yaml:"min"`
	Max     float64 `json:"max" yaml:"max"`
}

func (b *Bounded) set(v float64) {
	if v < b.Min {
		v = b.Min
	}
	if v > b.Max {
		v = b.Max
	}
	b.Current = v
}

// Thresholds is the full adaptive gating state: the single source of truth
// for signal acceptance.
type Thresholds struct {
	Entropy    Bounded `json:"entropy" yaml:"entropy"`
	BuyProb    Bounded `json:"buy_prob" yaml:"buy_prob"`
	SellProb   Bounded `json:"sell_prob" yaml:"sell_prob"`
	Confluence Bounded `json:"confluence" yaml:"confluence"`
	EdgeRate   Bounded `json:"edge_rate" yaml:"edge_rate"`
}

// DefaultThresholds returns the production gating defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Entropy:    Bounded{Current: 0.60, Min: 0.30, Max: 0.90},
		BuyProb:    Bounded{Current: 0.62, Min: 0.55, Max: 0.75},
		SellProb:   Bounded{Current: 0.38, Min: 0.25, Max: 0.45},
		Confluence: Bounded{Current: 0.50, Min: 0.30, Max: 0.80},
		EdgeRate:   Bounded{Current: 0.001, Min: 0.0002, Max: 0.005},
	}
}

// Reason codes one gate failure. Exactly one reason is produced per
// rejection: the first failing check in the documented order.
type Reason string

const (
	ReasonEntropy     Reason = "entropy"
	ReasonProbability Reason = "probability"
	ReasonEdge        Reason = "edge"
	ReasonConfluence  Reason = "confluence"
)

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Accepted  bool    `json:"accepted"`
	Reason    Reason  `json:"reason,omitempty"`
	Detail    string  `json:"detail,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// Config tunes adaptation behavior.
type Config struct {
	AdaptInterval      time.Duration `yaml:"adapt_interval" default:"1h"`
	LookbackHours      int           `yaml:"lookback_hours" default:"24" validate:"gt=0"`
	TargetPerHour      float64       `yaml:"target_per_hour" default:"2" validate:"gt=0"`
	LearningRate       float64       `yaml:"learning_rate" default:"0.1" validate:"gt=0,lte=1"`
	RejectionRetention time.Duration `yaml:"rejection_retention" default:"168h"`
}

// DefaultConfig returns the production gate configuration.
func DefaultConfig() Config {
	return Config{
		AdaptInterval:      time.Hour,
		LookbackHours:      24,
		TargetPerHour:      2,
		LearningRate:       0.1,
		RejectionRetention: 7 * 24 * time.Hour,
	}
}

// Engine owns the adaptive thresholds and the rejection ledger. Not safe
// for concurrent use; the owning pipeline serializes mutating calls.
type Engine struct {
	cfg        Config
	thresholds Thresholds

	rejections *rejectionLog
	accepted   []time.Time
	lastAdapt  time.Time

	now func() time.Time // injectable clock for tests
}

// NewEngine creates a gate engine with the supplied starting thresholds.
func NewEngine(cfg Config, th Thresholds) *Engine {
	return &Engine{
		cfg:        cfg,
		thresholds: th,
		rejections: newRejectionLog(cfg.RejectionRetention),
		now:        time.Now,
	}
}

// Current returns a snapshot of the adaptive thresholds.
func (e *Engine) Current() Thresholds {
	return e.thresholds
}

// SetThresholds replaces the threshold state, clamping every value into its
// bounds. Used when restoring a persisted snapshot.
func (e *Engine) SetThresholds(th Thresholds) {
	th.Entropy.set(th.Entropy.Current)
	th.BuyProb.set(th.BuyProb.Current)
	th.SellProb.set(th.SellProb.Current)
	th.Confluence.set(th.Confluence.Current)
	th.EdgeRate.set(th.EdgeRate.Current)
	e.thresholds = th
}

// Evaluate runs the ordered gate chain: entropy, probability, edge,
// confluence. The first failing check short-circuits with a structured
// reason; every rejection lands in the bounded ledger.
func (e *Engine) Evaluate(sig *fusion.Signal) Decision {
	now := e.now()
	th := &e.thresholds

	if sig.Entropy > th.Entropy.Current {
		return e.reject(sig, ReasonEntropy, sig.Entropy, th.Entropy.Current, now)
	}

	switch sig.Direction {
	case market.Buy:
		if sig.Probability < th.BuyProb.Current {
			return e.reject(sig, ReasonProbability, sig.Probability, th.BuyProb.Current, now)
		}
	case market.Sell:
		if sig.Probability > th.SellProb.Current {
			return e.reject(sig, ReasonProbability, sig.Probability, th.SellProb.Current, now)
		}
	}

	if sig.EdgeRate <= th.EdgeRate.Current {
		return e.reject(sig, ReasonEdge, sig.EdgeRate, th.EdgeRate.Current, now)
	}

	// Confluence floor scales with the inverse regime risk multiplier:
	// riskier regimes demand broader agreement.
	confFloor := th.Confluence.Current
	if sig.Regime.RiskMultiplier > 0 {
		confFloor = confFloor / sig.Regime.RiskMultiplier
	}
	if confFloor > 1 {
		confFloor = 1
	}
	if sig.ConfluenceScore < confFloor {
		return e.reject(sig, ReasonConfluence, sig.ConfluenceScore, confFloor, now)
	}

	e.accepted = append(e.accepted, now)
	e.pruneAccepted(now)
	return Decision{Accepted: true}
}

func (e *Engine) reject(sig *fusion.Signal, reason Reason, value, threshold float64, now time.Time) Decision {
	detail := fmt.Sprintf("%s %.4f vs threshold %.4f", reason, value, threshold)
	e.rejections.append(RejectionEntry{
		Reason:      reason,
		Value:       value,
		Threshold:   threshold,
		SignalType:  sig.Direction,
		FactorCount: len(sig.Factors),
		Timestamp:   now,
	})
	return Decision{
		Accepted:  false,
		Reason:    reason,
		Detail:    detail,
		Value:     value,
		Threshold: threshold,
	}
}

func (e *Engine) pruneAccepted(now time.Time) {
	cutoff := now.Add(-time.Duration(e.cfg.LookbackHours) * time.Hour)
	i := 0
	for ; i < len(e.accepted); i++ {
		if e.accepted[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		e.accepted = e.accepted[i:]
	}
}
