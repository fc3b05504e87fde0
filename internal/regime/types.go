package regime

import "time"

// Type is one of the closed set of market regimes the detector can emit.
type Type int

const (
	TrendingBullish Type = iota
	TrendingBearish
	RangingTight
	RangingVolatile
	ShockUp
	ShockDown
	LiquidityCrisis
	NewsDriven
	Breakout
	Consolidation

	numTypes
)

// NumTypes is the size of the closed regime set.
const NumTypes = int(numTypes)

var typeNames = [NumTypes]string{
	"trending_bullish",
	"trending_bearish",
	"ranging_tight",
	"ranging_volatile",
	"shock_up",
	"shock_down",
	"liquidity_crisis",
	"news_driven",
	"breakout",
	"consolidation",
}

func (t Type) String() string {
	if t < 0 || int(t) >= NumTypes {
		return "unknown"
	}
	return typeNames[t]
}

// AllTypes returns every regime type in declaration order.
func AllTypes() []Type {
	out := make([]Type, NumTypes)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

// FactorType classifies the origin of an input signal. Weight tables are
// indexed by it, so the set is closed.
type FactorType int

const (
	FactorTechnical FactorType = iota
	FactorPattern
	FactorVolume
	FactorSentiment
	FactorFundamental
	FactorMomentum

	numFactorTypes
)

// NumFactorTypes is the size of the closed factor-type set.
const NumFactorTypes = int(numFactorTypes)

var factorTypeNames = [NumFactorTypes]string{
	"technical",
	"pattern",
	"volume",
	"sentiment",
	"fundamental",
	"momentum",
}

func (f FactorType) String() string {
	if f < 0 || int(f) >= NumFactorTypes {
		return "unknown"
	}
	return factorTypeNames[f]
}

// Valid reports whether f is a known factor type.
func (f FactorType) Valid() bool {
	return f >= 0 && int(f) < NumFactorTypes
}

// WeightTable maps each factor type to a multiplicative adjustment weight.
// A neutral table is all 1.0.
type WeightTable [NumFactorTypes]float64

// NeutralWeights returns a table with every factor weighted 1.0.
func NeutralWeights() WeightTable {
	var wt WeightTable
	for i := range wt {
		wt[i] = 1.0
	}
	return wt
}

// Mean returns the average weight across factor types.
func (wt WeightTable) Mean() float64 {
	sum := 0.0
	for _, w := range wt {
		sum += w
	}
	return sum / float64(NumFactorTypes)
}

// Normalize rescales the table so its mean is exactly 1.0.
func (wt *WeightTable) Normalize() {
	mean := wt.Mean()
	if mean <= 0 {
		*wt = NeutralWeights()
		return
	}
	for i := range wt {
		wt[i] /= mean
	}
}

// Regime is the detector's current classification. It is a snapshot:
// consumers must not retain it across cycles.
type Regime struct {
	Type             Type          `json:"type"`
	Strength         float64       `json:"strength"`   // [0,1]
	Confidence       float64       `json:"confidence"` // [0,1]
	ExpectedDuration time.Duration `json:"expected_duration"`
	MinDuration      time.Duration `json:"min_duration"`
	MaxDuration      time.Duration `json:"max_duration"`
	Persistence      float64       `json:"persistence"` // per-bar self-transition probability
	RiskMultiplier   float64       `json:"risk_multiplier"`
	Weights          WeightTable   `json:"weights"`
	DetectedAt       time.Time     `json:"detected_at"`
}

// TransitionTrigger names an observation feature that crossed its trigger
// threshold at the moment of a regime change.
type TransitionTrigger string

const (
	TriggerPriceMove     TransitionTrigger = "large_price_move"
	TriggerVolSpike      TransitionTrigger = "volatility_spike"
	TriggerVolumeSurge   TransitionTrigger = "volume_surge"
	TriggerMomentumShift TransitionTrigger = "momentum_shift"
	TriggerNewsEvent     TransitionTrigger = "news_event"
	TriggerBreakout      TransitionTrigger = "breakout"
	TriggerReversal      TransitionTrigger = "reversal"
)

// Transition records one regime change.
type Transition struct {
	From      Type                `json:"from"`
	To        Type                `json:"to"`
	Timestamp time.Time           `json:"timestamp"`
	Triggers  []TransitionTrigger `json:"triggers,omitempty"`
}

// Stats summarizes detector history for diagnostics.
type Stats struct {
	Current          Type                     `json:"current"`
	Transitions      int                      `json:"transitions"`
	AvgDurations     map[string]time.Duration `json:"avg_durations"`
	TransitionCounts map[string]int           `json:"transition_counts"` // "from->to" -> count
	FactorPerf       map[string]PerfSnapshot  `json:"factor_performance"`
}

// PerfSnapshot is the tracked per-regime-per-factor performance.
type PerfSnapshot struct {
	Trades    int     `json:"trades"`
	WinRate   float64 `json:"win_rate"`
	AvgReturn float64 `json:"avg_return"`
}
