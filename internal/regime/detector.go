package regime

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeforge/signalcore/internal/market"
)

// Config tunes the detector. The persistence bias and window sizes carry
// no derivation beyond observed behavior, so they stay configurable
// rather than hard-coded.
type Config struct {
	ObservationWindow int           `yaml:"observation_window" default:"50" validate:"gt=0,lte=500"`
	Lookback          int           `yaml:"lookback" default:"5" validate:"gt=0,lte=50"`
	PersistenceBias   float64       `yaml:"persistence_bias" default:"2.0" validate:"gte=1"`
	TransitionHistory int           `yaml:"transition_history" default:"1000" validate:"gt=0"`
	BarInterval       time.Duration `yaml:"bar_interval" default:"1h"`
	LearningRate      float64       `yaml:"learning_rate" default:"0.1" validate:"gt=0,lte=1"`
	WeightMin         float64       `yaml:"weight_min" default:"0.1" validate:"gt=0"`
	WeightMax         float64       `yaml:"weight_max" default:"3.0" validate:"gt=0"`
}

// DefaultConfig returns the production detector configuration.
func DefaultConfig() Config {
	return Config{
		ObservationWindow: 50,
		Lookback:          5,
		PersistenceBias:   2.0,
		TransitionHistory: 1000,
		BarInterval:       time.Hour,
		LearningRate:      0.1,
		WeightMin:         0.1,
		WeightMax:         3.0,
	}
}

// Transition-trigger thresholds on the latest observation.
const (
	triggerPriceMove   = 0.03
	triggerVolatility  = 1.2
	triggerVolumeRatio = 2.0
	triggerMomentum    = 0.35 // distance from mid-range
	triggerNews        = 0.5
	triggerBreakout    = 0.5
	triggerReversal    = 0.7
)

type factorPerf struct {
	trades    int
	wins      int
	sumReturn float64
}

// Detector classifies the current market regime from a bounded window of
// observations. It is the sole owner of the current regime, the transition
// history, and the per-regime adaptive weight tables. Methods are not
// safe for concurrent use; the owning engine serializes access.
type Detector struct {
	cfg  Config
	bank [NumTypes]stateModel

	window      []Observation
	current     Type
	currentAt   time.Time
	initialized bool

	transitions []Transition

	weights [NumTypes]WeightTable
	perf    [NumTypes][NumFactorTypes]factorPerf
}

// NewDetector creates a detector with neutral adaptive weights.
func NewDetector(cfg Config) *Detector {
	d := &Detector{
		cfg:     cfg,
		bank:    stateBank(),
		current: RangingTight,
	}
	for i := range d.weights {
		d.weights[i] = NeutralWeights()
	}
	return d
}

// Detect builds an observation from the supplied market data, appends it to
// the rolling window, and classifies the current regime. Short histories
// degrade to a neutral default rather than erroring.
func (d *Detector) Detect(candles []market.Candle, volume []float64, ind *market.Indicators, news []market.NewsItem) Regime {
	now := time.Now()
	if len(candles) > 0 {
		now = candles[len(candles)-1].Timestamp
	}
	obs := buildObservation(candles, volume, ind, news, now)
	d.window = append(d.window, obs)
	if len(d.window) > d.cfg.ObservationWindow {
		d.window = d.window[len(d.window)-d.cfg.ObservationWindow:]
	}

	if len(candles) < obsCandleWindow {
		return d.neutralRegime(now)
	}

	next, strength, confidence := d.classify()
	if !d.initialized {
		d.initialized = true
		d.current = next
		d.currentAt = now
	} else if next != d.current {
		d.recordTransition(next, obs, now)
		d.adaptWeights(next)
		d.current = next
		d.currentAt = now
	}

	return d.snapshot(strength, confidence, now)
}

// Current returns the latest regime snapshot without running detection.
func (d *Detector) Current() Regime {
	return d.snapshot(0.5, 0.5, d.currentAt)
}

func (d *Detector) snapshot(strength, confidence float64, at time.Time) Regime {
	model := d.bank[d.current]
	minDur, maxDur := model.durationBounds(d.cfg.BarInterval)
	return Regime{
		Type:             d.current,
		Strength:         strength,
		Confidence:       confidence,
		ExpectedDuration: model.expectedDuration(d.cfg.BarInterval),
		MinDuration:      minDur,
		MaxDuration:      maxDur,
		Persistence:      model.selfProb,
		RiskMultiplier:   model.riskMult,
		Weights:          d.weights[d.current],
		DetectedAt:       at,
	}
}

func (d *Detector) neutralRegime(at time.Time) Regime {
	model := d.bank[RangingTight]
	minDur, maxDur := model.durationBounds(d.cfg.BarInterval)
	return Regime{
		Type:             RangingTight,
		Strength:         0.5,
		Confidence:       0.5,
		ExpectedDuration: model.expectedDuration(d.cfg.BarInterval),
		MinDuration:      minDur,
		MaxDuration:      maxDur,
		Persistence:      model.selfProb,
		RiskMultiplier:   model.riskMult,
		Weights:          d.weights[RangingTight],
		DetectedAt:       at,
	}
}

// classify runs the simplified single-step Viterbi: per state, the product
// of emission probabilities over the last Lookback observations, times the
// persistence bias when the state is the incumbent. This approximates full
// duration-aware HSMM decoding and is kept intentionally simple.
func (d *Detector) classify() (Type, float64, float64) {
	recent := d.window
	if len(recent) > d.cfg.Lookback {
		recent = recent[len(recent)-d.cfg.Lookback:]
	}

	var scores [NumTypes]float64
	total := 0.0
	for i := range d.bank {
		score := 1.0
		for _, obs := range recent {
			score *= d.bank[i].emission(obs)
		}
		if d.initialized && Type(i) == d.current {
			score *= d.cfg.PersistenceBias
		}
		scores[i] = score
		total += score
	}

	best := RangingTight
	bestScore := -1.0
	for i, s := range scores {
		if s > bestScore {
			bestScore = s
			best = Type(i)
		}
	}

	confidence := 0.0
	if total > 0 {
		confidence = bestScore / total
	}
	latest := d.window[len(d.window)-1]
	strength := clamp(d.bank[best].emission(latest), 0, 1)
	return best, strength, clamp(confidence, 0, 1)
}

func (d *Detector) recordTransition(to Type, obs Observation, at time.Time) {
	tr := Transition{
		From:      d.current,
		To:        to,
		Timestamp: at,
		Triggers:  detectTriggers(obs),
	}
	d.transitions = append(d.transitions, tr)
	if len(d.transitions) > d.cfg.TransitionHistory {
		d.transitions = d.transitions[len(d.transitions)-d.cfg.TransitionHistory:]
	}
	log.Info().
		Str("from", tr.From.String()).
		Str("to", tr.To.String()).
		Interface("triggers", tr.Triggers).
		Msg("Regime transition")
}

func detectTriggers(obs Observation) []TransitionTrigger {
	var triggers []TransitionTrigger
	if math.Abs(obs.PriceChange) > triggerPriceMove {
		triggers = append(triggers, TriggerPriceMove)
	}
	if obs.Volatility > triggerVolatility {
		triggers = append(triggers, TriggerVolSpike)
	}
	if obs.VolumeRatio > triggerVolumeRatio {
		triggers = append(triggers, TriggerVolumeSurge)
	}
	if math.Abs(obs.Momentum-0.5) > triggerMomentum {
		triggers = append(triggers, TriggerMomentumShift)
	}
	if math.Abs(obs.NewsSentiment) > triggerNews {
		triggers = append(triggers, TriggerNewsEvent)
	}
	if obs.Breakout > triggerBreakout {
		triggers = append(triggers, TriggerBreakout)
	}
	if obs.Reversal > triggerReversal {
		triggers = append(triggers, TriggerReversal)
	}
	return triggers
}

// adaptWeights applies the exponential multiplicative update to the new
// regime's weight table using tracked factor performance, then renormalizes
// the table to mean 1.0.
func (d *Detector) adaptWeights(to Type) {
	wt := d.weights[to]
	for ft := 0; ft < NumFactorTypes; ft++ {
		perf := d.perf[to][ft]
		if perf.trades == 0 {
			continue
		}
		winRate := float64(perf.wins) / float64(perf.trades)
		avgReturn := perf.sumReturn / float64(perf.trades)
		score := (winRate - 0.5) + avgReturn
		wt[ft] *= math.Exp(d.cfg.LearningRate * score)
		wt[ft] = clamp(wt[ft], d.cfg.WeightMin, d.cfg.WeightMax)
	}
	wt.Normalize()
	d.weights[to] = wt
	log.Debug().Str("regime", to.String()).Interface("weights", wt).Msg("Adaptive reweighting applied")
}

// RecordFactorOutcome feeds realized factor performance back into the
// per-regime weight adaptation.
func (d *Detector) RecordFactorOutcome(r Type, ft FactorType, win bool, ret float64) {
	if r < 0 || int(r) >= NumTypes || !ft.Valid() {
		return
	}
	p := &d.perf[r][ft]
	p.trades++
	if win {
		p.wins++
	}
	p.sumReturn += ret
}

// WeightsFor returns the adaptive weight table for a regime.
func (d *Detector) WeightsFor(r Type) WeightTable {
	if r < 0 || int(r) >= NumTypes {
		return NeutralWeights()
	}
	return d.weights[r]
}

// SetWeights replaces one regime's weight table, clamping each entry into
// the configured bounds and renormalizing. Used when restoring a persisted
// snapshot.
func (d *Detector) SetWeights(r Type, wt WeightTable) {
	if r < 0 || int(r) >= NumTypes {
		return
	}
	for i := range wt {
		wt[i] = clamp(wt[i], d.cfg.WeightMin, d.cfg.WeightMax)
	}
	wt.Normalize()
	d.weights[r] = wt
}

// ForceRegime overrides the current regime. Test hook only.
func (d *Detector) ForceRegime(r Type) {
	d.initialized = true
	d.current = r
	d.currentAt = time.Now()
}

// Statistics summarizes transition history and tracked factor performance.
func (d *Detector) Statistics() Stats {
	stats := Stats{
		Current:          d.current,
		Transitions:      len(d.transitions),
		AvgDurations:     make(map[string]time.Duration),
		TransitionCounts: make(map[string]int),
		FactorPerf:       make(map[string]PerfSnapshot),
	}

	durSums := make(map[Type]time.Duration)
	durCounts := make(map[Type]int)
	for i, tr := range d.transitions {
		key := fmt.Sprintf("%s->%s", tr.From, tr.To)
		stats.TransitionCounts[key]++
		if i > 0 {
			prev := d.transitions[i-1]
			durSums[prev.To] += tr.Timestamp.Sub(prev.Timestamp)
			durCounts[prev.To]++
		}
	}
	for r, total := range durSums {
		stats.AvgDurations[r.String()] = total / time.Duration(durCounts[r])
	}

	for r := 0; r < NumTypes; r++ {
		for ft := 0; ft < NumFactorTypes; ft++ {
			perf := d.perf[r][ft]
			if perf.trades == 0 {
				continue
			}
			key := fmt.Sprintf("%s/%s", Type(r), FactorType(ft))
			stats.FactorPerf[key] = PerfSnapshot{
				Trades:    perf.trades,
				WinRate:   float64(perf.wins) / float64(perf.trades),
				AvgReturn: perf.sumReturn / float64(perf.trades),
			}
		}
	}
	return stats
}

// Transitions returns a copy of the recorded transition history.
func (d *Detector) Transitions() []Transition {
	out := make([]Transition, len(d.transitions))
	copy(out, d.transitions)
	return out
}
