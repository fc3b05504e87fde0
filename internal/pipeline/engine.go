// Package pipeline wires the four decision engines into one evaluation
// cycle: regime detection, probabilistic fusion, adaptive gating, and
// continuous learning. One Engine instance serves one symbol/session.
package pipeline

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tradeforge/signalcore/internal/fusion"
	"github.com/tradeforge/signalcore/internal/gates"
	"github.com/tradeforge/signalcore/internal/learning"
	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/regime"
)

// TelemetrySink receives structured diagnostic events. Implementations
// must be cheap and non-blocking; the pipeline calls them inline.
type TelemetrySink interface {
	SignalAccepted(sig *fusion.Signal)
	SignalRejected(reason gates.Reason)
	NoSignal()
	RegimeObserved(reg regime.Regime)
	AdaptationApplied(adaptations []learning.Adaptation)
}

// NopSink discards all telemetry.
type NopSink struct{}

func (NopSink) SignalAccepted(*fusion.Signal)           {}
func (NopSink) SignalRejected(gates.Reason)             {}
func (NopSink) NoSignal()                               {}
func (NopSink) RegimeObserved(regime.Regime)            {}
func (NopSink) AdaptationApplied([]learning.Adaptation) {}

// CycleInput is everything one evaluation cycle consumes.
type CycleInput struct {
	Symbol     string
	Candles    []market.Candle
	Volume     []float64
	Indicators *market.Indicators
	News       []market.NewsItem
	Factors    []fusion.FactorInput
	Price      float64
}

// Outcome of a cycle.
type CycleStatus string

const (
	StatusAccepted CycleStatus = "accepted"
	StatusRejected CycleStatus = "rejected"
	StatusNoSignal CycleStatus = "no_signal"
)

// CycleResult is the well-typed product of one cycle. The pipeline always
// produces one; "no signal" is a result, not an error.
type CycleResult struct {
	Status   CycleStatus    `json:"status"`
	Regime   regime.Regime  `json:"regime"`
	Signal   *fusion.Signal `json:"signal,omitempty"`
	Decision gates.Decision `json:"decision"`
}

// Engine owns one symbol's decision loop. All mutating entry points hold
// the single-writer lock; read-only snapshots copy under the same lock and
// are safe to use after release.
type Engine struct {
	mu sync.Mutex

	detector *regime.Detector
	fuser    *fusion.Engine
	gater    *gates.Engine
	learner  *learning.Tracker
	params   learning.Parameters
	sink     TelemetrySink

	// open signals awaiting outcome feedback, by signal id
	open    map[string]*fusion.Signal
	maxOpen int
}

// Options configures an Engine.
type Options struct {
	Regime   regime.Config
	Fusion   fusion.Config
	Gates    gates.Config
	Learning learning.Config
	Sink     TelemetrySink
}

// DefaultOptions returns production defaults with no telemetry sink.
func DefaultOptions() Options {
	return Options{
		Regime:   regime.DefaultConfig(),
		Fusion:   fusion.DefaultConfig(),
		Gates:    gates.DefaultConfig(),
		Learning: learning.DefaultConfig(),
		Sink:     NopSink{},
	}
}

// New creates an engine from options.
func New(opts Options) *Engine {
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		detector: regime.NewDetector(opts.Regime),
		fuser:    fusion.NewEngine(opts.Fusion),
		gater:    gates.NewEngine(opts.Gates, gates.DefaultThresholds()),
		learner:  learning.NewTracker(opts.Learning),
		params:   learning.DefaultParameters(),
		sink:     sink,
		open:     make(map[string]*fusion.Signal),
		maxOpen:  1000,
	}
}

// EvaluateCycle runs one synchronous decision cycle. The context is
// accepted for interface symmetry with callers that impose deadlines; the
// cycle itself is CPU-bound over small bounded windows.
func (e *Engine) EvaluateCycle(ctx context.Context, in CycleInput) (*CycleResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	reg := e.detector.Detect(in.Candles, in.Volume, in.Indicators, in.News)
	e.sink.RegimeObserved(reg)

	result := &CycleResult{Regime: reg}

	sig := e.fuser.Generate(in.Symbol, in.Factors, reg, in.Price)
	if sig == nil {
		result.Status = StatusNoSignal
		e.sink.NoSignal()
		e.gater.Adapt() // time-gated no-op most cycles
		return result, nil
	}

	decision := e.gater.Evaluate(sig)
	result.Decision = decision
	if decision.Accepted {
		result.Status = StatusAccepted
		result.Signal = sig
		e.trackOpen(sig)
		e.sink.SignalAccepted(sig)
		log.Info().
			Str("symbol", sig.Symbol).
			Str("direction", string(sig.Direction)).
			Float64("probability", sig.Probability).
			Float64("kelly", sig.KellyFraction).
			Str("regime", reg.Type.String()).
			Msg("Signal accepted")
	} else {
		result.Status = StatusRejected
		e.sink.SignalRejected(decision.Reason)
		log.Debug().
			Str("symbol", sig.Symbol).
			Str("reason", string(decision.Reason)).
			Str("detail", decision.Detail).
			Msg("Signal rejected")
	}

	e.gater.Adapt()
	return result, nil
}

func (e *Engine) trackOpen(sig *fusion.Signal) {
	if len(e.open) >= e.maxOpen {
		// Drop an arbitrary stale entry; outcomes for it become no-ops.
		for id := range e.open {
			delete(e.open, id)
			break
		}
	}
	e.open[sig.ID] = sig
}

// ReportOutcome feeds one realized outcome back into the learning loop and
// the fusion/regime adaptation state. Safe to call in any order relative
// to cycles; duplicate signal ids are dropped by the tracker.
func (e *Engine) ReportOutcome(o learning.Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.learner.AddOutcome(o) {
		return
	}

	win := o.CorrectDir
	if sig, ok := e.open[o.SignalID]; ok {
		upMove := (sig.Direction == market.Buy) == win
		e.fuser.RecordOutcome(sig.Probability, upMove, win, o.ActualReturn, sig.Factors)
		for _, f := range sig.Factors {
			e.detector.RecordFactorOutcome(o.Regime, f.Type, win, o.ActualReturn)
		}
		delete(e.open, o.SignalID)
	}

	if e.learner.NeedsRecalibration() {
		log.Warn().Msg("Performance degradation detected, recalibrating")
		var applied []learning.Adaptation
		e.params, applied = e.learner.Recalibrate(e.params)
		if len(applied) > 0 {
			e.sink.AdaptationApplied(applied)
		}
	}
}

// CurrentRegime returns the detector's latest snapshot.
func (e *Engine) CurrentRegime() regime.Regime {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.Current()
}

// CurrentThresholds returns the gate thresholds snapshot.
func (e *Engine) CurrentThresholds() gates.Thresholds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gater.Current()
}

// RestoreThresholds replaces gate thresholds from a persisted snapshot.
func (e *Engine) RestoreThresholds(th gates.Thresholds) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gater.SetThresholds(th)
}

// RegimeWeights returns one regime's adaptive weight table.
func (e *Engine) RegimeWeights(r regime.Type) regime.WeightTable {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.WeightsFor(r)
}

// RestoreWeights replaces one regime's weight table from a persisted
// snapshot.
func (e *Engine) RestoreWeights(r regime.Type, wt regime.WeightTable) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detector.SetWeights(r, wt)
}

// RejectionStats exposes rejection analytics.
func (e *Engine) RejectionStats() gates.RejectionStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gater.RejectionStats()
}

// DensityStats exposes signal-density analytics.
func (e *Engine) DensityStats() gates.DensityStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gater.DensityStats()
}

// RegimeStats exposes regime transition analytics.
func (e *Engine) RegimeStats() regime.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.Statistics()
}

// Health exposes the learning engine's health summary.
func (e *Engine) Health() learning.Health {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.learner.Health()
}

// Recommendations exposes optimizer proposals without applying them.
func (e *Engine) Recommendations() []learning.Proposal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.learner.Recommendations(e.params)
}

// Adaptations returns the applied parameter-change history.
func (e *Engine) Adaptations() []learning.Adaptation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.learner.Adaptations()
}

// Parameters returns the current tuned parameter set.
func (e *Engine) Parameters() learning.Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}
