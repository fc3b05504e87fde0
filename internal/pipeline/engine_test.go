package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/signalcore/internal/fusion"
	"github.com/tradeforge/signalcore/internal/gates"
	"github.com/tradeforge/signalcore/internal/learning"
	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/regime"
)

// recordingSink counts telemetry callbacks.
type recordingSink struct {
	accepted  int
	rejected  map[gates.Reason]int
	noSignal  int
	regimes   int
	adaptions int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{rejected: make(map[gates.Reason]int)}
}

func (s *recordingSink) SignalAccepted(*fusion.Signal)           { s.accepted++ }
func (s *recordingSink) SignalRejected(r gates.Reason)           { s.rejected[r]++ }
func (s *recordingSink) NoSignal()                               { s.noSignal++ }
func (s *recordingSink) RegimeObserved(regime.Regime)            { s.regimes++ }
func (s *recordingSink) AdaptationApplied([]learning.Adaptation) { s.adaptions++ }

func uptrendInput(n int) CycleInput {
	candles := make([]market.Candle, n)
	volume := make([]float64, n)
	price := 50000.0
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		open := price
		price *= 1.005
		candles[i] = market.Candle{
			Open: open, High: price * 1.001, Low: open * 0.999, Close: price,
			Volume: 1000 + float64(i)*50, Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		volume[i] = candles[i].Volume
	}
	return CycleInput{
		Symbol:  "BTC-USD",
		Candles: candles,
		Volume:  volume,
		Price:   price,
	}
}

func strongBuyFactors() []fusion.FactorInput {
	return []fusion.FactorInput{
		{Name: "ma_cross", Type: regime.FactorTechnical, Strength: 8, Confidence: 0.9, Signal: market.Buy},
		{Name: "flag_break", Type: regime.FactorPattern, Strength: 8, Confidence: 0.9, Signal: market.Buy},
		{Name: "vol_surge", Type: regime.FactorVolume, Strength: 8, Confidence: 0.9, Signal: market.Buy},
		{Name: "social_pulse", Type: regime.FactorSentiment, Strength: 8, Confidence: 0.9, Signal: market.Buy},
		{Name: "roc_accel", Type: regime.FactorMomentum, Strength: 8, Confidence: 0.9, Signal: market.Buy},
	}
}

// warmUp feeds growing candle history so the detector settles into a regime
// before the decision cycle under test.
func warmUp(t *testing.T, e *Engine, in CycleInput) {
	t.Helper()
	ctx := context.Background()
	for i := 20; i <= len(in.Candles); i++ {
		partial := in
		partial.Candles = in.Candles[:i]
		partial.Volume = in.Volume[:i]
		partial.Factors = nil
		_, err := e.EvaluateCycle(ctx, partial)
		require.NoError(t, err)
	}
}

func TestEvaluateCycle_EndToEndAcceptance(t *testing.T) {
	sink := newRecordingSink()
	opts := DefaultOptions()
	opts.Sink = sink
	e := New(opts)

	in := uptrendInput(40)
	warmUp(t, e, in)

	in.Factors = strongBuyFactors()
	res, err := e.EvaluateCycle(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, StatusAccepted, res.Status)
	require.NotNil(t, res.Signal)
	assert.Equal(t, market.Buy, res.Signal.Direction)
	assert.Greater(t, res.Signal.Probability, 0.6)
	assert.Less(t, res.Signal.Entropy, 0.6)
	assert.Greater(t, res.Signal.KellyFraction, 0.0)
	assert.LessOrEqual(t, res.Signal.KellyFraction, fusion.KellyCap)
	assert.Equal(t, regime.TrendingBullish, res.Regime.Type)

	assert.Equal(t, 1, sink.accepted)
	assert.Greater(t, sink.regimes, 20)
}

func TestEvaluateCycle_NoFactorsMeansNoSignal(t *testing.T) {
	sink := newRecordingSink()
	opts := DefaultOptions()
	opts.Sink = sink
	e := New(opts)

	res, err := e.EvaluateCycle(context.Background(), uptrendInput(40))
	require.NoError(t, err)
	assert.Equal(t, StatusNoSignal, res.Status)
	assert.Nil(t, res.Signal)
	assert.Equal(t, 1, sink.noSignal)
}

func TestEvaluateCycle_WeakFactorsRejectedWithReason(t *testing.T) {
	sink := newRecordingSink()
	opts := DefaultOptions()
	opts.Sink = sink
	e := New(opts)

	in := uptrendInput(40)
	warmUp(t, e, in)

	// Two mildly bullish factors: enough to clear the entropy bound inside
	// the fusion engine is unlikely, so either no signal or a gated
	// rejection, never an acceptance.
	in.Factors = []fusion.FactorInput{
		{Name: "weak_a", Type: regime.FactorTechnical, Strength: 4, Confidence: 0.5, Signal: market.Buy},
		{Name: "weak_b", Type: regime.FactorVolume, Strength: 4, Confidence: 0.5, Signal: market.Buy},
	}
	res, err := e.EvaluateCycle(context.Background(), in)
	require.NoError(t, err)
	assert.NotEqual(t, StatusAccepted, res.Status)
	assert.Zero(t, sink.accepted)
}

func TestEvaluateCycle_CancelledContext(t *testing.T) {
	e := New(DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.EvaluateCycle(ctx, uptrendInput(40))
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestReportOutcome_FeedsLearningAndClearsOpenSignal(t *testing.T) {
	e := New(DefaultOptions())

	in := uptrendInput(40)
	warmUp(t, e, in)
	in.Factors = strongBuyFactors()

	res, err := e.EvaluateCycle(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, res.Status)
	sig := res.Signal

	require.Contains(t, e.open, sig.ID)

	outcome := learning.Outcome{
		SignalID:      sig.ID,
		Symbol:        sig.Symbol,
		Direction:     sig.Direction,
		EntryPrice:    sig.EntryPrice,
		ExitPrice:     sig.TakeProfit,
		EntryTime:     sig.CreatedAt,
		ExitTime:      sig.CreatedAt.Add(time.Hour),
		PredictedProb: sig.Probability,
		ActualReturn:  0.02,
		Regime:        res.Regime.Type,
		CorrectDir:    true,
	}
	e.ReportOutcome(outcome)

	assert.NotContains(t, e.open, sig.ID, "settled signal leaves the open set")

	// A duplicate report must be a no-op.
	e.ReportOutcome(outcome)
	assert.Equal(t, 1, e.learner.Duplicates())
}

func TestReportOutcome_UnknownSignalIDStillTracked(t *testing.T) {
	e := New(DefaultOptions())

	e.ReportOutcome(learning.Outcome{
		SignalID:     "never-generated",
		ActualReturn: 0.01,
		CorrectDir:   true,
		ExitTime:     time.Now(),
	})
	// No open signal to settle, but the outcome still lands in the ledger.
	assert.Equal(t, 0, e.learner.Duplicates())
}

func TestEngine_OpenSignalSetBounded(t *testing.T) {
	e := New(DefaultOptions())
	e.maxOpen = 5

	for i := 0; i < 10; i++ {
		e.trackOpen(&fusion.Signal{ID: fmt.Sprintf("sig-%d", i)})
	}
	assert.LessOrEqual(t, len(e.open), 5)
}

func TestSnapshotAccessors(t *testing.T) {
	e := New(DefaultOptions())

	th := e.CurrentThresholds()
	assert.Equal(t, 0.60, th.Entropy.Current)

	th.Entropy.Current = 0.75
	e.RestoreThresholds(th)
	assert.Equal(t, 0.75, e.CurrentThresholds().Entropy.Current)

	assert.Equal(t, learning.HealthUnknown, e.Health().Tier)
	assert.NotNil(t, e.Parameters().RegimeWeights)
	assert.Zero(t, e.RegimeStats().Transitions)
}
