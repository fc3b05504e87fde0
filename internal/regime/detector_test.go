package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/signalcore/internal/market"
)

func syntheticCandles(n int, growth, noise float64, startPrice, startVol, volGrowth float64) ([]market.Candle, []float64) {
	candles := make([]market.Candle, n)
	volume := make([]float64, n)
	price := startPrice
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		open := price
		price = price * (1 + growth)
		hi := price * (1 + noise)
		lo := open * (1 - noise)
		vol := startVol + float64(i)*volGrowth
		candles[i] = market.Candle{
			Open: open, High: hi, Low: lo, Close: price,
			Volume: vol, Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		volume[i] = vol
	}
	return candles, volume
}

func TestDetector_TrendingUpConvergesToTrendingBullish(t *testing.T) {
	d := NewDetector(DefaultConfig())

	candles, volume := syntheticCandles(40, 0.005, 0.001, 50000, 1000, 50)

	var reg Regime
	for i := 20; i <= len(candles); i++ {
		reg = d.Detect(candles[:i], volume[:i], nil, nil)
	}

	assert.Equal(t, TrendingBullish, reg.Type, "monotonic rising closes with growing volume should classify as trending_bullish")
	assert.Greater(t, reg.Confidence, 0.0)
	assert.Equal(t, 1.2, reg.RiskMultiplier)
}

func TestDetector_FlatSeriesConvergesToRangingTight(t *testing.T) {
	d := NewDetector(DefaultConfig())

	candles, volume := syntheticCandles(40, 0.0, 0.0005, 100, 1000, 0)

	var reg Regime
	for i := 20; i <= len(candles); i++ {
		reg = d.Detect(candles[:i], volume[:i], nil, nil)
	}

	assert.Equal(t, RangingTight, reg.Type, "flat low-volatility series should classify as ranging_tight")
}

func TestDetector_ShortHistoryFallsBackToNeutral(t *testing.T) {
	d := NewDetector(DefaultConfig())

	candles, volume := syntheticCandles(5, 0.01, 0.001, 100, 1000, 0)
	reg := d.Detect(candles, volume, nil, nil)

	assert.Equal(t, RangingTight, reg.Type)
	assert.Equal(t, 0.5, reg.Strength)
	assert.Equal(t, 0.5, reg.Confidence)
}

func TestDetector_EmptyInputsNeverPanic(t *testing.T) {
	d := NewDetector(DefaultConfig())

	reg := d.Detect(nil, nil, nil, nil)
	assert.Equal(t, RangingTight, reg.Type)
}

func TestDetector_TransitionRecordedWithTriggers(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// Establish a flat regime first.
	flat, flatVol := syntheticCandles(30, 0.0, 0.0005, 100, 1000, 0)
	for i := 20; i <= len(flat); i++ {
		d.Detect(flat[:i], flatVol[:i], nil, nil)
	}
	require.Equal(t, RangingTight, d.Current().Type)

	// Then feed a strong uptrend until the regime flips.
	up, upVol := syntheticCandles(45, 0.006, 0.001, 100, 3000, 100)
	for i := 20; i <= len(up); i++ {
		d.Detect(up[:i], upVol[:i], nil, nil)
	}
	require.Equal(t, TrendingBullish, d.Current().Type)

	transitions := d.Transitions()
	require.NotEmpty(t, transitions)
	last := transitions[len(transitions)-1]
	assert.Equal(t, TrendingBullish, last.To)

	stats := d.Statistics()
	assert.Equal(t, len(transitions), stats.Transitions)
	assert.NotEmpty(t, stats.TransitionCounts)
}

func TestDetector_ForceRegime(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.ForceRegime(LiquidityCrisis)
	assert.Equal(t, LiquidityCrisis, d.Current().Type)
	assert.Equal(t, 0.3, d.Current().RiskMultiplier)
}

func TestDetector_SnapshotCarriesDurationModel(t *testing.T) {
	d := NewDetector(DefaultConfig())
	d.ForceRegime(TrendingBullish)

	reg := d.Current()
	assert.Equal(t, 36*time.Hour, reg.ExpectedDuration)
	assert.Equal(t, 6*time.Hour, reg.MinDuration)
	assert.Equal(t, 120*time.Hour, reg.MaxDuration)
	assert.Equal(t, 0.85, reg.Persistence)
}

func TestDetector_ObservationWindowIsBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ObservationWindow = 10
	d := NewDetector(cfg)

	candles, volume := syntheticCandles(30, 0.001, 0.001, 100, 1000, 0)
	for i := 0; i < 50; i++ {
		d.Detect(candles, volume, nil, nil)
	}
	assert.LessOrEqual(t, len(d.window), 10)
}

func TestDetector_AdaptiveWeightsNormalizedAfterTransition(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// Strong recorded performance for momentum factors in the bullish regime.
	for i := 0; i < 30; i++ {
		d.RecordFactorOutcome(TrendingBullish, FactorMomentum, true, 0.02)
		d.RecordFactorOutcome(TrendingBullish, FactorSentiment, false, -0.01)
	}

	// Flat first, then an uptrend forces a transition into TrendingBullish,
	// which triggers reweighting for that regime.
	flat, flatVol := syntheticCandles(30, 0.0, 0.0005, 100, 1000, 0)
	for i := 20; i <= len(flat); i++ {
		d.Detect(flat[:i], flatVol[:i], nil, nil)
	}
	up, upVol := syntheticCandles(45, 0.006, 0.001, 100, 3000, 100)
	for i := 20; i <= len(up); i++ {
		d.Detect(up[:i], upVol[:i], nil, nil)
	}
	require.Equal(t, TrendingBullish, d.Current().Type)

	wt := d.WeightsFor(TrendingBullish)
	assert.InDelta(t, 1.0, wt.Mean(), 1e-9, "weight table must renormalize to mean 1.0")
	assert.Greater(t, wt[FactorMomentum], wt[FactorSentiment],
		"winning factor type should outweigh losing one after adaptation")
	for _, w := range wt {
		assert.GreaterOrEqual(t, w, 0.0)
	}
}

func TestWeightTable_NormalizeHandlesDegenerateInput(t *testing.T) {
	var wt WeightTable // all zeros
	wt.Normalize()
	assert.Equal(t, NeutralWeights(), wt)
}
