package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/regime"
)

func neutralRegime() regime.Regime {
	return regime.Regime{
		Type:           regime.RangingTight,
		Strength:       0.5,
		Confidence:     0.5,
		RiskMultiplier: 1.0,
		Weights:        regime.NeutralWeights(),
	}
}

func TestEntropy_Properties(t *testing.T) {
	assert.Equal(t, 1.0, Entropy(0.5), "entropy peaks at the coin flip")

	for _, p := range []float64{0.01, 0.1, 0.25, 0.33, 0.49} {
		assert.InDelta(t, Entropy(p), Entropy(1-p), 1e-12, "entropy must be symmetric around 0.5")
	}

	assert.Less(t, Entropy(0.001), 0.02)
	assert.Less(t, Entropy(0.999), 0.02)
	assert.Zero(t, Entropy(0))
	assert.Zero(t, Entropy(1))
}

func TestKellyFraction_AlwaysWithinBounds(t *testing.T) {
	cases := []struct {
		p, ret, loss float64
	}{
		{0.99, 0.02, 0.01},
		{0.01, 0.02, 0.01},
		{0.55, 0.02, 0.01},
		{0.5, 0.01, 0.02},
		{0.7, 0.05, 0.0}, // degenerate zero-loss case
		{0.2, 0.05, 0.0},
		{0.6, 0.0, 0.01}, // zero return
		{0.5, 0.02, 0.02},
	}
	for _, tc := range cases {
		k := KellyFraction(tc.p, tc.ret, tc.loss)
		assert.GreaterOrEqual(t, k, 0.0, "p=%v ret=%v loss=%v", tc.p, tc.ret, tc.loss)
		assert.LessOrEqual(t, k, KellyCap, "p=%v ret=%v loss=%v", tc.p, tc.ret, tc.loss)
	}
}

func TestKellyFraction_QuarterKellyCeiling(t *testing.T) {
	// Strong edge: full Kelly would far exceed the cap.
	k := KellyFraction(0.9, 0.02, 0.01)
	assert.Equal(t, KellyCap, k)
}

func TestNetEdge_ExactFormula(t *testing.T) {
	price := 43210.5
	edge := NetEdge(0.55, 0.02*price, 0.01*price, 0.0001*price)
	expected := 0.55*0.02*price - 0.45*0.01*price - 0.0001*price
	assert.InDelta(t, expected, edge, 1e-9)
}

func TestFuse_EmptyIsExactlyNeutral(t *testing.T) {
	res := Fuse(nil)
	assert.Equal(t, 0.5, res.Probability)
	assert.Equal(t, 0.0, res.LogOdds)
	assert.Equal(t, 1.0, res.Entropy)
}

func TestFuse_NegativeUpliftFactorsDiscarded(t *testing.T) {
	factors := []Factor{
		{Type: regime.FactorTechnical, Probability: 0.7, LogOdds: logit(0.7), Weight: 1, RegimeMultiplier: 1, CausalUplift: -0.2},
	}
	res := Fuse(factors)
	assert.Equal(t, 0.5, res.Probability)
	assert.Equal(t, 1.0, res.Entropy)
	assert.Zero(t, res.Used)
}

func TestFuse_SameTypeFactorsDecorrelated(t *testing.T) {
	one := []Factor{
		{Type: regime.FactorTechnical, LogOdds: logit(0.7), Weight: 1, RegimeMultiplier: 1},
	}
	four := []Factor{
		{Type: regime.FactorTechnical, LogOdds: logit(0.7), Weight: 1, RegimeMultiplier: 1},
		{Type: regime.FactorTechnical, LogOdds: logit(0.7), Weight: 1, RegimeMultiplier: 1},
		{Type: regime.FactorTechnical, LogOdds: logit(0.7), Weight: 1, RegimeMultiplier: 1},
		{Type: regime.FactorTechnical, LogOdds: logit(0.7), Weight: 1, RegimeMultiplier: 1},
	}
	// Four correlated same-type factors combine as twice the single-factor
	// evidence, not four times.
	resOne := Fuse(one)
	resFour := Fuse(four)
	assert.InDelta(t, 2*resOne.LogOdds, resFour.LogOdds, 1e-9)
}

func TestGenerate_FiveStrongBuyFactors(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	inputs := []FactorInput{
		{Name: "a", Type: regime.FactorTechnical, Strength: 8, Confidence: 0.9, Signal: market.Buy},
		{Name: "b", Type: regime.FactorPattern, Strength: 8, Confidence: 0.9, Signal: market.Buy},
		{Name: "c", Type: regime.FactorVolume, Strength: 8, Confidence: 0.9, Signal: market.Buy},
		{Name: "d", Type: regime.FactorSentiment, Strength: 8, Confidence: 0.9, Signal: market.Buy},
		{Name: "e", Type: regime.FactorMomentum, Strength: 8, Confidence: 0.9, Signal: market.Buy},
	}

	sig := engine.Generate("BTC-USD", inputs, neutralRegime(), 50000)
	require.NotNil(t, sig)

	assert.Greater(t, sig.Probability, 0.6)
	assert.Less(t, sig.Entropy, 0.6)
	assert.Equal(t, market.Buy, sig.Direction)
	assert.Greater(t, sig.NetEdge, 0.0)
	assert.LessOrEqual(t, sig.KellyFraction, KellyCap)
	assert.Equal(t, 50000*(1-0.01), sig.StopLoss)
	assert.Equal(t, 50000*(1+0.02), sig.TakeProfit)
	assert.InDelta(t, 2.0, sig.RiskReward, 1e-9)
	assert.Len(t, sig.Factors, 5)
	assert.NotEmpty(t, sig.ID)
}

func TestGenerate_NeutralBandYieldsNoSignal(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	// One weak factor: stays inside the 0.4-0.6 neutral band but its
	// entropy also exceeds the bound, so no signal either way.
	inputs := []FactorInput{
		{Name: "weak", Type: regime.FactorTechnical, Strength: 1, Confidence: 0.2, Signal: market.Buy},
	}
	sig := engine.Generate("BTC-USD", inputs, neutralRegime(), 50000)
	assert.Nil(t, sig)
}

func TestGenerate_SellSideMirrors(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	inputs := []FactorInput{
		{Name: "a", Type: regime.FactorTechnical, Strength: 9, Confidence: 0.9, Signal: market.Sell},
		{Name: "b", Type: regime.FactorMomentum, Strength: 9, Confidence: 0.9, Signal: market.Sell},
		{Name: "c", Type: regime.FactorVolume, Strength: 9, Confidence: 0.9, Signal: market.Sell},
	}
	sig := engine.Generate("BTC-USD", inputs, neutralRegime(), 50000)
	require.NotNil(t, sig)

	assert.Equal(t, market.Sell, sig.Direction)
	assert.Less(t, sig.Probability, 0.4)
	assert.Greater(t, sig.StopLoss, 50000.0, "sell stop sits above entry")
	assert.Less(t, sig.TakeProfit, 50000.0)
	assert.Greater(t, sig.NetEdge, 0.0)
}

func TestGenerate_EmptyInputs(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	assert.Nil(t, engine.Generate("BTC-USD", nil, neutralRegime(), 50000))
	assert.Nil(t, engine.Generate("BTC-USD", []FactorInput{}, neutralRegime(), 0))
}

func TestConfluenceScore(t *testing.T) {
	assert.Zero(t, ConfluenceScore(nil))

	strong := []FactorInput{
		{Strength: 8, Confidence: 0.9},
		{Strength: 8, Confidence: 0.9},
		{Strength: 8, Confidence: 0.9},
	}
	assert.InDelta(t, 0.72, ConfluenceScore(strong), 1e-9)

	// A single factor is discounted by the count boost.
	single := []FactorInput{{Strength: 8, Confidence: 0.9}}
	assert.InDelta(t, 0.72/3, ConfluenceScore(single), 1e-9)
}

func TestLogitLogisticRoundTrip(t *testing.T) {
	for _, p := range []float64{0.05, 0.3, 0.5, 0.7, 0.95} {
		assert.InDelta(t, p, logistic(logit(p)), 1e-12)
	}
	assert.False(t, math.IsInf(logit(0), 0), "logit clamps instead of overflowing")
	assert.False(t, math.IsInf(logit(1), 0))
}
