package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/regime"
)

func TestFactorInput_Validate(t *testing.T) {
	valid := FactorInput{
		Name: "rsi_div", Type: regime.FactorTechnical,
		Strength: 7, Confidence: 0.8, Signal: market.Buy,
	}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name   string
		mutate func(*FactorInput)
	}{
		{"missing name", func(f *FactorInput) { f.Name = "" }},
		{"bad type", func(f *FactorInput) { f.Type = regime.FactorType(regime.NumFactorTypes) }},
		{"strength too low", func(f *FactorInput) { f.Strength = 0.5 }},
		{"strength too high", func(f *FactorInput) { f.Strength = 11 }},
		{"confidence negative", func(f *FactorInput) { f.Confidence = -0.1 }},
		{"confidence above one", func(f *FactorInput) { f.Confidence = 1.1 }},
		{"bad direction", func(f *FactorInput) { f.Signal = market.Direction("sideways") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			assert.Error(t, in.Validate())
		})
	}
}

func TestConvert_StrengthMapsAboveHalfForBuy(t *testing.T) {
	e := NewEngine(DefaultConfig())
	in := FactorInput{Name: "f", Type: regime.FactorTechnical, Strength: 8, Confidence: 0.9, Signal: market.Buy}

	f := e.Convert(in, neutralRegime())

	// base = 0.51 + 7*0.034 = 0.748, shrunk by confidence 0.9 toward 0.5.
	assert.InDelta(t, 0.7232, f.Probability, 1e-9)
	assert.Greater(t, f.LogOdds, 0.0)
	assert.Equal(t, 1.0, f.Weight, "unset weight defaults to 1")
	assert.Zero(t, f.CausalUplift, "no trade history yet")
}

func TestConvert_SellMirrorsBelowHalf(t *testing.T) {
	e := NewEngine(DefaultConfig())
	buy := e.Convert(FactorInput{Name: "f", Type: regime.FactorVolume, Strength: 6, Confidence: 0.8, Signal: market.Buy}, neutralRegime())
	sell := e.Convert(FactorInput{Name: "f", Type: regime.FactorVolume, Strength: 6, Confidence: 0.8, Signal: market.Sell}, neutralRegime())

	assert.Greater(t, buy.Probability, 0.5)
	assert.Less(t, sell.Probability, 0.5)
	assert.InDelta(t, buy.Probability-0.5, 0.5-sell.Probability, 0.02)
}

func TestConvert_ProbabilityStaysStrictlyInsideUnitInterval(t *testing.T) {
	e := NewEngine(DefaultConfig())
	extremes := []FactorInput{
		{Name: "max", Type: regime.FactorMomentum, Strength: 10, Confidence: 1.0, Signal: market.Buy},
		{Name: "min", Type: regime.FactorMomentum, Strength: 10, Confidence: 1.0, Signal: market.Sell},
		{Name: "flat", Type: regime.FactorMomentum, Strength: 1, Confidence: 0.0, Signal: market.Neutral},
	}
	for _, in := range extremes {
		f := e.Convert(in, neutralRegime())
		assert.Greater(t, f.Probability, 0.0, in.Name)
		assert.Less(t, f.Probability, 1.0, in.Name)
	}
}

func TestConvert_ZeroConfidenceCollapsesToPrior(t *testing.T) {
	e := NewEngine(DefaultConfig())
	in := FactorInput{Name: "f", Type: regime.FactorPattern, Strength: 10, Confidence: 0, Signal: market.Buy}
	f := e.Convert(in, neutralRegime())
	assert.InDelta(t, 0.5, f.Probability, 1e-9)
}

func TestConvert_PriorShiftsPosterior(t *testing.T) {
	e := NewEngine(DefaultConfig())
	in := FactorInput{Name: "f", Type: regime.FactorTechnical, Strength: 8, Confidence: 0.9, Signal: market.Buy}

	flat := e.Convert(in, neutralRegime())
	e.SetPrior(regime.FactorTechnical, 0.7)
	bullishPrior := e.Convert(in, neutralRegime())

	assert.Greater(t, bullishPrior.Probability, flat.Probability)
}

func TestSetPrior_RejectsDegenerateValues(t *testing.T) {
	e := NewEngine(DefaultConfig())
	e.SetPrior(regime.FactorTechnical, 0)
	e.SetPrior(regime.FactorTechnical, 1)
	e.SetPrior(regime.FactorType(regime.NumFactorTypes), 0.7)
	assert.Equal(t, 0.5, e.priors[regime.FactorTechnical])
}

func TestConvert_RegimeMultiplierAmplifiesEvidence(t *testing.T) {
	e := NewEngine(DefaultConfig())
	in := FactorInput{Name: "f", Type: regime.FactorMomentum, Strength: 8, Confidence: 0.9, Signal: market.Buy}

	boosted := neutralRegime()
	boosted.Weights[regime.FactorMomentum] = 2.0

	plain := e.Convert(in, neutralRegime())
	amplified := e.Convert(in, boosted)

	assert.Greater(t, amplified.Probability, plain.Probability)
	assert.Equal(t, 2.0, amplified.RegimeMultiplier)
}

func TestCausalUplift_RequiresMinimumHistory(t *testing.T) {
	e := NewEngine(DefaultConfig())

	for i := 0; i < upliftMinTrades-1; i++ {
		e.perf.record("winner", regime.FactorTechnical, true, 0.02)
	}
	assert.Zero(t, e.perf.causalUplift("winner", regime.FactorTechnical))

	e.perf.record("winner", regime.FactorTechnical, true, 0.02)
	assert.InDelta(t, 0.01, e.perf.causalUplift("winner", regime.FactorTechnical), 1e-9)
}

func TestCausalUplift_Clamped(t *testing.T) {
	e := NewEngine(DefaultConfig())
	for i := 0; i < 20; i++ {
		e.perf.record("moon", regime.FactorMomentum, true, 5.0)
	}
	assert.Equal(t, 0.5, e.perf.causalUplift("moon", regime.FactorMomentum))

	for i := 0; i < 20; i++ {
		e.perf.record("rug", regime.FactorMomentum, false, 5.0)
	}
	assert.Equal(t, -0.5, e.perf.causalUplift("rug", regime.FactorMomentum))
}

func TestCalibrator_NeutralBelowMinimumSamples(t *testing.T) {
	c := &calibrator{}
	for i := 0; i < calibrationMinSamples-1; i++ {
		c.record(0.7, 1)
	}
	assert.Equal(t, 0.5, c.score())
}

func TestCalibrator_PerfectCalibrationScoresOne(t *testing.T) {
	c := &calibrator{}
	// 20 records at p=0.75 with exactly 15 wins: bucket error is zero.
	for i := 0; i < 20; i++ {
		actual := 0.0
		if i < 15 {
			actual = 1.0
		}
		c.record(0.75, actual)
	}
	assert.InDelta(t, 1.0, c.score(), 1e-9)
}

func TestCalibrator_OverconfidencePenalized(t *testing.T) {
	c := &calibrator{}
	// Predicting 0.9 while winning only half the time.
	for i := 0; i < 30; i++ {
		actual := 0.0
		if i%2 == 0 {
			actual = 1.0
		}
		c.record(0.9, actual)
	}
	score := c.score()
	assert.Less(t, score, 0.5)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestCalibrator_HistoryBounded(t *testing.T) {
	c := &calibrator{}
	for i := 0; i < calibrationMaxRecords+100; i++ {
		c.record(0.6, 1)
	}
	assert.Len(t, c.records, calibrationMaxRecords)
}
