package fusion

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/regime"
)

// Config tunes the fusion engine.
type Config struct {
	MaxEntropy    float64 `yaml:"max_entropy" default:"0.6" validate:"gt=0,lte=1"`
	StopLossPct   float64 `yaml:"stop_loss_pct" default:"0.01" validate:"gt=0"`
	TakeProfitPct float64 `yaml:"take_profit_pct" default:"0.02" validate:"gt=0"`
	CostPct       float64 `yaml:"cost_pct" default:"0.0001" validate:"gte=0"`
	// NeutralLow/NeutralHigh bound the no-trade probability band.
	NeutralLow  float64 `yaml:"neutral_low" default:"0.4" validate:"gt=0,lt=1"`
	NeutralHigh float64 `yaml:"neutral_high" default:"0.6" validate:"gt=0,lt=1"`
}

// DefaultConfig returns the production fusion configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntropy:    0.6,
		StopLossPct:   0.01,
		TakeProfitPct: 0.02,
		CostPct:       0.0001,
		NeutralLow:    0.4,
		NeutralHigh:   0.6,
	}
}

// Signal is the fused decision artifact. Immutable once produced.
type Signal struct {
	ID               string           `json:"id"`
	Symbol           string           `json:"symbol"`
	Direction        market.Direction `json:"direction"`
	Probability      float64          `json:"probability"`
	LogOdds          float64          `json:"log_odds"`
	Entropy          float64          `json:"entropy"`
	NetEdge          float64          `json:"net_edge"`      // price units
	EdgeRate         float64          `json:"edge_rate"`     // net edge / entry price
	KellyFraction    float64          `json:"kelly_fraction"`
	PositionFraction float64          `json:"position_fraction"`
	EntryPrice       float64          `json:"entry_price"`
	StopLoss         float64          `json:"stop_loss"`
	TakeProfit       float64          `json:"take_profit"`
	RiskReward       float64          `json:"risk_reward"`
	CalibrationScore float64          `json:"calibration_score"`
	ConfluenceScore  float64          `json:"confluence_score"`
	Factors          []Factor         `json:"factors"`
	Regime           regime.Regime    `json:"regime"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Engine owns factor priors, factor performance history, and calibration
// history. Not safe for concurrent use; the owning pipeline serializes.
type Engine struct {
	cfg    Config
	priors regime.WeightTable // per-factor-type priors, stored as probabilities
	perf   *perfTracker
	calib  *calibrator
}

// NewEngine creates a fusion engine with neutral 0.5 priors.
func NewEngine(cfg Config) *Engine {
	var priors regime.WeightTable
	for i := range priors {
		priors[i] = 0.5
	}
	return &Engine{
		cfg:    cfg,
		priors: priors,
		perf:   newPerfTracker(),
		calib:  &calibrator{},
	}
}

// SetPrior overrides the Bayesian prior for one factor type.
func (e *Engine) SetPrior(ft regime.FactorType, prior float64) {
	if !ft.Valid() || prior <= 0 || prior >= 1 {
		return
	}
	e.priors[ft] = prior
}

// Generate converts, fuses, and packages the factor set into a Signal.
// It returns nil when no actionable signal exists: entropy above the
// configured bound, a neutral fused direction, or non-positive net edge.
// These are expected outcomes, not errors.
func (e *Engine) Generate(symbol string, inputs []FactorInput, reg regime.Regime, price float64) *Signal {
	if len(inputs) == 0 || price <= 0 {
		return nil
	}

	factors := make([]Factor, 0, len(inputs))
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			log.Warn().Err(err).Msg("Dropping invalid factor input")
			continue
		}
		factors = append(factors, e.Convert(in, reg))
	}
	if len(factors) == 0 {
		return nil
	}

	fused := Fuse(factors)
	if fused.Entropy > e.cfg.MaxEntropy {
		log.Debug().Float64("entropy", fused.Entropy).Float64("max", e.cfg.MaxEntropy).
			Msg("No signal: entropy above bound")
		return nil
	}

	direction := e.direction(fused.Probability)
	if direction == market.Neutral {
		log.Debug().Float64("probability", fused.Probability).Msg("No signal: neutral direction")
		return nil
	}

	// Probability of the trade winning, from the trade's side.
	pWin := fused.Probability
	if direction == market.Sell {
		pWin = 1 - fused.Probability
	}

	expectedReturn := price * e.cfg.TakeProfitPct
	expectedLoss := price * e.cfg.StopLossPct
	costs := price * e.cfg.CostPct
	edge := NetEdge(pWin, expectedReturn, expectedLoss, costs)
	if edge <= 0 {
		log.Debug().Float64("edge", edge).Msg("No signal: non-positive net edge")
		return nil
	}

	kelly := KellyFraction(pWin, expectedReturn, expectedLoss)

	stop, take := price*(1-e.cfg.StopLossPct), price*(1+e.cfg.TakeProfitPct)
	if direction == market.Sell {
		stop, take = price*(1+e.cfg.StopLossPct), price*(1-e.cfg.TakeProfitPct)
	}

	return &Signal{
		ID:               uuid.NewString(),
		Symbol:           symbol,
		Direction:        direction,
		Probability:      fused.Probability,
		LogOdds:          fused.LogOdds,
		Entropy:          fused.Entropy,
		NetEdge:          edge,
		EdgeRate:         edge / price,
		KellyFraction:    kelly,
		PositionFraction: kelly,
		EntryPrice:       price,
		StopLoss:         stop,
		TakeProfit:       take,
		RiskReward:       e.cfg.TakeProfitPct / e.cfg.StopLossPct,
		CalibrationScore: e.calib.score(),
		ConfluenceScore:  ConfluenceScore(inputs),
		Factors:          factors,
		Regime:           reg,
		CreatedAt:        time.Now(),
	}
}

func (e *Engine) direction(p float64) market.Direction {
	switch {
	case p > e.cfg.NeutralHigh:
		return market.Buy
	case p < e.cfg.NeutralLow:
		return market.Sell
	default:
		return market.Neutral
	}
}

// ConfluenceScore aggregates strength*confidence across contributing
// factors, discounted when fewer than three factors agree.
func ConfluenceScore(inputs []FactorInput) float64 {
	if len(inputs) == 0 {
		return 0
	}
	sum := 0.0
	for _, in := range inputs {
		sum += (in.Strength / 10) * in.Confidence
	}
	mean := sum / float64(len(inputs))
	countBoost := float64(len(inputs)) / 3
	if countBoost > 1 {
		countBoost = 1
	}
	return clampUnit(mean * countBoost)
}

// RecordOutcome feeds a realized result back into factor performance and
// calibration history. predicted is the fused up-move probability and
// upMove whether the market actually moved up, so calibration stays in one
// orientation regardless of trade side. win reports whether the trade's
// predicted direction was correct; ret is the realized fractional return.
func (e *Engine) RecordOutcome(predicted float64, upMove, win bool, ret float64, factors []Factor) {
	actual := 0.0
	if upMove {
		actual = 1.0
	}
	e.calib.record(predicted, actual)
	for _, f := range factors {
		e.perf.record(f.Name, f.Type, win, ret)
	}
}

// CalibrationScore exposes the current bucketed calibration score.
func (e *Engine) CalibrationScore() float64 {
	return e.calib.score()
}
