package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/tradeforge/signalcore/internal/config"
	"github.com/tradeforge/signalcore/internal/fusion"
	"github.com/tradeforge/signalcore/internal/market"
	"github.com/tradeforge/signalcore/internal/pipeline"
	"github.com/tradeforge/signalcore/internal/regime"
)

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setLogLevel(cfg.Logging.Level)

	symbol, _ := cmd.Flags().GetString("symbol")

	engine := pipeline.New(pipeline.Options{
		Regime:   cfg.Regime,
		Fusion:   cfg.Fusion,
		Gates:    cfg.Gates,
		Learning: cfg.Learning,
	})

	candles, volume := syntheticUptrend(40, 50000.0)
	input := pipeline.CycleInput{
		Symbol:  symbol,
		Candles: candles,
		Volume:  volume,
		Factors: demoFactors(),
		Price:   candles[len(candles)-1].Close,
	}

	// Warm the observation window so classification has history.
	for i := 25; i < len(candles); i++ {
		warm := input
		warm.Candles = candles[:i]
		warm.Volume = volume[:i]
		if _, err := engine.EvaluateCycle(context.Background(), warm); err != nil {
			return err
		}
	}

	result, err := engine.EvaluateCycle(context.Background(), input)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// syntheticUptrend builds a steadily rising series with modest noise and
// growing volume.
func syntheticUptrend(n int, startPrice float64) ([]market.Candle, []float64) {
	rng := rand.New(rand.NewSource(42))
	candles := make([]market.Candle, n)
	volume := make([]float64, n)
	price := startPrice
	base := time.Now().Add(-time.Duration(n) * time.Hour)

	for i := 0; i < n; i++ {
		open := price
		price *= 1 + 0.004 + rng.Float64()*0.002
		vol := 1000 + float64(i)*40 + rng.Float64()*100
		candles[i] = market.Candle{
			Open:      open,
			High:      price * 1.001,
			Low:       open * 0.999,
			Close:     price,
			Volume:    vol,
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		volume[i] = vol
	}
	return candles, volume
}

func demoFactors() []fusion.FactorInput {
	return []fusion.FactorInput{
		{Name: "ema_cross", Type: regime.FactorTechnical, Strength: 8, Confidence: 0.85, Signal: market.Buy},
		{Name: "bull_flag", Type: regime.FactorPattern, Strength: 7, Confidence: 0.8, Signal: market.Buy},
		{Name: "obv_surge", Type: regime.FactorVolume, Strength: 8, Confidence: 0.9, Signal: market.Buy},
		{Name: "funding_skew", Type: regime.FactorSentiment, Strength: 7, Confidence: 0.75, Signal: market.Buy},
		{Name: "roc_accel", Type: regime.FactorMomentum, Strength: 9, Confidence: 0.9, Signal: market.Buy},
	}
}
