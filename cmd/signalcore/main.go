package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "signalcore"
	version = "v1.2.0"
)

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Probabilistic trading signal decision engine",
		Version: version,
		Long: `signalcore fuses per-factor trading signals into one calibrated
probability under a detected market regime, gates the result through
self-tuning thresholds, and learns from realized outcomes.`,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	evaluateCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run one demo evaluation cycle on synthetic data",
		Long:  "Builds a synthetic trending market, runs one full regime -> fusion -> gating cycle, and prints the decision.",
		RunE:  runEvaluate,
	}
	evaluateCmd.Flags().String("symbol", "BTC-USD", "symbol label for the demo cycle")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the diagnostics HTTP server",
		Long:  "Serves /health, /regime, /thresholds, /rejections, and Prometheus /metrics for one engine instance.",
		RunE:  runServe,
	}

	rootCmd.AddCommand(evaluateCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
