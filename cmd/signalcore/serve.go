package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradeforge/signalcore/internal/config"
	"github.com/tradeforge/signalcore/internal/httpapi"
	"github.com/tradeforge/signalcore/internal/persistence/postgres"
	"github.com/tradeforge/signalcore/internal/persistence/redisstore"
	"github.com/tradeforge/signalcore/internal/pipeline"
	"github.com/tradeforge/signalcore/internal/regime"
	"github.com/tradeforge/signalcore/internal/telemetry"
)

const snapshotSymbol = "default"

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setLogLevel(cfg.Logging.Level)

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	engine := pipeline.New(pipeline.Options{
		Regime:   cfg.Regime,
		Fusion:   cfg.Fusion,
		Gates:    cfg.Gates,
		Learning: cfg.Learning,
		Sink:     metrics,
	})

	// Resume tuned state from the snapshot store when available.
	var store *redisstore.Store
	if cfg.Redis.Enabled {
		store = redisstore.New(cfg.Redis.Addr, cfg.Redis.DB)
		defer store.Close()
		restoreSnapshots(cmd.Context(), store, engine)
	}

	// The archive also seeds the learning ledger so a restart does not
	// reset the degradation baseline.
	var archive *postgres.Repo
	if cfg.Postgres.Enabled {
		archive, err = postgres.New(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer archive.Close()
		replayOutcomes(cmd.Context(), archive, engine, cfg.Learning.MinSampleSize*2)
	}

	serverCfg := httpapi.Config{
		Addr:          cfg.Server.Addr,
		RatePerSecond: cfg.Server.RatePerSecond,
		RateBurst:     cfg.Server.RateBurst,
	}
	if archive != nil {
		serverCfg.Archive = archive
	}
	server := httpapi.New(serverCfg, engine, registry)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if store != nil {
			saveSnapshots(ctx, store, engine)
		}
		return server.Shutdown(ctx)
	}
}

func restoreSnapshots(parent context.Context, store *redisstore.Store, engine *pipeline.Engine) {
	ctx, cancel := context.WithTimeout(parent, 3*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Snapshot store unreachable, starting from defaults")
		return
	}
	if th, err := store.LoadThresholds(ctx, snapshotSymbol); err != nil {
		log.Warn().Err(err).Msg("Failed to load threshold snapshot")
	} else if th != nil {
		engine.RestoreThresholds(*th)
		log.Info().Msg("Restored adaptive thresholds from snapshot store")
	}
	for _, r := range regime.AllTypes() {
		wt, err := store.LoadWeights(ctx, snapshotSymbol, r)
		if err != nil {
			log.Warn().Err(err).Str("regime", r.String()).Msg("Failed to load weight snapshot")
			continue
		}
		if wt != nil {
			engine.RestoreWeights(r, *wt)
		}
	}
}

func saveSnapshots(ctx context.Context, store *redisstore.Store, engine *pipeline.Engine) {
	if err := store.SaveThresholds(ctx, snapshotSymbol, engine.CurrentThresholds()); err != nil {
		log.Warn().Err(err).Msg("Failed to save threshold snapshot")
	}
	for _, r := range regime.AllTypes() {
		if err := store.SaveWeights(ctx, snapshotSymbol, r, engine.RegimeWeights(r)); err != nil {
			log.Warn().Err(err).Str("regime", r.String()).Msg("Failed to save weight snapshot")
		}
	}
}

func replayOutcomes(parent context.Context, archive *postgres.Repo, engine *pipeline.Engine, limit int) {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	outcomes, err := archive.RecentOutcomes(ctx, limit)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to replay archived outcomes")
		return
	}
	// Newest first from the archive; replay oldest first so the score
	// series keeps its original order.
	for i := len(outcomes) - 1; i >= 0; i-- {
		engine.ReportOutcome(outcomes[i])
	}
	if len(outcomes) > 0 {
		log.Info().Int("count", len(outcomes)).Msg("Replayed archived outcomes into learning ledger")
	}
}
