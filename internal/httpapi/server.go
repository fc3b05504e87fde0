// Package httpapi serves the engine's HTTP surface: read-only diagnostics
// (health, regime, thresholds, rejection analytics, Prometheus metrics) plus
// the outcome ingestion endpoint that closes the feedback loop.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tradeforge/signalcore/internal/learning"
	"github.com/tradeforge/signalcore/internal/pipeline"
)

// OutcomeArchive receives reported outcomes and applied adaptations for
// durable storage. A nil archive disables archival; ingestion still feeds
// the in-memory loop.
type OutcomeArchive interface {
	InsertOutcome(ctx context.Context, o learning.Outcome) error
	InsertAdaptation(ctx context.Context, a learning.Adaptation) error
}

// Config controls the HTTP server.
type Config struct {
	Addr          string
	RatePerSecond float64
	RateBurst     int
	Archive       OutcomeArchive
}

// Server exposes one engine's HTTP surface.
type Server struct {
	cfg    Config
	engine *pipeline.Engine
	http   *http.Server

	// adaptations already pushed to the archive
	archivedAdaptations int
}

// New builds the server and its routes.
func New(cfg Config, engine *pipeline.Engine, gatherer prometheus.Gatherer) *Server {
	s := &Server{cfg: cfg, engine: engine}

	limiter := rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/regime", s.handleRegime).Methods(http.MethodGet)
	r.HandleFunc("/thresholds", s.handleThresholds).Methods(http.MethodGet)
	r.HandleFunc("/rejections", s.handleRejections).Methods(http.MethodGet)
	r.HandleFunc("/outcomes", s.handleOutcome).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("Diagnostics server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.Health())
}

func (s *Server) handleRegime(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]interface{}{
		"current": s.engine.CurrentRegime(),
		"stats":   s.engine.RegimeStats(),
	})
}

func (s *Server) handleThresholds(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.engine.CurrentThresholds())
}

func (s *Server) handleRejections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]interface{}{
		"rejections": s.engine.RejectionStats(),
		"density":    s.engine.DensityStats(),
	})
}

// handleOutcome ingests one realized outcome. Duplicates are absorbed by
// the learning tracker, so retried posts are safe.
func (s *Server) handleOutcome(w http.ResponseWriter, req *http.Request) {
	var o learning.Outcome
	if err := json.NewDecoder(req.Body).Decode(&o); err != nil {
		http.Error(w, "malformed outcome payload", http.StatusBadRequest)
		return
	}
	if o.SignalID == "" {
		http.Error(w, "signal_id is required", http.StatusBadRequest)
		return
	}

	s.engine.ReportOutcome(o)
	if s.cfg.Archive != nil {
		if err := s.cfg.Archive.InsertOutcome(req.Context(), o); err != nil {
			log.Warn().Err(err).Str("signal_id", o.SignalID).Msg("Outcome archival failed")
		}
		s.archiveNewAdaptations(req.Context())
	}
	w.WriteHeader(http.StatusAccepted)
}

// archiveNewAdaptations pushes any parameter changes applied since the last
// ingest. Recalibration only ever runs inside ReportOutcome, so polling here
// cannot miss one.
func (s *Server) archiveNewAdaptations(ctx context.Context) {
	history := s.engine.Adaptations()
	for _, a := range history[s.archivedAdaptations:] {
		if err := s.cfg.Archive.InsertAdaptation(ctx, a); err != nil {
			log.Warn().Err(err).Str("parameter", a.Parameter).Msg("Adaptation archival failed")
			return
		}
		s.archivedAdaptations++
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode diagnostics response")
	}
}
