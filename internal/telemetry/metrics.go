// Package telemetry exposes the engine's diagnostic events as Prometheus
// metrics. It implements the pipeline's TelemetrySink.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tradeforge/signalcore/internal/fusion"
	"github.com/tradeforge/signalcore/internal/gates"
	"github.com/tradeforge/signalcore/internal/learning"
	"github.com/tradeforge/signalcore/internal/regime"
)

// Metrics is a prometheus-backed telemetry sink.
type Metrics struct {
	signalsAccepted   prometheus.Counter
	signalsRejected   *prometheus.CounterVec
	noSignalCycles    prometheus.Counter
	regimeGauge       *prometheus.GaugeVec
	regimeConfidence  prometheus.Gauge
	regimeTransitions prometheus.Counter
	fusedProbability  prometheus.Histogram
	adaptationsTotal  prometheus.Counter

	lastRegime string
}

// New registers the metric set on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		signalsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_signals_accepted_total",
			Help: "Signals that cleared all adaptive gates.",
		}),
		signalsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalcore_signals_rejected_total",
			Help: "Signals rejected by the adaptive gates, by reason.",
		}, []string{"reason"}),
		noSignalCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_no_signal_cycles_total",
			Help: "Cycles where fusion produced no actionable signal.",
		}),
		regimeGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalcore_regime_active",
			Help: "1 for the currently detected regime, 0 otherwise.",
		}, []string{"regime"}),
		regimeConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalcore_regime_confidence",
			Help: "Confidence of the current regime classification.",
		}),
		regimeTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_regime_transitions_total",
			Help: "Observed regime changes.",
		}),
		fusedProbability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalcore_fused_probability",
			Help:    "Distribution of fused signal probabilities.",
			Buckets: prometheus.LinearBuckets(0.05, 0.05, 19),
		}),
		adaptationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalcore_parameter_adaptations_total",
			Help: "Parameter changes applied by recalibration.",
		}),
	}
	reg.MustRegister(
		m.signalsAccepted, m.signalsRejected, m.noSignalCycles,
		m.regimeGauge, m.regimeConfidence, m.regimeTransitions,
		m.fusedProbability, m.adaptationsTotal,
	)
	return m
}

// SignalAccepted implements pipeline.TelemetrySink.
func (m *Metrics) SignalAccepted(sig *fusion.Signal) {
	m.signalsAccepted.Inc()
	m.fusedProbability.Observe(sig.Probability)
}

// SignalRejected implements pipeline.TelemetrySink.
func (m *Metrics) SignalRejected(reason gates.Reason) {
	m.signalsRejected.WithLabelValues(string(reason)).Inc()
}

// NoSignal implements pipeline.TelemetrySink.
func (m *Metrics) NoSignal() {
	m.noSignalCycles.Inc()
}

// RegimeObserved implements pipeline.TelemetrySink.
func (m *Metrics) RegimeObserved(reg regime.Regime) {
	current := reg.Type.String()
	if m.lastRegime != "" && m.lastRegime != current {
		m.regimeGauge.WithLabelValues(m.lastRegime).Set(0)
		m.regimeTransitions.Inc()
	}
	m.regimeGauge.WithLabelValues(current).Set(1)
	m.regimeConfidence.Set(reg.Confidence)
	m.lastRegime = current
}

// AdaptationApplied implements pipeline.TelemetrySink.
func (m *Metrics) AdaptationApplied(adaptations []learning.Adaptation) {
	m.adaptationsTotal.Add(float64(len(adaptations)))
}
