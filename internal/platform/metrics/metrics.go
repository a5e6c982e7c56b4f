package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the motion recorder.
// A nil *Metrics is valid and records nothing, which keeps tests free of
// registry setup.
type Metrics struct {
	registry            *prometheus.Registry
	motionTriggersTotal prometheus.Counter
	gateDecisionsTotal  *prometheus.CounterVec
	sessionsTotal       *prometheus.CounterVec
	clipsTotal          *prometheus.CounterVec
	restartsTotal       prometheus.Counter
	streamFailuresTotal prometheus.Counter
	inferenceErrors     prometheus.Counter
	lastThroughput      prometheus.Gauge
	sessionActive       prometheus.Gauge
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
}

// New creates and registers Prometheus metrics for the recorder.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		motionTriggersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "motion_triggers_total",
			Help: "Frame pairs whose difference exceeded the motion area threshold",
		}),
		gateDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Object detection gate decisions by stage (live, clip) and result (found, empty)",
		}, []string{"stage", "result"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessions_total",
			Help: "Recording sessions by termination reason",
		}, []string{"reason"}),
		clipsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clips_total",
			Help: "Recorded clips by retention outcome (retained, discarded, missing)",
		}, []string{"outcome"}),
		restartsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipeline_restarts_total",
			Help: "Pipeline cycles aborted by an unhandled fault",
		}),
		streamFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_open_failures_total",
			Help: "Attempts to open the camera stream that failed",
		}),
		inferenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_errors_total",
			Help: "Inference calls that failed and were treated as no detection",
		}),
		lastThroughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "last_throughput_fps",
			Help: "Most recent encoder fps sample of the active session",
		}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "session_active",
			Help: "1 while a recording process is running",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ops_requests_total",
			Help: "Total number of ops HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ops_errors_total",
			Help: "Total number of ops HTTP responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.motionTriggersTotal,
		m.gateDecisionsTotal,
		m.sessionsTotal,
		m.clipsTotal,
		m.restartsTotal,
		m.streamFailuresTotal,
		m.inferenceErrors,
		m.lastThroughput,
		m.sessionActive,
		m.requestsTotal,
		m.errorsTotal,
	)

	return m
}

// IncMotionTriggers counts one positive motion trigger.
func (m *Metrics) IncMotionTriggers() {
	if m == nil {
		return
	}
	m.motionTriggersTotal.Inc()
}

// ObserveGate records a gate decision. stage is "live" or "clip".
func (m *Metrics) ObserveGate(stage string, found bool) {
	if m == nil {
		return
	}
	result := "empty"
	if found {
		result = "found"
	}
	m.gateDecisionsTotal.WithLabelValues(stage, result).Inc()
}

// IncSessions counts a finished session by termination reason.
func (m *Metrics) IncSessions(reason string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(reason).Inc()
}

// IncClips counts a retention outcome.
func (m *Metrics) IncClips(outcome string) {
	if m == nil {
		return
	}
	m.clipsTotal.WithLabelValues(outcome).Inc()
}

// IncRestarts counts one aborted pipeline cycle.
func (m *Metrics) IncRestarts() {
	if m == nil {
		return
	}
	m.restartsTotal.Inc()
}

// IncStreamFailures counts one failed stream open.
func (m *Metrics) IncStreamFailures() {
	if m == nil {
		return
	}
	m.streamFailuresTotal.Inc()
}

// IncInferenceErrors counts one failed inference call.
func (m *Metrics) IncInferenceErrors() {
	if m == nil {
		return
	}
	m.inferenceErrors.Inc()
}

// SetThroughput records the latest encoder fps sample.
func (m *Metrics) SetThroughput(fps float64) {
	if m == nil {
		return
	}
	m.lastThroughput.Set(fps)
}

// SetSessionActive flips the active session gauge.
func (m *Metrics) SetSessionActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.sessionActive.Set(1)
		return
	}
	m.sessionActive.Set(0)
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m == nil {
		return
	}
	m.errorsTotal.Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh derived gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
