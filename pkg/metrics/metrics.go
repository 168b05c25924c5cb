// Package metrics provides Prometheus metrics for the farmgate pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing, so components can run without a registry.
type Metrics struct {
	namespace string
	gatherer  prometheus.Gatherer

	framesProcessed   *prometheus.CounterVec
	framesDropped     *prometheus.CounterVec
	sourceUnavailable *prometheus.CounterVec
	cyclesIdle        *prometheus.CounterVec
	detectorFaults    *prometheus.CounterVec
	regionsAccepted   *prometheus.CounterVec
	cyclePanics       *prometheus.CounterVec
	detectLatency     *prometheus.HistogramVec

	transitions     *prometheus.CounterVec
	episodeDuration *prometheus.HistogramVec
	intrusionActive *prometheus.GaugeVec

	logAppendFailures *prometheus.CounterVec
	sideEffects       *prometheus.CounterVec
	dispatchQueue     prometheus.Gauge
}

// Option configures New.
type Option func(*Metrics)

// WithNamespace overrides the "farmgate" namespace.
func WithNamespace(ns string) Option {
	return func(m *Metrics) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg *prometheus.Registry, opts ...Option) *Metrics {
	m := &Metrics{namespace: "farmgate", gatherer: reg}
	for _, opt := range opts {
		opt(m)
	}
	auto := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	m.framesProcessed = counter("frames_processed_total", "Frames run through the detector", "zone")
	m.framesDropped = counter("frames_dropped_total", "Frames overwritten in the mailbox before processing", "zone")
	m.sourceUnavailable = counter("source_unavailable_total", "Cycles with the frame source offline", "zone")
	m.cyclesIdle = counter("cycles_idle_total", "Cycles with the camera online but no new frame yet", "zone")
	m.detectorFaults = counter("detector_faults_total", "Frames skipped because detection failed", "zone")
	m.regionsAccepted = counter("regions_accepted_total", "Regions that passed the shape filter", "zone")
	m.cyclePanics = counter("cycle_panics_total", "Recovered pipeline panics", "zone")
	m.transitions = counter("transitions_total", "State machine results by tag", "zone", "transition")
	m.logAppendFailures = counter("log_append_failures_total", "Event records that could not be written", "zone")
	m.sideEffects = counter("side_effects_total", "Side effect attempts by collaborator and outcome", "collaborator", "outcome")

	m.detectLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "detect_duration_seconds",
		Help:      "Time spent in the detector per frame",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
	}, []string{"zone"})

	m.episodeDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "episode_duration_seconds",
		Help:      "Length of completed intrusion episodes",
		Buckets:   []float64{3, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"zone"})

	m.intrusionActive = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "intrusion_active",
		Help:      "1 while an intrusion episode is open",
	}, []string{"zone"})

	m.dispatchQueue = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "dispatch_queue_length",
		Help:      "Side effect requests waiting for the worker",
	})
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameProcessed(zone string, took time.Duration) {
	if m == nil {
		return
	}
	m.framesProcessed.WithLabelValues(zone).Inc()
	m.detectLatency.WithLabelValues(zone).Observe(took.Seconds())
}

func (m *Metrics) FramesDropped(zone string, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.framesDropped.WithLabelValues(zone).Add(float64(n))
}

func (m *Metrics) SourceUnavailable(zone string) {
	if m == nil {
		return
	}
	m.sourceUnavailable.WithLabelValues(zone).Inc()
}

func (m *Metrics) CycleIdle(zone string) {
	if m == nil {
		return
	}
	m.cyclesIdle.WithLabelValues(zone).Inc()
}

func (m *Metrics) DetectorFault(zone string) {
	if m == nil {
		return
	}
	m.detectorFaults.WithLabelValues(zone).Inc()
}

func (m *Metrics) RegionsAccepted(zone string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.regionsAccepted.WithLabelValues(zone).Add(float64(n))
}

func (m *Metrics) CyclePanic(zone string) {
	if m == nil {
		return
	}
	m.cyclePanics.WithLabelValues(zone).Inc()
}

// Transition counts one Update result. Edges also move the intrusion
// gauge and, for exits, the duration histogram.
func (m *Metrics) Transition(zone, tag string, episode time.Duration) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(zone, tag).Inc()
	switch tag {
	case "ENTER":
		m.intrusionActive.WithLabelValues(zone).Set(1)
	case "EXIT":
		m.intrusionActive.WithLabelValues(zone).Set(0)
		m.episodeDuration.WithLabelValues(zone).Observe(episode.Seconds())
	}
}

// IntrusionCleared zeroes the gauge after a silent reset.
func (m *Metrics) IntrusionCleared(zone string) {
	if m == nil {
		return
	}
	m.intrusionActive.WithLabelValues(zone).Set(0)
}

func (m *Metrics) LogAppendFailure(zone string) {
	if m == nil {
		return
	}
	m.logAppendFailures.WithLabelValues(zone).Inc()
}

// SideEffect records one collaborator call; ok false counts a failure.
func (m *Metrics) SideEffect(collaborator string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.sideEffects.WithLabelValues(collaborator, outcome).Inc()
}

func (m *Metrics) DispatchQueue(n int) {
	if m == nil {
		return
	}
	m.dispatchQueue.Set(float64(n))
}
