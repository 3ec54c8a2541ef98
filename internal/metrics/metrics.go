package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the redactor's counters
type Metrics struct {
	// Detection progress of the current session (0-100)
	Progress atomic.Int64
	// Violations held by the current session
	Violations atomic.Int64

	MosaicRegions atomic.Uint64
	MosaicFrames  atomic.Uint64

	generation atomic.Uint64

	transitions *prometheus.CounterVec
	polls       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redactor_detection_transitions_total",
			Help: "Detection state changes by resulting status",
		}, []string{"status"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redactor_detection_polls_total",
			Help: "Status queries by reported task state",
		}, []string{"state"}),
	}

	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.transitions, m.polls)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "redactor_detection_progress",
			Help: "Progress of the current detection session (0-100)",
		},
		func() float64 { return float64(m.Progress.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "redactor_violations",
			Help: "Violations held by the current session",
		},
		func() float64 { return float64(m.Violations.Load()) },
	))
}

// Observe implements detection.Observer. Events from a generation older than
// the newest one seen are ignored.
func (m *Metrics) Observe(ev models.StatusEvent) {
	for {
		last := m.generation.Load()
		if ev.Generation < last {
			return
		}
		if m.generation.CompareAndSwap(last, ev.Generation) {
			break
		}
	}

	m.transitions.WithLabelValues(string(ev.Status)).Inc()
	m.Progress.Store(int64(ev.Progress))
	m.Violations.Store(int64(ev.Violations))
}

// ObservePoll implements detection.PollObserver.
func (m *Metrics) ObservePoll(_, state string, err error) {
	if err != nil {
		state = "error"
	}
	if state == "" {
		state = "unknown"
	}
	m.polls.WithLabelValues(state).Inc()
}

// RecordFrame counts one rendered frame and the regions pixelated in it. The
// redact job reports these totals in its log; they are not exported.
func (m *Metrics) RecordFrame(regions int) {
	m.MosaicFrames.Add(1)
	m.MosaicRegions.Add(uint64(regions))
}

// Handler returns the HTTP handler for /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
