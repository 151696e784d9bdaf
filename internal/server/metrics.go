package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjfontaine/hipnotes/internal/pipeline"
)

// Metrics holds the service's prometheus collectors on a private registry.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	phases   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hipnotes",
			Name:      "http_requests_total",
			Help:      "Requests served by a notes handler, by status code.",
		}, []string{"handler", "status"}),
		phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hipnotes",
			Name:      "pipeline_phase_duration_seconds",
			Help:      "Time spent in each lifecycle phase.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"handler", "phase", "outcome"}),
	}
	m.registry.MustRegister(m.requests, m.phases, collectors.NewGoCollector())
	return m
}

// ObservePhase records a pipeline phase; pass it to pipeline.WithObserver.
func (m *Metrics) ObservePhase(ev pipeline.PhaseEvent) {
	if m == nil {
		return
	}
	m.phases.WithLabelValues(ev.Handler, string(ev.Phase), string(ev.Outcome)).Observe(ev.Duration.Seconds())
}

func (m *Metrics) countRequest(handler string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
