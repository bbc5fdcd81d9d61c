package papergraph

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "papergraph"

// Metrics holds the Prometheus collectors of one engine. Each engine owns
// its registry so several engines can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	GraphNodes    prometheus.Histogram
	GraphEdges    prometheus.Histogram
	Tokens        *prometheus.CounterVec
}

// NewMetrics creates and registers the engine collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Extraction runs by outcome",
			},
			[]string{"model", "status", "kind"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "stage_duration_seconds",
				Help:      "Duration of each pipeline stage",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
		),
		GraphNodes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "graph_nodes",
				Help:      "Nodes per extracted method graph",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		GraphEdges: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "graph_edges",
				Help:      "Edges per extracted method graph",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		Tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "llm_tokens_total",
				Help:      "Tokens reported by the chat endpoint",
			},
			[]string{"model", "type"},
		),
	}

	registry.MustRegister(
		m.Runs,
		m.StageDuration,
		m.GraphNodes,
		m.GraphEdges,
		m.Tokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding the engine collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) observeRun(model string, err error) {
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	m.Runs.WithLabelValues(model, status, ErrorKind(err)).Inc()
}
