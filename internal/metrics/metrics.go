package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "maintenance"

// Metrics holds the collectors of the service on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ReadingsIngested *prometheus.CounterVec
	AlertsRecorded   *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	AnalysisRuns     *prometheus.CounterVec
	RiskLevels       *prometheus.CounterVec
	PredictorLatency *prometheus.HistogramVec
	ReportsSent      *prometheus.CounterVec
	RealtimeClients  prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ReadingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readings_ingested_total",
				Help:      "Sensor readings stored, by derived status and source",
			},
			[]string{"status", "source"},
		),
		AlertsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_recorded_total",
				Help:      "Alert occurrences, by origin and whether a new alert was opened",
			},
			[]string{"source", "outcome"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification tasks, by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		AnalysisRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "analysis_runs_total",
				Help:      "Batch analysis runs, by outcome",
			},
			[]string{"outcome"},
		),
		RiskLevels: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predicted_risk_total",
				Help:      "Risk levels predicted during batch analysis",
			},
			[]string{"level"},
		),
		PredictorLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "predictor_request_seconds",
				Help:      "Latency of calls to the risk prediction service",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		ReportsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_sent_total",
				Help:      "Maintenance report deliveries, by outcome",
			},
			[]string{"outcome"},
		),
		RealtimeClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_clients",
				Help:      "Connected websocket clients",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ReadingsIngested,
		m.AlertsRecorded,
		m.Notifications,
		m.AnalysisRuns,
		m.RiskLevels,
		m.PredictorLatency,
		m.ReportsSent,
		m.RealtimeClients,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
