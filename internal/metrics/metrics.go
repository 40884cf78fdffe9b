package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the broker
type Metrics struct {
	registry *prometheus.Registry

	// Chat metrics
	ChatRequestsTotal   *prometheus.CounterVec
	ChatDuration        *prometheus.HistogramVec
	StreamEventsTotal   prometheus.Counter
	StreamRequestsTotal *prometheus.CounterVec

	// Pool metrics
	RotationsTotal  prometheus.Counter
	LoginsTotal     *prometheus.CounterVec
	AccountsTotal   prometheus.Gauge
	AccountsActive  prometheus.Gauge
	BudgetRemaining prometheus.Gauge
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Chat metrics
		ChatRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_requests_total",
				Help: "Total number of buffered chat requests",
			},
			[]string{"status"},
		),
		ChatDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_request_duration_seconds",
				Help:    "Duration of chat requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		StreamEventsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stream_events_total",
				Help: "Total number of content events relayed to stream clients",
			},
		),
		StreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stream_requests_total",
				Help: "Total number of streaming chat requests",
			},
			[]string{"status"},
		),

		// Pool metrics
		RotationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pool_rotations_total",
				Help: "Total number of account rotations after exhaustion",
			},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pool_logins_total",
				Help: "Total number of account login attempts",
			},
			[]string{"status"},
		),
		AccountsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pool_accounts_total",
				Help: "Number of accounts in the pool",
			},
		),
		AccountsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pool_accounts_active",
				Help: "Number of accounts not marked exhausted",
			},
		),
		BudgetRemaining: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pool_budget_remaining",
				Help: "Summed remaining call budget across active accounts",
			},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	// Chat metrics
	m.registry.MustRegister(m.ChatRequestsTotal)
	m.registry.MustRegister(m.ChatDuration)
	m.registry.MustRegister(m.StreamEventsTotal)
	m.registry.MustRegister(m.StreamRequestsTotal)

	// Pool metrics
	m.registry.MustRegister(m.RotationsTotal)
	m.registry.MustRegister(m.LoginsTotal)
	m.registry.MustRegister(m.AccountsTotal)
	m.registry.MustRegister(m.AccountsActive)
	m.registry.MustRegister(m.BudgetRemaining)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
