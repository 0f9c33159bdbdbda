// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "solana_dispatch"

// Metrics holds all Prometheus metrics for the dispatch engine.
// All Record/Set methods are safe on a nil receiver.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration prometheus.Histogram
	WalletOutcomes    *prometheus.CounterVec
	GroupsTotal       *prometheus.CounterVec
	BundlesTotal      *prometheus.CounterVec
	ConfirmationTime  prometheus.Histogram
	KillSwitchActive  prometheus.Gauge

	// Endpoint metrics
	EndpointHealthy   *prometheus.GaugeVec
	EndpointLatencyMs *prometheus.GaugeVec
	EndpointFailures  *prometheus.CounterVec
	FailoversTotal    *prometheus.CounterVec
	RPCCallLatency    *prometheus.HistogramVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered on reg.
// A nil reg registers on the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "total",
			Help:      "Total number of dispatch operations by final state",
		}, []string{"state"}),
		OperationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "duration_seconds",
			Help:      "Dispatch operation duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),
		WalletOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "operation",
			Name:      "wallet_outcomes_total",
			Help:      "Total number of wallet outcomes by status and error kind",
		}, []string{"status", "error_kind"}),
		GroupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "groups_total",
			Help:      "Total number of submitted execution groups by kind and result",
		}, []string{"kind", "result"}),
		BundlesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submitter",
			Name:      "bundles_total",
			Help:      "Total number of block-engine bundles by final status",
		}, []string{"status"}),
		ConfirmationTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "confirmation",
			Name:      "time_seconds",
			Help:      "Time from submission to confirmation in seconds",
			Buckets:   []float64{0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 30},
		}),
		KillSwitchActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "kill_switch_active",
			Help:      "1 while the kill-switch is active",
		}),

		EndpointHealthy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "healthy",
			Help:      "1 if the endpoint is healthy",
		}, []string{"endpoint", "role"}),
		EndpointLatencyMs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "latency_ms",
			Help:      "Moving average endpoint latency in milliseconds",
		}, []string{"endpoint"}),
		EndpointFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "failures_total",
			Help:      "Total number of reported endpoint failures",
		}, []string{"endpoint"}),
		FailoversTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "failovers_total",
			Help:      "Total number of failovers to another endpoint by role",
		}, []string{"role"}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC and block-engine call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint of gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordOperation records a finished operation.
func (m *Metrics) RecordOperation(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(state).Inc()
	m.OperationDuration.Observe(d.Seconds())
}

// RecordOutcome records one terminal wallet outcome.
func (m *Metrics) RecordOutcome(status, errKind string, confirmation time.Duration) {
	if m == nil {
		return
	}
	m.WalletOutcomes.WithLabelValues(status, errKind).Inc()
	if confirmation > 0 {
		m.ConfirmationTime.Observe(confirmation.Seconds())
	}
}

// RecordGroup records a submitted execution group.
func (m *Metrics) RecordGroup(kind, result string) {
	if m == nil {
		return
	}
	m.GroupsTotal.WithLabelValues(kind, result).Inc()
}

// RecordBundle records a bundle's final status.
func (m *Metrics) RecordBundle(status string) {
	if m == nil {
		return
	}
	m.BundlesTotal.WithLabelValues(status).Inc()
}

// SetKillSwitch updates the kill-switch gauge.
func (m *Metrics) SetKillSwitch(active bool) {
	if m == nil {
		return
	}
	m.KillSwitchActive.Set(boolGauge(active))
}

// SetEndpointHealth updates the health and latency gauges of an endpoint.
func (m *Metrics) SetEndpointHealth(endpoint, role string, healthy bool, latencyMs float64) {
	if m == nil {
		return
	}
	m.EndpointHealthy.WithLabelValues(endpoint, role).Set(boolGauge(healthy))
	m.EndpointLatencyMs.WithLabelValues(endpoint).Set(latencyMs)
}

// RecordEndpointFailure increments the failure counter of an endpoint.
func (m *Metrics) RecordEndpointFailure(endpoint string) {
	if m == nil {
		return
	}
	m.EndpointFailures.WithLabelValues(endpoint).Inc()
}

// RecordFailover records a failover to another endpoint.
func (m *Metrics) RecordFailover(role string) {
	if m == nil {
		return
	}
	m.FailoversTotal.WithLabelValues(role).Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(d.Seconds())
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
