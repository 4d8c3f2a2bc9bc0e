package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the reconciliation counters. A nil *Metrics records nothing.
type Metrics struct {
	ReconcileEventsTotal *prometheus.CounterVec
	ReconcileDuration    prometheus.Histogram
	SweepRunsTotal       *prometheus.CounterVec
	SweepItemsTotal      *prometheus.CounterVec
	SweepDuration        prometheus.Histogram
	GatewayRequestsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReconcileEventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_events_total",
				Help: "Payment webhook events by event name and outcome",
			},
			[]string{"event", "outcome"},
		),
		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reconcile_duration_seconds",
			Help:    "Time spent reconciling one payment event",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		SweepRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_runs_total",
				Help: "Expiration sweep runs by result",
			},
			[]string{"result"},
		),
		SweepItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweep_items_total",
				Help: "Expiration sweep items by status",
			},
			[]string{"status"},
		),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Wall time of one expiration sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		GatewayRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Payment processor calls by operation and result",
			},
			[]string{"operation", "result"},
		),
	}
}

func (m *Metrics) RecordReconcile(event, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileEventsTotal.WithLabelValues(event, outcome).Inc()
	m.ReconcileDuration.Observe(took.Seconds())
}

func (m *Metrics) RecordSweepRun(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(result).Inc()
	m.SweepDuration.Observe(took.Seconds())
}

func (m *Metrics) RecordSweepItem(status string) {
	if m == nil {
		return
	}
	m.SweepItemsTotal.WithLabelValues(status).Inc()
}

// ObserveGateway matches payment.RequestObserver.
func (m *Metrics) ObserveGateway(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GatewayRequestsTotal.WithLabelValues(operation, result).Inc()
}
