package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	notifyTotal    *prometheus.CounterVec
	notifyDuration *prometheus.HistogramVec
	notifyInFlight prometheus.Gauge
	routingLag     *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	notifyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "notifications_total",
			Help:      "Department notifications handled by department and status.",
		},
		[]string{"service", "department", "status"},
	)
	notifyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "notification_duration_seconds",
			Help:      "Notification handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	notifyInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "notifications_in_flight",
			Help:      "Number of notifications being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	routingLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "routing_lag_seconds",
			Help:      "Delay between routing a document and handling its notification.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(notifyTotal, notifyDuration, notifyInFlight, routingLag)

	return &WorkerMetrics{
		registry:       registry,
		notifyTotal:    notifyTotal,
		notifyDuration: notifyDuration,
		notifyInFlight: notifyInFlight,
		routingLag:     routingLag,
	}
}

func (m *WorkerMetrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartNotification() {
	m.notifyInFlight.Inc()
}

func (m *WorkerMetrics) FinishNotification(service, department string, duration time.Duration, err error) {
	m.notifyInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	if department == "" {
		department = "unknown"
	}

	m.notifyTotal.WithLabelValues(service, department, status).Inc()
	m.notifyDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveRoutingLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.routingLag.WithLabelValues(service).Observe(lag.Seconds())
}
