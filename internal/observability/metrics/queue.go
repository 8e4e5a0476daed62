package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docflow/internal/core/uploadqueue"
)

var _ uploadqueue.Recorder = (*QueueMetrics)(nil)

// QueueMetrics records upload queue activity for one uploader run.
type QueueMetrics struct {
	registry *prometheus.Registry
	service  string

	admitted prometheus.Counter
	rejected prometheus.Counter
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	active   prometheus.Gauge
}

func NewQueueMetrics(service string) *QueueMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	admitted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "upload_queue",
		Name:        "admitted_total",
		Help:        "Files accepted into the upload queue.",
		ConstLabels: labels,
	})
	rejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "upload_queue",
		Name:        "rejected_total",
		Help:        "Files rejected by upload validation.",
		ConstLabels: labels,
	})
	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "upload_queue",
		Name:        "finished_total",
		Help:        "Dispatches that left the active state by outcome.",
		ConstLabels: labels,
	}, []string{"status", "kind"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   "upload_queue",
		Name:        "dispatch_duration_seconds",
		Help:        "Time from admission to outcome.",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		ConstLabels: labels,
	}, []string{"status"})
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Subsystem:   "upload_queue",
		Name:        "active_items",
		Help:        "Items currently dispatching or awaiting a result.",
		ConstLabels: labels,
	})

	registry.MustRegister(admitted, rejected, finished, duration, active)

	return &QueueMetrics{
		registry: registry,
		service:  service,
		admitted: admitted,
		rejected: rejected,
		finished: finished,
		duration: duration,
		active:   active,
	}
}

func (m *QueueMetrics) ItemAdmitted() { m.admitted.Inc() }

func (m *QueueMetrics) ItemRejected() { m.rejected.Inc() }

func (m *QueueMetrics) ItemFinished(status uploadqueue.Status, kind uploadqueue.ErrorKind, elapsed time.Duration) {
	k := string(kind)
	if k == "" {
		k = "none"
	}
	m.finished.WithLabelValues(string(status), k).Inc()
	m.duration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

func (m *QueueMetrics) ActiveItems(n int) { m.active.Set(float64(n)) }

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *QueueMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *QueueMetrics) Gatherer() prometheus.Gatherer { return m.registry }
