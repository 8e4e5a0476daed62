package metrics

import "github.com/prometheus/client_golang/prometheus"

var breakerStates = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// ResilienceMetrics observes retries and circuit breaker transitions of
// outbound calls.
type ResilienceMetrics struct {
	service      string
	retriesTotal *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
}

func NewResilienceMetrics(service string, registerer prometheus.Registerer) *ResilienceMetrics {
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "retries_total",
			Help:      "Retry attempts of outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state by operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)
	registerer.MustRegister(retriesTotal, breakerState)

	return &ResilienceMetrics{
		service:      service,
		retriesTotal: retriesTotal,
		breakerState: breakerState,
	}
}

func (m *ResilienceMetrics) RetryAttempt(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *ResilienceMetrics) BreakerStateChanged(operation, state string) {
	m.breakerState.WithLabelValues(m.service, operation).Set(breakerStates[state])
}
