package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics owns the worker's registry. Pipeline metrics register on the
// same registry so one /metrics endpoint serves both.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	submissionsTotal    *prometheus.CounterVec
	submissionDuration  *prometheus.HistogramVec
	submissionsInFlight prometheus.Gauge
	queueLag            prometheus.Histogram
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	serviceLabel := prometheus.Labels{"service": service}

	submissionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "docverify",
			Subsystem:   "worker",
			Name:        "submissions_total",
			Help:        "Queued submissions handled by the worker, by outcome.",
			ConstLabels: serviceLabel,
		},
		[]string{"outcome"},
	)
	// A submission may sit through several 300s upload attempts.
	submissionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "docverify",
			Subsystem:   "worker",
			Name:        "submission_duration_seconds",
			Help:        "Time from dequeue to a stored verification or failure.",
			Buckets:     []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1200},
			ConstLabels: serviceLabel,
		},
		[]string{"outcome"},
	)
	submissionsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "docverify",
			Subsystem:   "worker",
			Name:        "submissions_in_flight",
			Help:        "Submissions currently being compressed or uploaded.",
			ConstLabels: serviceLabel,
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "docverify",
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between the async upload and the worker picking it up.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: serviceLabel,
		},
	)

	registry.MustRegister(submissionsTotal, submissionDuration, submissionsInFlight, queueLag)

	return &WorkerMetrics{
		service:             service,
		registry:            registry,
		submissionsTotal:    submissionsTotal,
		submissionDuration:  submissionDuration,
		submissionsInFlight: submissionsInFlight,
		queueLag:            queueLag,
	}
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Track marks a submission in flight and returns the func that records its
// outcome. Errors are labelled by kind, the same way verifications are.
func (m *WorkerMetrics) Track() func(err error) {
	started := time.Now()
	m.submissionsInFlight.Inc()
	return func(err error) {
		m.submissionsInFlight.Dec()
		outcome := "completed"
		if err != nil {
			outcome = errorLabel(err)
		}
		m.submissionsTotal.WithLabelValues(outcome).Inc()
		m.submissionDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}
}

// ObserveRedelivery counts an event for a submission that is already done.
func (m *WorkerMetrics) ObserveRedelivery() {
	m.submissionsTotal.WithLabelValues("redelivered").Inc()
}

func (m *WorkerMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}
