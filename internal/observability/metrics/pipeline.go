package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/docverify/internal/core/domain"
)

// PipelineMetrics records compression, transport and verification events. It
// satisfies ports.PipelineObserver and resilience.Observer.
type PipelineMetrics struct {
	service string

	compressionPass     *prometheus.CounterVec
	compressionBytes    *prometheus.HistogramVec
	compressionDuration *prometheus.HistogramVec
	attemptsTotal       *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
	backoffSeconds      *prometheus.HistogramVec
	verificationsTotal  *prometheus.CounterVec
	verificationLatency *prometheus.HistogramVec
	confidenceDefaulted prometheus.Counter
	networkAdvice       *prometheus.CounterVec
	backendReachable    prometheus.Gauge
	probeLatency        *prometheus.HistogramVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	compressionPass := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Subsystem: "compression",
			Name:      "results_total",
			Help:      "Compression results by side and selected ladder pass (-1 = untouched).",
		},
		[]string{"service", "side", "pass"},
	)
	compressionBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docverify",
			Subsystem: "compression",
			Name:      "output_bytes",
			Help:      "Size of the compressed side sent to the backend.",
			Buckets:   prometheus.ExponentialBuckets(64<<10, 2, 8),
		},
		[]string{"service", "side"},
	)
	compressionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docverify",
			Subsystem: "compression",
			Name:      "duration_seconds",
			Help:      "Time spent walking the compression ladder for one side.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"service", "side"},
	)
	attemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Subsystem: "transport",
			Name:      "attempts_total",
			Help:      "Backend attempts by operation and outcome.",
		},
		[]string{"service", "operation", "outcome"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Subsystem: "transport",
			Name:      "retries_total",
			Help:      "Scheduled retries by operation.",
		},
		[]string{"service", "operation"},
	)
	backoffSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docverify",
			Subsystem: "transport",
			Name:      "backoff_seconds",
			Help:      "Backoff waits before retries.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"service", "operation"},
	)
	verificationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Subsystem: "verification",
			Name:      "total",
			Help:      "Finished verifications by status or error kind.",
		},
		[]string{"service", "result"},
	)
	verificationLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docverify",
			Subsystem: "verification",
			Name:      "duration_seconds",
			Help:      "End-to-end verification duration.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service", "result"},
	)
	confidenceDefaulted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Subsystem: "verification",
			Name:      "confidence_defaulted_total",
			Help:      "Backend responses without a confidence score.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	networkAdvice := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docverify",
			Subsystem: "network",
			Name:      "advice_total",
			Help:      "Network gate answers at submission time.",
		},
		[]string{"service", "advice"},
	)

	backendReachable := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docverify",
			Subsystem: "network",
			Name:      "backend_reachable",
			Help:      "1 when the last backend probe got any HTTP response.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	probeLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docverify",
			Subsystem: "network",
			Name:      "probe_latency_seconds",
			Help:      "Backend probe round trip by effective connection type.",
			Buckets:   []float64{0.05, 0.1, 0.27, 0.5, 1, 1.4, 2.5, 5, 10},
		},
		[]string{"service", "effective_type"},
	)

	registerer.MustRegister(
		compressionPass,
		compressionBytes,
		compressionDuration,
		attemptsTotal,
		retriesTotal,
		backoffSeconds,
		verificationsTotal,
		verificationLatency,
		confidenceDefaulted,
		networkAdvice,
		backendReachable,
		probeLatency,
	)

	return &PipelineMetrics{
		service:             service,
		compressionPass:     compressionPass,
		compressionBytes:    compressionBytes,
		compressionDuration: compressionDuration,
		attemptsTotal:       attemptsTotal,
		retriesTotal:        retriesTotal,
		backoffSeconds:      backoffSeconds,
		verificationsTotal:  verificationsTotal,
		verificationLatency: verificationLatency,
		confidenceDefaulted: confidenceDefaulted,
		networkAdvice:       networkAdvice,
		backendReachable:    backendReachable,
		probeLatency:        probeLatency,
	}
}

func (m *PipelineMetrics) ObserveCompression(side string, result domain.CompressionResult, duration time.Duration) {
	pass := strconv.Itoa(result.PassIndex)
	if result.Fallback {
		pass = "fallback"
	}
	m.compressionPass.WithLabelValues(m.service, side, pass).Inc()
	m.compressionBytes.WithLabelValues(m.service, side).Observe(float64(result.Size()))
	m.compressionDuration.WithLabelValues(m.service, side).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveVerification(status domain.VerificationStatus, err error, duration time.Duration) {
	result := string(status)
	if err != nil {
		result = errorLabel(err)
	}
	if result == "" {
		result = "unknown"
	}
	m.verificationsTotal.WithLabelValues(m.service, result).Inc()
	m.verificationLatency.WithLabelValues(m.service, result).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveConfidenceDefaulted() {
	m.confidenceDefaulted.Inc()
}

func (m *PipelineMetrics) ObserveNetworkAdvice(advice domain.NetworkAdvice) {
	label := "advisable"
	switch {
	case !advice.Advisable:
		label = "denied"
	case advice.SlowLink:
		label = "slow_link"
	}
	m.networkAdvice.WithLabelValues(m.service, label).Inc()
}

// ObserveProbe records one backend probe. Latency is only kept for probes
// that got an answer.
func (m *PipelineMetrics) ObserveProbe(online bool, effectiveType string, latency time.Duration) {
	if !online {
		m.backendReachable.Set(0)
		return
	}
	m.backendReachable.Set(1)
	if effectiveType == "" {
		effectiveType = "unknown"
	}
	m.probeLatency.WithLabelValues(m.service, effectiveType).Observe(latency.Seconds())
}

func (m *PipelineMetrics) ObserveAttempt(operation string, attempt domain.TransportAttempt) {
	m.attemptsTotal.WithLabelValues(m.service, operation, string(attempt.Outcome)).Inc()
}

func (m *PipelineMetrics) ObserveRetry(operation string, _ int, wait time.Duration) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
	m.backoffSeconds.WithLabelValues(m.service, operation).Observe(wait.Seconds())
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingIdentity):
		return "error_missing_identity"
	case errors.Is(err, domain.ErrPayloadTooLarge):
		return "error_payload_too_large"
	case errors.Is(err, domain.ErrOffline):
		return "error_offline"
	case errors.Is(err, domain.ErrCancelled):
		return "error_cancelled"
	case errors.Is(err, domain.ErrTimeout):
		return "error_timeout"
	case errors.Is(err, domain.ErrTemporary):
		return "error_temporary"
	case errors.Is(err, domain.ErrFatalTransport):
		return "error_rejected"
	case errors.Is(err, domain.ErrMalformedResponse):
		return "error_malformed_response"
	case errors.Is(err, domain.ErrInvalidInput):
		return "error_invalid_input"
	default:
		return "error_other"
	}
}
