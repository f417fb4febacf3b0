package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for shellforge evaluations.
type Metrics struct {
	config MetricsConfig

	// Evaluation metrics
	evaluationsStarted   *prometheus.CounterVec
	evaluationsCompleted *prometheus.CounterVec
	evaluationDuration   *prometheus.HistogramVec

	// Platform projection metrics
	platformProjections *prometheus.CounterVec
	projectionDuration  *prometheus.HistogramVec

	// Overlay metrics
	overlaysApplied *prometheus.CounterVec

	// Resolution cache metrics
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Policy metrics
	policyViolations *prometheus.CounterVec

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		evaluationsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_started_total",
				Help:      "Total number of descriptor evaluations started",
			},
			[]string{"descriptor"},
		),
		evaluationsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_completed_total",
				Help:      "Total number of descriptor evaluations completed",
			},
			[]string{"status"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of descriptor evaluation in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		platformProjections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "platform_projections_total",
				Help:      "Total number of per-platform shell projections",
			},
			[]string{"platform", "status"},
		),
		projectionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "platform_projection_duration_seconds",
				Help:      "Duration of per-platform projection in seconds",
				Buckets:   buckets,
			},
			[]string{"platform"},
		),

		overlaysApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "overlays_applied_total",
				Help:      "Total number of overlays applied",
			},
			[]string{"platform", "status"},
		),

		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_cache_hits_total",
				Help:      "Total number of resolution cache hits",
			},
			[]string{"platform"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolution_cache_misses_total",
				Help:      "Total number of resolution cache misses",
			},
			[]string{"platform"},
		),

		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of policy violations",
			},
			[]string{"policy", "severity"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.evaluationsStarted,
		m.evaluationsCompleted,
		m.evaluationDuration,
		m.platformProjections,
		m.projectionDuration,
		m.overlaysApplied,
		m.cacheHits,
		m.cacheMisses,
		m.policyViolations,
		m.errorsByClass,
		m.errorsByCode,
	)

	return m, nil
}

// Evaluation Metrics

// RecordEvaluationStarted increments the counter for started evaluations.
func (m *Metrics) RecordEvaluationStarted(descriptor string) {
	if m.evaluationsStarted == nil {
		return
	}
	m.evaluationsStarted.WithLabelValues(descriptor).Inc()
}

// RecordEvaluationCompleted records a completed evaluation with its status
// and duration.
func (m *Metrics) RecordEvaluationCompleted(status string, duration time.Duration) {
	if m.evaluationsCompleted == nil {
		return
	}
	m.evaluationsCompleted.WithLabelValues(status).Inc()
	m.evaluationDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Projection Metrics

// RecordPlatformProjection records a per-platform projection.
func (m *Metrics) RecordPlatformProjection(platform, status string, duration time.Duration) {
	if m.platformProjections == nil {
		return
	}
	m.platformProjections.WithLabelValues(platform, status).Inc()
	m.projectionDuration.WithLabelValues(platform).Observe(duration.Seconds())
}

// RecordOverlayApplied records an overlay application.
func (m *Metrics) RecordOverlayApplied(platform, status string) {
	if m.overlaysApplied == nil {
		return
	}
	m.overlaysApplied.WithLabelValues(platform, status).Inc()
}

// Cache Metrics

// ResolutionCacheHit records a resolution cache hit for a platform.
func (m *Metrics) ResolutionCacheHit(platform string) {
	if m.cacheHits == nil {
		return
	}
	m.cacheHits.WithLabelValues(platform).Inc()
}

// ResolutionCacheMiss records a resolution cache miss for a platform.
func (m *Metrics) ResolutionCacheMiss(platform string) {
	if m.cacheMisses == nil {
		return
	}
	m.cacheMisses.WithLabelValues(platform).Inc()
}

// Policy Metrics

// RecordPolicyViolation records a policy violation.
func (m *Metrics) RecordPolicyViolation(policy, severity string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy, severity).Inc()
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
