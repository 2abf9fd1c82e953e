package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/apikeyd/internal/domain/service"
)

var _ service.Metrics = (*Metrics)(nil)

// Metrics manages the Prometheus metrics.
type Metrics struct {
	Verifications     *prometheus.CounterVec
	VerifyLatency     *prometheus.HistogramVec
	CacheLookups      *prometheus.CounterVec
	RateLimitFailOpen prometheus.Counter
	RateLimitRejected *prometheus.CounterVec
	AnalyticsDropped  prometheus.Counter
	UsageDeductions   *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikeyd_verifications_total",
				Help: "Total number of key verifications by outcome code.",
			},
			[]string{"code"},
		),
		VerifyLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apikeyd_verify_latency_seconds",
				Help:    "Latency of key verifications.",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"code"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikeyd_cache_lookups_total",
				Help: "Verification record cache lookups by state.",
			},
			[]string{"namespace", "state"},
		),
		RateLimitFailOpen: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apikeyd_ratelimit_fail_open_total",
				Help: "Rate limit checks that errored or timed out and were let through.",
			},
		),
		RateLimitRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikeyd_ratelimit_rejected_total",
				Help: "Verifications rejected by a named rate limit.",
			},
			[]string{"name"},
		),
		AnalyticsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apikeyd_analytics_dropped_total",
				Help: "Verification events that could not be delivered to the analytics sink.",
			},
		),
		UsageDeductions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikeyd_usage_deductions_total",
				Help: "Usage limiter deductions by result.",
			},
			[]string{"result"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikeyd_http_requests_total",
				Help: "HTTP requests by method, route template and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apikeyd_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route template.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordVerification records metrics for one finished verification.
func (m *Metrics) RecordVerification(code string, duration time.Duration) {
	m.Verifications.WithLabelValues(code).Inc()
	m.VerifyLatency.WithLabelValues(code).Observe(duration.Seconds())
}

// RecordCacheLookup records one cache lookup outcome.
func (m *Metrics) RecordCacheLookup(namespace, state string) {
	m.CacheLookups.WithLabelValues(namespace, state).Inc()
}

// RecordRateLimitFailOpen records a rate limit check that was skipped after a failure.
func (m *Metrics) RecordRateLimitFailOpen() {
	m.RateLimitFailOpen.Inc()
}

// RecordRateLimitRejected records a verification rejected by the named limit.
func (m *Metrics) RecordRateLimitRejected(name string) {
	m.RateLimitRejected.WithLabelValues(name).Inc()
}

// RecordUsageDeduction records a usage deduction result ("accepted", "rejected" or "error").
func (m *Metrics) RecordUsageDeduction(result string) {
	m.UsageDeductions.WithLabelValues(result).Inc()
}

// RecordAnalyticsDropped records an undeliverable verification event.
func (m *Metrics) RecordAnalyticsDropped() {
	m.AnalyticsDropped.Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
