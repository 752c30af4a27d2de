package monitoring

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricsService interface {
	RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration)
	RecordTransaction(txType, status string, duration time.Duration)
	RecordUpstreamCall(operation string, success bool, duration time.Duration)
	RecordBreakerState(state string)
	RecordSweep(resumed int)
}

type prometheusMetrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	transactionsTotal   *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec

	upstreamCallsTotal *prometheus.CounterVec
	upstreamDuration   *prometheus.HistogramVec
	breakerStateGauge  *prometheus.GaugeVec

	sweeperResumedTotal prometheus.Counter
}

func NewPrometheusMetrics() MetricsService {
	return &prometheusMetrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_service_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_service_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		transactionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_service_transactions_total",
				Help: "Total number of processed transactions",
			},
			[]string{"type", "status"},
		),
		transactionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_service_transaction_duration_seconds",
				Help:    "Transaction orchestration duration in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"type"},
		),
		upstreamCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_service_upstream_calls_total",
				Help: "Total number of account service calls",
			},
			[]string{"operation", "success"},
		),
		upstreamDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_service_upstream_call_duration_seconds",
				Help:    "Account service call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"operation"},
		),
		breakerStateGauge: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "transaction_service_breaker_state",
				Help: "Circuit breaker state (1 for the current state, 0 otherwise)",
			},
			[]string{"state"},
		),
		sweeperResumedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "transaction_service_sweeper_resumed_total",
				Help: "Total number of stale transactions resumed by the sweeper",
			},
		),
	}
}

func (m *prometheusMetrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, fmt.Sprintf("%d", statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordTransaction(txType, status string, duration time.Duration) {
	m.transactionsTotal.WithLabelValues(txType, status).Inc()
	m.transactionDuration.WithLabelValues(txType).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordUpstreamCall(operation string, success bool, duration time.Duration) {
	successStr := "false"
	if success {
		successStr = "true"
	}
	m.upstreamCallsTotal.WithLabelValues(operation, successStr).Inc()
	m.upstreamDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordBreakerState(state string) {
	for _, s := range []string{"closed", "half-open", "open"} {
		value := 0.0
		if s == state {
			value = 1.0
		}
		m.breakerStateGauge.WithLabelValues(s).Set(value)
	}
}

func (m *prometheusMetrics) RecordSweep(resumed int) {
	m.sweeperResumedTotal.Add(float64(resumed))
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware(metrics MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
