package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics covers the API front door plus the submission outcomes the
// handlers report through BusinessMetricsRecorder.
type HTTPMetrics struct {
	requestDuration    *prometheus.HistogramVec
	requestsTotal      *prometheus.CounterVec
	responseSize       *prometheus.HistogramVec
	inFlightRequests   *prometheus.GaugeVec
	businessOperations *prometheus.CounterVec
	businessDuration   *prometheus.HistogramVec
}

var (
	requestLabels   = []string{"method", "path", "status"}
	operationLabels = []string{"operation_type", "category", "status"}
)

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, requestLabels),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "HTTP requests served",
		}, requestLabels),
		// 100B to 12.8KB
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 2, 8),
		}, requestLabels),
		inFlightRequests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bridge_http_requests_in_flight",
			Help: "HTTP requests currently being served",
		}, []string{"method", "path"}),
		businessOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_business_operations_total",
			Help: "Deposit submissions, withdrawal claims, lookups and admin actions by outcome",
		}, operationLabels),
		// settlement runs inside the request, so this reaches tens of seconds
		businessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bridge_business_operation_duration_seconds",
			Help:    "Duration of API operations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, operationLabels),
	}
}

func (m *HTTPMetrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.requestDuration,
		m.requestsTotal,
		m.responseSize,
		m.inFlightRequests,
		m.businessOperations,
		m.businessDuration,
	)
}

// RecordBusinessMetric counts one operation; a zero duration is not observed.
func (m *HTTPMetrics) RecordBusinessMetric(operationType, category, status string, duration float64) {
	m.businessOperations.WithLabelValues(operationType, category, status).Inc()
	if duration > 0 {
		m.businessDuration.WithLabelValues(operationType, category, status).Observe(duration)
	}
}

// HTTPMetricsMiddleware labels requests by route template so record keys do
// not explode cardinality. Unmatched requests fall back to the raw path.
func HTTPMetricsMiddleware(metrics *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		inFlight := metrics.inFlightRequests.WithLabelValues(method, path)
		inFlight.Inc()
		defer inFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.requestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		metrics.requestsTotal.WithLabelValues(method, path, status).Inc()
		if size := c.Writer.Size(); size > 0 {
			metrics.responseSize.WithLabelValues(method, path, status).Observe(float64(size))
		}
	}
}

// BusinessMetricsRecorder records submission outcomes seen at the API. A nil
// recorder drops everything.
type BusinessMetricsRecorder struct {
	metrics *HTTPMetrics
}

func NewBusinessMetricsRecorder(metrics *HTTPMetrics) *BusinessMetricsRecorder {
	return &BusinessMetricsRecorder{
		metrics: metrics,
	}
}

func (r *BusinessMetricsRecorder) RecordDepositSubmission(sourceChain, outcome string, duration float64) {
	if r == nil {
		return
	}
	r.metrics.RecordBusinessMetric("deposit_submission", sourceChain, outcome, duration)
}

func (r *BusinessMetricsRecorder) RecordWithdrawalClaim(payoutChain, outcome string, duration float64) {
	if r == nil {
		return
	}
	r.metrics.RecordBusinessMetric("withdrawal_claim", payoutChain, outcome, duration)
}

func (r *BusinessMetricsRecorder) RecordStatusLookup(status string, duration float64) {
	if r == nil {
		return
	}
	r.metrics.RecordBusinessMetric("status_lookup", "record", status, duration)
}

func (r *BusinessMetricsRecorder) RecordAdminAction(action, status string) {
	if r == nil {
		return
	}
	r.metrics.RecordBusinessMetric("admin_action", action, status, 0)
}
