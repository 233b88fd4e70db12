package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds Prometheus metrics collectors
type Collector struct {
	requestDuration prometheus.HistogramVec
	requestTotal    prometheus.CounterVec
	requestSize     prometheus.HistogramVec
	responseSize    prometheus.HistogramVec
	errorTotal      prometheus.CounterVec

	syncTotal          prometheus.CounterVec
	syncDuration       prometheus.HistogramVec
	threatsDetected    prometheus.CounterVec
	adapterErrors      prometheus.CounterVec
	rateLimitWait      prometheus.HistogramVec
	syncQueueDepth     prometheus.Gauge
	activeIntegrations prometheus.Gauge
}

// NewCollector creates a new metrics collector
func NewCollector(serviceName string) *Collector {
	c := &Collector{
		requestDuration: *prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "method", "endpoint", "status_code"},
		),
		requestTotal: *prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"service", "method", "endpoint", "status_code"},
		),
		requestSize: *prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_size_bytes",
				Help:    "HTTP request sizes in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
			},
			[]string{"service", "method", "endpoint"},
		),
		responseSize: *prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response sizes in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
			},
			[]string{"service", "method", "endpoint", "status_code"},
		),
		errorTotal: *prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "errors_total",
				Help: "Total number of errors by type",
			},
			[]string{"service", "type", "operation"},
		),
		syncTotal: *prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_syncs_total",
				Help: "Total number of integration sync runs, by outcome",
			},
			[]string{"integration_id", "tool_type", "outcome"},
		),
		syncDuration: *prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_sync_duration_seconds",
				Help:    "Duration of an integration sync run",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"integration_id", "tool_type"},
		),
		threatsDetected: *prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_threats_detected_total",
				Help: "Total number of unified threats synthesized by the correlation engine",
			},
			[]string{"rule_id", "severity"},
		),
		adapterErrors: *prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusion_adapter_errors_total",
				Help: "Total number of adapter-level errors, by kind",
			},
			[]string{"integration_id", "tool_type", "kind"},
		),
		rateLimitWait: *prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusion_rate_limit_wait_seconds",
				Help:    "Time a sync operation spent waiting on an adapter rate limiter",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"integration_id", "tool_type"},
		),
		syncQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fusion_sync_queue_depth",
			Help: "Current number of pending sync jobs in the orchestrator queue",
		}),
		activeIntegrations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fusion_active_integrations",
			Help: "Current number of registered integrations with status=active",
		}),
	}

	// Register metrics with Prometheus
	prometheus.MustRegister(&c.requestDuration)
	prometheus.MustRegister(&c.requestTotal)
	prometheus.MustRegister(&c.requestSize)
	prometheus.MustRegister(&c.responseSize)
	prometheus.MustRegister(&c.errorTotal)
	prometheus.MustRegister(&c.syncTotal)
	prometheus.MustRegister(&c.syncDuration)
	prometheus.MustRegister(&c.threatsDetected)
	prometheus.MustRegister(&c.adapterErrors)
	prometheus.MustRegister(&c.rateLimitWait)
	prometheus.MustRegister(c.syncQueueDepth)
	prometheus.MustRegister(c.activeIntegrations)

	return c
}

// RecordSync records the outcome and duration of an integration sync run.
func (c *Collector) RecordSync(integrationID, toolType, outcome string, duration time.Duration) {
	c.syncTotal.WithLabelValues(integrationID, toolType, outcome).Inc()
	c.syncDuration.WithLabelValues(integrationID, toolType).Observe(duration.Seconds())
}

// RecordThreatDetected records a threat synthesized by a correlation rule.
func (c *Collector) RecordThreatDetected(ruleID, severity string) {
	c.threatsDetected.WithLabelValues(ruleID, severity).Inc()
}

// RecordAdapterError records an adapter-level failure by FusionError kind.
func (c *Collector) RecordAdapterError(integrationID, toolType, kind string) {
	c.adapterErrors.WithLabelValues(integrationID, toolType, kind).Inc()
}

// RecordRateLimitWait records time spent blocked on an adapter's rate limiter.
func (c *Collector) RecordRateLimitWait(integrationID, toolType string, wait time.Duration) {
	c.rateLimitWait.WithLabelValues(integrationID, toolType).Observe(wait.Seconds())
}

// SetSyncQueueDepth reports the orchestrator's current queue depth.
func (c *Collector) SetSyncQueueDepth(depth int) {
	c.syncQueueDepth.Set(float64(depth))
}

// SetActiveIntegrations reports the current count of active integrations.
func (c *Collector) SetActiveIntegrations(count int) {
	c.activeIntegrations.Set(float64(count))
}

// RecordHTTPRequest records metrics for an HTTP request
func (c *Collector) RecordHTTPRequest(serviceName, method, endpoint string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	statusCodeStr := strconv.Itoa(statusCode)
	
	c.requestDuration.WithLabelValues(serviceName, method, endpoint, statusCodeStr).Observe(duration.Seconds())
	c.requestTotal.WithLabelValues(serviceName, method, endpoint, statusCodeStr).Inc()
	c.requestSize.WithLabelValues(serviceName, method, endpoint).Observe(float64(requestSize))
	c.responseSize.WithLabelValues(serviceName, method, endpoint, statusCodeStr).Observe(float64(responseSize))
}

// RecordError records an error metric
func (c *Collector) RecordError(serviceName, errorType, operation string) {
	c.errorTotal.WithLabelValues(serviceName, errorType, operation).Inc()
}

// HandlerFunc returns a handler function for the /metrics endpoint
func HandlerFunc() gin.HandlerFunc {
	h := promhttp.Handler()
	return gin.WrapH(h)
}

// Middleware creates a Gin middleware for automatic metrics collection
func Middleware(serviceName string, collector *Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		
		// Process request
		c.Next()
		
		// Record metrics
		duration := time.Since(start)
		requestSize := calculateRequestSize(c.Request)
		responseSize := int64(c.Writer.Size())
		
		collector.RecordHTTPRequest(
			serviceName,
			c.Request.Method,
			c.FullPath(),
			c.Writer.Status(),
			duration,
			requestSize,
			responseSize,
		)
	}
}

// calculateRequestSize calculates the size of an HTTP request
func calculateRequestSize(r *http.Request) int64 {
	size := int64(0)
	if r.URL != nil {
		size += int64(len(r.URL.String()))
	}
	
	size += int64(len(r.Method))
	size += int64(len(r.Proto))
	
	for name, values := range r.Header {
		size += int64(len(name))
		for _, value := range values {
			size += int64(len(value))
		}
	}
	
	if r.ContentLength > 0 {
		size += r.ContentLength
	}
	
	return size
}