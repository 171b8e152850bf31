package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otagate",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "otagate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	grantsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otagate",
		Name:      "grants_issued_total",
		Help:      "Download grants minted, by platform.",
	}, []string{"platform"})

	updateChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otagate",
		Name:      "update_checks_total",
		Help:      "Update checks by outcome.",
	}, []string{"outcome"})

	grantDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otagate",
		Name:      "grant_denials_total",
		Help:      "Download requests refused by the storage gate, by reason.",
	}, []string{"reason"})

	integrityFaults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "otagate",
		Name:      "integrity_faults_total",
		Help:      "Metadata and stored bytes disagreeing, by component.",
	}, []string{"component"})

	bytesServed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "otagate",
		Name:      "bytes_served_total",
		Help:      "Bundle bytes written to clients.",
	})

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default registry. It is safe to
// call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			grantsIssued,
			updateChecks,
			grantDenials,
			integrityFaults,
			bytesServed,
		)
	})
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	InitMetrics()
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// Middleware records request count and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

// GrantIssued counts a minted download grant.
func GrantIssued(platform string) {
	grantsIssued.WithLabelValues(platform).Inc()
}

// UpdateCheck counts a finished update check. Outcomes are "update", "none",
// "held_back" (outside a staged rollout) and "error".
func UpdateCheck(outcome string) {
	updateChecks.WithLabelValues(outcome).Inc()
}

// GrantDenied counts a refused download by its internal reason.
func GrantDenied(reason string) {
	grantDenials.WithLabelValues(reason).Inc()
}

// IntegrityFault counts a digest mismatch or a granted object missing from storage.
func IntegrityFault(component string) {
	integrityFaults.WithLabelValues(component).Inc()
}

// BytesServed adds n to the served byte counter.
func BytesServed(n int64) {
	if n > 0 {
		bytesServed.Add(float64(n))
	}
}
