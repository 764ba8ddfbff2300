// Package metrics exposes Prometheus collectors for HTTP traffic and the photo lifecycle.
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
	initOnce sync.Once

	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photovault",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "photovault",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	quotaRejections = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "photovault",
		Name:      "quota_rejections_total",
		Help:      "Storage reservations rejected because they would exceed the user's quota.",
	})

	transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photovault",
		Name:      "lifecycle_transitions_total",
		Help:      "Applied photo lifecycle transitions by axis and target status.",
	}, []string{"axis", "to"})

	storageFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "photovault",
		Name:      "storage_failures_total",
		Help:      "Byte store writes that left a photo in the failed storage state.",
	})
)

// InitMetrics registers the collectors with the default registry. It is safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(requestsTotal, requestDuration, quotaRejections, transitions, storageFailures)
	})
}

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		requestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}

// QuotaRejected counts one rejected reservation.
func QuotaRejected() {
	quotaRejections.Inc()
}

// Transition counts one applied lifecycle transition.
func Transition(axis, to string) {
	transitions.WithLabelValues(axis, to).Inc()
}

// StorageFailed counts one failed byte store write.
func StorageFailed() {
	storageFailures.Inc()
}
