// Package gateway implements the cross-cutting HTTP middleware used by the
// gamelink service: metrics, CORS, request IDs and API-key auth.
package gateway

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var instrumentOnce sync.Once

var (
	requestsCount *prometheus.CounterVec
	responseTime  prometheus.Histogram
)

func registerCollectors() {
	instrumentOnce.Do(func() {
		requestsCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamelink",
			Subsystem: "request",
			Name:      "requests_count",
			Help:      "Number of requests per each endpoint",
		}, []string{"code", "method", "handler", "url"})

		responseTime = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gamelink",
			Subsystem: "response",
			Name:      "response_time_hist",
			Help:      "gamelink response duration in milliseconds",
		})

		prometheus.MustRegister(requestsCount, responseTime)
	})
}

// Instrumentation records per-endpoint counters and response latency.
func Instrumentation() gin.HandlerFunc {
	registerCollectors()
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := float64(time.Since(start)) * 1e-6 // to millisecond

		status := strconv.Itoa(c.Writer.Status())
		requestsCount.WithLabelValues(status, c.Request.Method, c.HandlerName(), c.Request.URL.Path).Inc()
		responseTime.Observe(duration)
	}
}
