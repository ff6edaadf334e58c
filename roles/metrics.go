package roles

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var roleMetricsOnce sync.Once

var (
	roleRequestsTotal   *prometheus.CounterVec
	roleRequestDuration *prometheus.HistogramVec
)

func registerCountVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerHistogramVec(c *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return c
}

func initRoleMetrics() {
	roleMetricsOnce.Do(func() {
		roleRequestsTotal = registerCountVec(prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamelink",
			Subsystem: "discord_client",
			Name:      "requests_total",
			Help:      "Total number of Discord API requests.",
		}, []string{"endpoint", "method", "status", "result"}))

		roleRequestDuration = registerHistogramVec(prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gamelink",
			Subsystem: "discord_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of Discord API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "method", "result"}))
	})
}

func recordRoleMetrics(endpoint, method string, statusCode int, err error, duration time.Duration) {
	initRoleMetrics()
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	result := "success"
	if err != nil || statusCode >= 400 {
		result = "error"
	}
	roleRequestsTotal.WithLabelValues(endpoint, method, status, result).Inc()
	roleRequestDuration.WithLabelValues(endpoint, method, result).Observe(duration.Seconds())
}
