package middleware

import (
	"strconv"
	"time"

	"wallet-gate-api/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// PerformanceMiddleware tracks request performance metrics
func PerformanceMiddleware(metricsCollector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		metricsCollector.RecordRequest()

		c.Next()

		duration := time.Since(startTime)

		// 2xx status codes count as successful
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300

		metricsCollector.RecordRequestComplete(duration, success)

		c.Header("X-Response-Time", duration.String())
		c.Header("X-Response-Time-Ms", strconv.FormatInt(duration.Milliseconds(), 10))
	}
}

// ConcurrencyMiddleware exposes the active request count as a response header
func ConcurrencyMiddleware(metricsCollector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		activeRequests := metricsCollector.GetMetrics().ActiveRequests
		c.Header("X-Active-Requests", strconv.FormatInt(activeRequests, 10))

		c.Next()
	}
}
