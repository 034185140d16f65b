package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/prometheus"
)

// Metrics records per-request counters, latency, and response size.  The
// route template (c.FullPath) is used as the path label to keep cardinality
// bounded; unmatched routes collapse into "unmatched".
func Metrics(metrics *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		active := metrics.HTTPActiveRequests.WithLabelValues()
		active.Inc()
		defer active.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		prometheus.RecordHTTPRequest(metrics, c.Request.Method, path,
			c.Writer.Status(), time.Since(start), int64(c.Writer.Size()))
	}
}
