package monitoring

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedRoute labels requests that hit no route, keeping label
// cardinality bounded
const unmatchedRoute = "unmatched"

// TraceIDFunc reports the trace a request belongs to, if any
type TraceIDFunc func(ctx context.Context) (string, bool)

// Middleware creates a Gin middleware for metrics collection. When traceID is
// set, request counts and latencies of sampled requests carry the trace id as
// an exemplar.
func Middleware(metrics *Metrics, traceID TraceIDFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		reqSize := c.Request.ContentLength
		if reqSize < 0 {
			reqSize = 0
		}

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		status := strconv.Itoa(c.Writer.Status())
		respSize := int64(c.Writer.Size())
		if respSize < 0 {
			respSize = 0
		}

		var exemplar string
		if traceID != nil {
			exemplar, _ = traceID(c.Request.Context())
		}

		metrics.RecordHTTPRequest(method, route, status, time.Since(start), reqSize, respSize, exemplar)
	}
}

// Timer measures operation duration
type Timer struct {
	start     time.Time
	metrics   *Metrics
	service   string
	operation string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, service, operation string) *Timer {
	return &Timer{
		start:     time.Now(),
		metrics:   metrics,
		service:   service,
		operation: operation,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop(status string) {
	if t.metrics == nil {
		return
	}
	t.metrics.RecordServiceCall(t.service, t.operation, status, time.Since(t.start))
}
