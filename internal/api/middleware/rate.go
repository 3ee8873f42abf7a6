package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/tracechain/internal/infrastructure/config"
)

// RateLimit creates a process-wide rate limiting middleware. Rejected
// requests get 429 with a Retry-After hint; they still pass through the
// tracing middleware registered before this one and end up as spans.
func RateLimit(cfg config.RateLimitConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	retryAfter := retryAfterSeconds(cfg.RequestsPerSecond)
	report := rate.Sometimes{Interval: 10 * time.Second}
	var rejected atomic.Int64

	return func(c *gin.Context) {
		if limiter.Allow() {
			c.Next()
			return
		}

		n := rejected.Add(1)
		report.Do(func() {
			logger.Warn("Rate limit exceeded",
				zap.Int64("rejected_total", n),
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", GetRequestID(c)))
		})

		c.Header("Retry-After", retryAfter)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "rate limit exceeded",
		})
	}
}

// retryAfterSeconds is the time one token takes to refill, rounded up.
func retryAfterSeconds(rps int) string {
	if rps <= 0 {
		return "1"
	}
	return strconv.Itoa(int(math.Max(1, math.Ceil(1/float64(rps)))))
}
