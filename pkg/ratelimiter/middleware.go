package ratelimiter

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// KeyFunc extracts the identifier a request should be limited by
type KeyFunc func(c *gin.Context) string

// ByClientIP keys requests by the caller's IP address
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// Middleware creates a Gin middleware enforcing this limiter per request
func (l *Limiter) Middleware(keyFn KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := l.Allow(keyFn(c))

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			c.Header("Retry-After", strconv.Itoa(d.ResetInSeconds()))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Too many requests. Rate limit exceeded.",
					"details": "Maximum " + strconv.Itoa(l.Limit()) + " requests per window allowed.",
				},
				"remaining": 0,
				"resetAt":   d.ResetAt.UTC(),
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
