package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oro-os/backend/internal/ratelimit"
)

// RateLimit rejects requests beyond the limiter's budget for the client IP.
// Limiter failures let the request through.
func RateLimit(limiter ratelimit.Limiter, limit int, logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "ratelimit")
	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("rate limit check failed", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "Rate limit exceeded",
				},
			})
			return
		}

		c.Next()
	}
}
