package ratelimit

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/smartwater-ai/smartwater-backend/internal/errors"
)

// IPRateLimitMiddleware throttles all requests per client IP.
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.AllowIP)
}

// ScoringRateLimitMiddleware applies the tighter scoring budget. Mounted on
// the predict endpoints only.
func (rl *RateLimiter) ScoringRateLimitMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.AllowScoring)
}

func (rl *RateLimiter) middleware(check func(ctx context.Context, ip string) (*Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		result, err := check(ctx, ip)
		if err != nil {
			// A broken limiter must not take the API down with it.
			slog.Error("Rate limit check failed", "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitIPBlock()
			}

			retryAfter := strconv.Itoa(int(result.RetryAfter.Seconds()))
			c.Header("Retry-After", retryAfter)
			apperrors.Abort(c, apperrors.NewRateLimitError(retryAfter))
			return
		}

		c.Next()
	}
}
