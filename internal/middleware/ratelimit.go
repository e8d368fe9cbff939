package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blinktext/internal/cache"
)

// RateLimit allows max requests per client IP in each fixed window. Cache failures let the
// request through.
func RateLimit(c cache.Cache, window time.Duration, max int64, logger logrus.FieldLogger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := "ratelimit:" + ctx.ClientIP()

		count, err := c.Incr(ctx.Request.Context(), key, window)
		if err != nil {
			logger.WithError(err).Warn("rate limiter unavailable")
			ctx.Next()
			return
		}

		remaining := max - count
		if remaining < 0 {
			remaining = 0
		}
		ctx.Header("X-RateLimit-Limit", strconv.FormatInt(max, 10))
		ctx.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > max {
			ctx.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests, please try again later",
			})
			return
		}

		ctx.Next()
	}
}
