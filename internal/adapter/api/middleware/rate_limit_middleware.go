package middleware

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"

	"workbee/internal/infrastructure/ratelimit"
	"workbee/pkg/errors"
	"workbee/pkg/logger"
	"workbee/pkg/response"
)

// RateLimit throttles requests per client IP using the shared limiter. The
// bucket key is the IP, so these buckets never collide with per-user ones.
func RateLimit(limiter *ratelimit.RateLimiter, action ratelimit.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			allowed, wait := limiter.Allow("ip:"+ip, action)
			if !allowed {
				logger.WithFields(logger.Fields{
					"ip":     ip,
					"action": action,
					"wait":   wait.String(),
				}).Warn("rate limit exceeded")

				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded"))
			}
			return next(c)
		}
	}
}
