package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/textcat/internal/ratelimit"
)

// newLimiter picks the configured backend, falling back to an in-process
// limiter when only a quota is set.
func newLimiter(opts Options) ratelimit.Limiter {
	if opts.RateLimiter != nil {
		return opts.RateLimiter
	}
	if m := ratelimit.NewMemory(opts.RequestsPerMinute); m != nil {
		return m
	}
	return nil
}

func (s *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		if s.limiter == nil {
			return next(c)
		}
		subject := subjectFromContext(c.Request().Context())
		ok, wait, err := s.limiter.Allow(c.Request().Context(), subject)
		if err != nil {
			s.log.Error("rate limit check failed", "subject", subject, "error", err)
			code := "rate_limit_unavailable"
			if !errors.Is(err, ratelimit.ErrUnavailable) {
				code = "rate_limit_error"
			}
			return writeError(c, http.StatusInternalServerError, "server_error", "rate limiting service unavailable", code)
		}
		if ok {
			return next(c)
		}
		if s.metrics != nil {
			s.metrics.RecordRateLimited()
		}
		s.log.Warn("rate limit exceeded", "subject", subject, "retry_after", wait)
		secs := max(int(math.Ceil(wait.Seconds())), 1)
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		return writeError(c, http.StatusTooManyRequests, "rate_limit_error", "rate limit exceeded", "rate_limited")
	}
}
