package server

import (
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	obscontext "github.com/banadama/pricing/internal/observability/context"
	"github.com/banadama/pricing/internal/observability/logger"
	"go.uber.org/zap"
)

// BreakdownRateLimit throttles breakdown requests per calling account.
// Limiter errors fail closed.
func (s *Server) BreakdownRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := c.ClientIP()
		if actor, ok := obscontext.ActorFromContext(ctx); ok && actor.ID != "" {
			key = actor.Role + ":" + actor.ID
		}

		result, err := s.limiter.AllowBreakdown(ctx, key)
		if err != nil {
			logger.FromContext(ctx).Warn("breakdown rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			logger.FromContext(ctx).Warn("breakdown rate limit exceeded", zap.String("key", key))
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
