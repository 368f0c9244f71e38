package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	obscontext "github.com/banadama/pricing/internal/observability/context"
	obsmetrics "github.com/banadama/pricing/internal/observability/metrics"
)

// The API gateway authenticates callers and forwards the resolved identity.
const (
	HeaderActorRole      = "X-Actor-Role"
	HeaderActorID        = "X-Actor-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// ActorContext copies the gateway identity headers into the request context.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := strings.TrimSpace(c.GetHeader(HeaderActorRole))
		if role != "" {
			ctx := obscontext.WithActor(c.Request.Context(), obscontext.Actor{
				Role: role,
				ID:   c.GetHeader(HeaderActorID),
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

func RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := obscontext.ActorFromContext(c.Request.Context()); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

func HTTPMetrics(metrics *obsmetrics.EngineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTP(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
