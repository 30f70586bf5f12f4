package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hiring-api/internal/handler"
	"github.com/jwalitptl/hiring-api/internal/ratelimit"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

// retryAfterer is implemented by limiters that can tell when the next slot opens.
type retryAfterer interface {
	RetryAfter(identity string, class ratelimit.Class) time.Duration
}

// RateLimit admits requests per caller within class. Authenticated callers
// are keyed by user id, anonymous ones by normalized client address.
func RateLimit(limiter ratelimit.Limiter, class ratelimit.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := "addr:" + ratelimit.NormalizeClientAddr(c.ClientIP())
		if actor, ok := handler.ActorID(c); ok {
			identity = "user:" + actor.String()
		}

		ctx := c.Request.Context()
		allowed := limiter.Allow(ctx, identity, class)

		c.Header("X-RateLimit-Limit", strconv.Itoa(class.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(ctx, identity, class)))

		if !allowed {
			wait := class.Window
			if ra, ok := limiter.(retryAfterer); ok {
				if d := ra.RetryAfter(identity, class); d > 0 {
					wait = d
				}
			}
			c.Header("Retry-After", retryAfterSeconds(wait))
			status, resp := handler.ErrorBody(apperrors.RateLimited(class.Name))
			c.AbortWithStatusJSON(status, resp)
			return
		}
		c.Next()
	}
}

func retryAfterSeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
