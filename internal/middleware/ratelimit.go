package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/ratelimit"
	"github.com/gracehub/backend/pkg/response"
)

// RateLimit returns a middleware that counts the request against the
// category's window and rejects with 429 plus a Retry-After hint when the
// budget is spent.
//
// The limit key always includes the client IP; once the JWT middleware has
// run it also includes the user ID, so an authenticated actor cannot dodge
// its own budget by rotating addresses (and addresses behind a NAT do not
// share one authenticated budget).
func RateLimit(limiter *ratelimit.Limiter, category ratelimit.Category) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if actor := Actor(c); actor.UserID != uuid.Nil {
			key += ":" + actor.UserID.String()
		}

		decision := limiter.Check(c.Request.Context(), key, category)
		if !decision.Allowed {
			retryAfter := int(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			response.TooManyRequests(c, "too many requests", retryAfter)
			c.Abort()
			return
		}
		c.Next()
	}
}
