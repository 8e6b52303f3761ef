package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/pkg/response"
)

// RequireMinRole allows only actors whose effective rank meets the
// threshold. Use for "at least this privileged" routes; capability routes
// use RequireAnyRole.
func RequireMinRole(threshold authz.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor(c)
		if actor.UserID == uuid.Nil {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if !actor.HasMinRole(threshold) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows only actors holding at least one of the given
// roles. Membership is checked directly, not by rank, so e.g. VIP-only
// tooling stays VIP-only no matter how senior the caller.
func RequireAnyRole(roles ...authz.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Actor(c)
		for _, role := range roles {
			if actor.HasRole(role) {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}
