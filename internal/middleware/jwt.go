package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gracehub/backend/internal/auth"
	"github.com/gracehub/backend/internal/authz"
	"github.com/gracehub/backend/pkg/response"
)

const (
	// ContextActor is the key for the authorization actor in gin context.
	ContextActor = "actor"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// JWT returns a middleware that validates the bearer token and sets the
// authorization actor in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextActor, claims.Actor())
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// Actor returns the authenticated actor from the gin context. The zero
// actor is returned when the JWT middleware did not run.
func Actor(c *gin.Context) authz.Actor {
	v, ok := c.Get(ContextActor)
	if !ok {
		return authz.Actor{}
	}
	actor, _ := v.(authz.Actor)
	return actor
}
