package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/recruitflow/backend/internal/domain"
	"github.com/recruitflow/backend/pkg/auth"
)

// ContextKeyActor is where RequireAuth stores the *domain.Actor
const ContextKeyActor = "actor"

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}

// RequireAuth is a middleware that validates bearer tokens
func RequireAuth(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "No authorization token provided")
			return
		}

		// Extract token (format: "Bearer <token>")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := issuer.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		c.Set(ContextKeyActor, &domain.Actor{
			UserID: claims.Subject.UserID,
			Name:   claims.Subject.Name,
			Role:   claims.Subject.Role,
		})
		c.Next()
	}
}

// RequireServiceRole admits only integrated subsystems
func RequireServiceRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFrom(c)
		if actor == nil {
			abortUnauthorized(c, "User not authenticated")
			return
		}
		if !actor.IsService() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "FORBIDDEN",
				"message": "Only service callers can access this resource",
			})
			return
		}
		c.Next()
	}
}

// ActorFrom returns the authenticated actor, or nil.
func ActorFrom(c *gin.Context) *domain.Actor {
	v, ok := c.Get(ContextKeyActor)
	if !ok {
		return nil
	}
	actor, _ := v.(*domain.Actor)
	return actor
}
