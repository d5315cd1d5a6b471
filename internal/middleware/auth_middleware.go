package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lostfound/backend/internal/models"
	"github.com/lostfound/backend/internal/service"
	"github.com/lostfound/backend/pkg/logger"
	"go.uber.org/zap"
)

const userContextKey = "user"

// TokenResolver turns a bearer token into the active user it identifies.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (*models.User, error)
}

// AuthMiddleware rejects requests without a valid bearer token for an active user.
func AuthMiddleware(resolver TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		if !authenticate(c, resolver, authHeader) {
			return
		}
		c.Next()
	}
}

// OptionalAuth attaches the caller when a bearer token is supplied and lets
// anonymous requests through. A supplied token that fails to resolve is
// rejected exactly as AuthMiddleware would.
func OptionalAuth(resolver TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		if !authenticate(c, resolver, authHeader) {
			return
		}
		c.Next()
	}
}

// authenticate resolves the header and stores the user, aborting on failure.
func authenticate(c *gin.Context, resolver TokenResolver, authHeader string) bool {
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if tokenString == authHeader {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid authorization format. Use: Bearer <token>",
		})
		return false
	}

	user, err := resolver.ResolveToken(c.Request.Context(), strings.TrimSpace(tokenString))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInactiveAccount):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Account is deactivated"})
		case service.IsUnauthenticated(err):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		default:
			logger.Log.Error("Failed to resolve token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		}
		return false
	}

	c.Set(userContextKey, user)
	return true
}

// RequireModerator lets moderators and admins through.
func RequireModerator() gin.HandlerFunc {
	return requireRole(models.Role.CanModerate, "Moderator access required")
}

// RequireAdmin lets only admins through.
func RequireAdmin() gin.HandlerFunc {
	return requireRole(models.Role.IsAdmin, "Admin access required")
}

func requireRole(allowed func(models.Role) bool, denied string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Unauthorized",
			})
			return
		}

		if !allowed(user.Role) {
			logger.Log.Warn("Role check failed",
				zap.String("user_id", user.ID.String()),
				zap.String("role", string(user.Role)),
				zap.String("path", c.FullPath()),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": denied,
			})
			return
		}

		c.Next()
	}
}

// CurrentUser returns the user attached by AuthMiddleware or OptionalAuth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, exists := c.Get(userContextKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok && user != nil
}
