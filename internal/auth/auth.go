package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/locknd/tochka-exchange/internal/models"
)

const userKey = "auth.user"

// UserSource resolves API keys to users.
type UserSource interface {
	UserByAPIKey(ctx context.Context, apiKey string) (*models.User, error)
}

// ParseToken extracts the API key from an Authorization header of the form
// "TOKEN <key>".
func ParseToken(header string) (string, bool) {
	scheme, key, found := strings.Cut(header, " ")
	if !found || scheme != "TOKEN" || key == "" {
		return "", false
	}
	return key, true
}

// Middleware authenticates every request via the Authorization header and
// stores the resolved user in the gin context.
func Middleware(source UserSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := ParseToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "missing or malformed authorization header"})
			return
		}

		user, err := source.UserByAPIKey(c.Request.Context(), key)
		if errors.Is(err, models.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "invalid api key"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// RequireAdmin aborts requests of non-admin users. Must run after
// Middleware.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil || user.Role != models.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "admin access required"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user, nil when unauthenticated.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, ok := v.(*models.User)
	if !ok {
		return nil
	}
	return user
}
