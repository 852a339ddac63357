package auth

import (
	"context"
	"net/http"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

const userKey = "auth.user"

type ctxKey struct{}

// WithUser stores u in ctx
func WithUser(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user carried by ctx
func UserFrom(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(models.User)
	return u, ok
}

// CurrentUser returns the user resolved by Authenticate for this request
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return models.User{}, false
	}
	u, ok := v.(models.User)
	return u, ok
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Authenticate resolves the bearer token when one is present. Requests
// without a token pass through anonymous; a bad token is rejected.
func (t *Tokens) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearer(c)
		if raw == "" {
			c.Next()
			return
		}
		u, err := t.Validate(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Set(userKey, u)
		c.Request = c.Request.WithContext(WithUser(c.Request.Context(), u))
		c.Next()
	}
}

// RequireUser rejects anonymous requests
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			err := apperr.AuthRequired(c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.Message(err)})
			return
		}
		c.Next()
	}
}

// RequireRole lets through only users holding one of roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			err := apperr.AuthRequired(c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.Message(err)})
			return
		}
		for _, r := range roles {
			if u.Role == r {
				c.Next()
				return
			}
		}
		err := apperr.Forbidden(c.FullPath())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apperr.Message(err)})
	}
}
