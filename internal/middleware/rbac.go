package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/identity-api/pkg/errors"
	"github.com/noah-isme/identity-api/pkg/response"
)

// RequireRoles admits callers whose scope grants any of roles.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, role := range roles {
			if claims.HasRole(role) {
				c.Next()
				return
			}
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequirePermissions admits callers whose scope grants every permission in perms.
func RequirePermissions(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, perm := range perms {
			if !claims.HasPermission(perm) {
				response.Error(c, appErrors.ErrForbidden)
				c.Abort()
				return
			}
		}
		c.Next()
	}
}
