package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/service"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
	"github.com/noah-isme/identity-api/pkg/logger"
	"github.com/noah-isme/identity-api/pkg/response"
)

// ContextUserKey is the gin context key storing token claims.
const ContextUserKey = "currentUser"

type tokenVerifier interface {
	Verify(ctx context.Context, token string, opts service.VerifyOptions) (*models.TokenClaims, error)
}

// JWT protects routes by requiring a valid, unrevoked access token.
func JWT(tokens tokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		claims, err := tokens.Verify(c.Request.Context(), raw, service.VerifyOptions{})
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		scoped := logger.FromContext(c.Request.Context(), nil).With(zap.String("username", claims.Subject))
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), scoped))
		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// CurrentClaims returns the claims stored by JWT.
func CurrentClaims(c *gin.Context) (*models.TokenClaims, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*models.TokenClaims)
	return claims, ok && claims != nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
