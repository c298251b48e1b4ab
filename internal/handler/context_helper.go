package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/identity-api/internal/middleware"
	"github.com/noah-isme/identity-api/internal/models"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
	"github.com/noah-isme/identity-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.TokenClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

func requestMeta(c *gin.Context) models.RequestMeta {
	meta := models.RequestMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if claims := claimsFromContext(c); claims != nil {
		meta.Actor = claims.Subject
	}
	return meta
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}
