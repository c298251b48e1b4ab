package middleware

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/pkg/logger"
)

type auditWriter interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// Audit records an audit row after a successful administrative request.
// The target is read from the named path parameter or, when absent, from the response's resource.
func Audit(repo auditWriter, action, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if repo == nil || c.Writer.Status() >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:    action,
			Success:   true,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			Detail:    auditDetail(c, param),
		}
		if claims, ok := CurrentClaims(c); ok {
			entry.Username = claims.Subject
		}

		if err := repo.Create(c.Request.Context(), entry); err != nil {
			logger.FromContext(c.Request.Context(), nil).Warn("failed to record audit log",
				zap.String("action", action),
				zap.Error(err),
			)
		}
	}
}

// AuditTargetKey lets handlers name the resource they created for Audit.
const AuditTargetKey = "auditTarget"

func auditDetail(c *gin.Context, param string) string {
	target := ""
	if param != "" {
		target = c.Param(param)
	}
	if target == "" {
		target = c.GetString(AuditTargetKey)
	}
	detail := fmt.Sprintf("%s %s", c.Request.Method, c.FullPath())
	if target != "" {
		detail += " target=" + strings.TrimSpace(target)
	}
	return detail
}
