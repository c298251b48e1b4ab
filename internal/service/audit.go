package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/pkg/logger"
)

type auditRecorder interface {
	Create(ctx context.Context, entry *models.AuditLog) error
}

// recordAudit writes an audit row without letting a failure affect the caller.
func recordAudit(ctx context.Context, repo auditRecorder, fallback *zap.Logger, entry *models.AuditLog) {
	if repo == nil {
		return
	}
	if err := repo.Create(ctx, entry); err != nil {
		logger.FromContext(ctx, fallback).Warn("failed to record audit log",
			zap.String("action", entry.Action),
			zap.Error(err),
		)
	}
}
