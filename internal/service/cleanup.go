package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type revocationSweeper interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type recoverySweeper interface {
	PurgeExpired(ctx context.Context) (int, error)
}

type purgeRecorder interface {
	RecordPurge(store string, count int)
}

// CleanupTask periodically removes lapsed revocation records and recovery state.
type CleanupTask struct {
	tokens   revocationSweeper
	recovery recoverySweeper
	interval time.Duration
	logger   *zap.Logger
	metrics  purgeRecorder
}

// NewCleanupTask constructs a CleanupTask. A non-positive interval disables it.
func NewCleanupTask(tokens revocationSweeper, recovery recoverySweeper, interval time.Duration, logger *zap.Logger) *CleanupTask {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupTask{tokens: tokens, recovery: recovery, interval: interval, logger: logger}
}

// WithMetrics reports purge counts to m.
func (t *CleanupTask) WithMetrics(m purgeRecorder) *CleanupTask {
	t.metrics = m
	return t
}

// StartCleanup boots a goroutine that sweeps until ctx is cancelled.
func (t *CleanupTask) StartCleanup(ctx context.Context) {
	if t.interval <= 0 {
		return
	}
	ticker := time.NewTicker(t.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single sweep. Failures are logged and retried on the next tick.
func (t *CleanupTask) RunOnce(ctx context.Context) {
	if t.tokens != nil {
		n, err := t.tokens.CleanupExpired(ctx)
		if err != nil {
			t.logger.Warn("revoked token cleanup failed", zap.Error(err))
		} else if n > 0 {
			t.logger.Info("revoked tokens purged", zap.Int64("count", n))
			t.recordPurge("revoked_tokens", int(n))
		}
	}
	if t.recovery != nil {
		n, err := t.recovery.PurgeExpired(ctx)
		if err != nil {
			t.logger.Warn("recovery state cleanup failed", zap.Error(err))
		} else if n > 0 {
			t.logger.Debug("recovery entries purged", zap.Int("count", n))
			t.recordPurge("recovery", n)
		}
	}
}

func (t *CleanupTask) recordPurge(store string, n int) {
	if t.metrics != nil {
		t.metrics.RecordPurge(store, n)
	}
}
