package repository

import (
	"context"
	"time"

	"github.com/noah-isme/identity-api/internal/models"
)

// ChallengeUpdate receives the current challenge (nil when none) and returns its replacement.
// A nil replacement deletes the challenge. The returned error is passed back to the caller
// after the replacement has been stored.
type ChallengeUpdate func(current *models.OTPChallenge) (*models.OTPChallenge, error)

// RecoveryStore holds OTP challenges, request cooldowns and consumed reset tokens.
type RecoveryStore interface {
	ReserveRequest(ctx context.Context, username string, now time.Time, cooldown time.Duration) (time.Duration, bool, error)
	PutChallenge(ctx context.Context, username string, challenge models.OTPChallenge) error
	ComputeChallenge(ctx context.Context, username string, update ChallengeUpdate) error
	MarkResetTokenUsed(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	ReleaseResetToken(ctx context.Context, jti string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

var (
	_ RecoveryStore = (*MemoryRecoveryStore)(nil)
	_ RecoveryStore = (*RedisRecoveryStore)(nil)
)

func retryAfter(until, now time.Time) time.Duration {
	d := until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
