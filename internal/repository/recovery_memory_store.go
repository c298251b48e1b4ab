package repository

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/noah-isme/identity-api/internal/models"
)

// MemoryRecoveryStore keeps recovery state in sharded concurrent maps. Every operation is atomic per key.
type MemoryRecoveryStore struct {
	cooldowns  *xsync.MapOf[string, time.Time]
	challenges *xsync.MapOf[string, models.OTPChallenge]
	usedTokens *xsync.MapOf[string, time.Time]
}

// NewMemoryRecoveryStore constructs an empty in-process store.
func NewMemoryRecoveryStore() *MemoryRecoveryStore {
	return &MemoryRecoveryStore{
		cooldowns:  xsync.NewMapOf[string, time.Time](),
		challenges: xsync.NewMapOf[string, models.OTPChallenge](),
		usedTokens: xsync.NewMapOf[string, time.Time](),
	}
}

// ReserveRequest claims the request slot for username unless an earlier claim is still cooling down.
func (s *MemoryRecoveryStore) ReserveRequest(_ context.Context, username string, now time.Time, cooldown time.Duration) (time.Duration, bool, error) {
	var wait time.Duration
	allowed := false
	s.cooldowns.Compute(username, func(until time.Time, loaded bool) (time.Time, bool) {
		if loaded && now.Before(until) {
			wait = retryAfter(until, now)
			return until, false
		}
		allowed = true
		return now.Add(cooldown), false
	})
	return wait, allowed, nil
}

// PutChallenge stores the challenge for username, replacing any pending one.
func (s *MemoryRecoveryStore) PutChallenge(_ context.Context, username string, challenge models.OTPChallenge) error {
	s.challenges.Store(username, challenge)
	return nil
}

// ComputeChallenge atomically reads and replaces the challenge for username.
func (s *MemoryRecoveryStore) ComputeChallenge(_ context.Context, username string, update ChallengeUpdate) error {
	var updateErr error
	s.challenges.Compute(username, func(cur models.OTPChallenge, loaded bool) (models.OTPChallenge, bool) {
		var current *models.OTPChallenge
		if loaded {
			c := cur
			current = &c
		}
		next, err := update(current)
		updateErr = err
		if next == nil {
			return cur, true
		}
		return *next, false
	})
	return updateErr
}

// MarkResetTokenUsed records jti as consumed. It returns false when jti was already recorded.
func (s *MemoryRecoveryStore) MarkResetTokenUsed(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	_, loaded := s.usedTokens.LoadOrStore(jti, expiresAt)
	return !loaded, nil
}

// ReleaseResetToken undoes MarkResetTokenUsed after a failed reset.
func (s *MemoryRecoveryStore) ReleaseResetToken(_ context.Context, jti string) error {
	s.usedTokens.Delete(jti)
	return nil
}

// PurgeExpired drops cooldowns, challenges and used-token records that have lapsed at now.
func (s *MemoryRecoveryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	removed := 0
	s.cooldowns.Range(func(key string, until time.Time) bool {
		s.cooldowns.Compute(key, func(cur time.Time, loaded bool) (time.Time, bool) {
			if loaded && !now.Before(cur) {
				removed++
				return cur, true
			}
			return cur, !loaded
		})
		return true
	})
	s.challenges.Range(func(key string, _ models.OTPChallenge) bool {
		s.challenges.Compute(key, func(cur models.OTPChallenge, loaded bool) (models.OTPChallenge, bool) {
			if loaded && cur.Expired(now) {
				removed++
				return cur, true
			}
			return cur, !loaded
		})
		return true
	})
	s.usedTokens.Range(func(key string, _ time.Time) bool {
		s.usedTokens.Compute(key, func(exp time.Time, loaded bool) (time.Time, bool) {
			if loaded && !now.Before(exp) {
				removed++
				return exp, true
			}
			return exp, !loaded
		})
		return true
	})
	return removed, nil
}
