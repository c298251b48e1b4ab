package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/identity-api/internal/models"
)

const (
	recoveryKeyPrefix     = "recovery"
	challengeWatchRetries = 4
)

// ErrConcurrentUpdate is returned when a challenge kept changing under optimistic locking.
var ErrConcurrentUpdate = errors.New("challenge updated concurrently")

// RedisRecoveryStore keeps recovery state in Redis keys that expire on their own.
type RedisRecoveryStore struct {
	client redis.UniversalClient
}

// NewRedisRecoveryStore constructs a Redis-backed recovery store.
func NewRedisRecoveryStore(client redis.UniversalClient) *RedisRecoveryStore {
	return &RedisRecoveryStore{client: client}
}

func cooldownKey(username string) string { return recoveryKeyPrefix + ":cooldown:" + username }
func challengeKey(username string) string { return recoveryKeyPrefix + ":otp:" + username }
func usedTokenKey(jti string) string      { return recoveryKeyPrefix + ":used:" + jti }

// ReserveRequest claims the request slot with SET NX PX so only one caller per cooldown window wins.
func (s *RedisRecoveryStore) ReserveRequest(ctx context.Context, username string, now time.Time, cooldown time.Duration) (time.Duration, bool, error) {
	if cooldown <= 0 {
		return 0, true, nil
	}
	key := cooldownKey(username)
	ok, err := s.client.SetNX(ctx, key, now.UTC().Format(time.RFC3339Nano), cooldown).Result()
	if err != nil {
		return 0, false, fmt.Errorf("reserve otp request: %w", err)
	}
	if ok {
		return 0, true, nil
	}
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, false, fmt.Errorf("read otp cooldown: %w", err)
	}
	if ttl < 0 {
		ttl = cooldown
	}
	return ttl, false, nil
}

// PutChallenge stores the challenge until its expiry, replacing any pending one.
func (s *RedisRecoveryStore) PutChallenge(ctx context.Context, username string, challenge models.OTPChallenge) error {
	data, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("encode otp challenge: %w", err)
	}
	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		return s.client.Del(ctx, challengeKey(username)).Err()
	}
	if err := s.client.Set(ctx, challengeKey(username), data, ttl).Err(); err != nil {
		return fmt.Errorf("store otp challenge: %w", err)
	}
	return nil
}

// ComputeChallenge reads and replaces the challenge under WATCH, retrying when another client raced it.
func (s *RedisRecoveryStore) ComputeChallenge(ctx context.Context, username string, update ChallengeUpdate) error {
	key := challengeKey(username)

	for i := 0; i < challengeWatchRetries; i++ {
		var updateErr error

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			var current *models.OTPChallenge
			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case err == nil:
				var c models.OTPChallenge
				if err := json.Unmarshal(data, &c); err != nil {
					return fmt.Errorf("decode otp challenge: %w", err)
				}
				current = &c
			case !errors.Is(err, redis.Nil):
				return err
			}

			next, fnErr := update(current)
			updateErr = fnErr

			var encoded []byte
			var ttl time.Duration
			if next != nil {
				ttl = time.Until(next.ExpiresAt)
				if encoded, err = json.Marshal(next); err != nil {
					return fmt.Errorf("encode otp challenge: %w", err)
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if next == nil || ttl <= 0 {
					pipe.Del(ctx, key)
					return nil
				}
				pipe.Set(ctx, key, encoded, ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update otp challenge: %w", err)
		}
		return updateErr
	}

	return ErrConcurrentUpdate
}

// MarkResetTokenUsed records jti with SET NX until the token itself expires.
func (s *RedisRecoveryStore) MarkResetTokenUsed(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := time.Until(expiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := s.client.SetNX(ctx, usedTokenKey(jti), expiresAt.UTC().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark reset token used: %w", err)
	}
	return ok, nil
}

// ReleaseResetToken undoes MarkResetTokenUsed after a failed reset.
func (s *RedisRecoveryStore) ReleaseResetToken(ctx context.Context, jti string) error {
	if err := s.client.Del(ctx, usedTokenKey(jti)).Err(); err != nil {
		return fmt.Errorf("release reset token: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op: every key carries its own TTL.
func (s *RedisRecoveryStore) PurgeExpired(context.Context, time.Time) (int, error) {
	return 0, nil
}
