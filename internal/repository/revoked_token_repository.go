package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RevokedTokenRepository persists revoked token ids until they expire.
type RevokedTokenRepository struct {
	db *sqlx.DB
}

// NewRevokedTokenRepository constructs a RevokedTokenRepository.
func NewRevokedTokenRepository(db *sqlx.DB) *RevokedTokenRepository {
	return &RevokedTokenRepository{db: db}
}

// Exists reports whether jti has been revoked.
func (r *RevokedTokenRepository) Exists(ctx context.Context, jti string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti); err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return exists, nil
}

// Insert records jti as revoked. It returns false when the id was already present.
func (r *RevokedTokenRepository) Insert(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	const query = `INSERT INTO revoked_tokens (jti, expires_at, revoked_at) VALUES ($1, $2, $3) ON CONFLICT (jti) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, jti, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke token rows affected: %w", err)
	}
	return n == 1, nil
}

// DeleteExpiredBefore removes records whose expiry is at or before now.
func (r *RevokedTokenRepository) DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired revoked tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rows affected: %w", err)
	}
	return n, nil
}
