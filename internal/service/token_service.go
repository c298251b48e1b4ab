package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/identity-api/internal/models"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
	"github.com/noah-isme/identity-api/pkg/logger"
)

type tokenUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

type revocationRepository interface {
	Exists(ctx context.Context, jti string) (bool, error)
	Insert(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error)
}

// Reasons a token is rejected. They are carried as the cause of the public error and never shown to clients.
var (
	errTokenMalformed      = errors.New("token malformed")
	errTokenSignature      = errors.New("token signature invalid")
	errTokenMissingExpiry  = errors.New("token has no expiry")
	errTokenExpired        = errors.New("token expired")
	errTokenIssuer         = errors.New("token issuer mismatch")
	errTokenIssuedInFuture = errors.New("token issued in the future")
	errTokenMissingClaims  = errors.New("token missing subject or id")
	errTokenRevoked        = errors.New("token revoked")
	errTokenPurpose        = errors.New("token purpose mismatch")
)

// TokenConfig configures signing and token lifetimes.
type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
}

// VerifyOptions selects how strictly a token is judged.
type VerifyOptions struct {
	// Purpose must equal the token's purpose claim. Empty accepts only ordinary access tokens.
	Purpose string
	// RefreshWindow judges validity by issued-at plus the refresh lifetime instead of the embedded expiry.
	RefreshWindow bool
}

// TokenService mints, verifies, refreshes and revokes bearer tokens.
type TokenService struct {
	users   tokenUserRepository
	revoked revocationRepository
	logger  *zap.Logger
	config  TokenConfig
	events  eventRecorder
	parser  *jwt.Parser
	clock   func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(users tokenUserRepository, revoked revocationRepository, logger *zap.Logger, config TokenConfig, events eventRecorder) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = nopRecorder{}
	}
	return &TokenService{
		users:   users,
		revoked: revoked,
		logger:  logger,
		config:  config,
		events:  events,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
		clock: time.Now,
	}
}

// Issue signs an access token for user carrying its role and permission scope.
func (s *TokenService) Issue(ctx context.Context, user *models.User) (*models.IssuedToken, error) {
	if user == nil || user.Username == "" {
		return nil, appErrors.Clone(appErrors.ErrInternal, "cannot issue token without subject")
	}
	token, err := s.sign(user.Username, user.Scope(), "", s.config.AccessTTL)
	if err != nil {
		return nil, err
	}
	s.events.RecordAuthEvent("token_issue", "success")
	return token, nil
}

// SignResetToken signs a short lived token usable only for resetting username's password.
func (s *TokenService) SignResetToken(username string) (*models.IssuedToken, error) {
	return s.sign(username, "", models.PurposePasswordReset, s.config.ResetTTL)
}

func (s *TokenService) sign(subject, scope, purpose string, ttl time.Duration) (*models.IssuedToken, error) {
	now := s.clock().UTC().Truncate(time.Second)
	exp := now.Add(ttl)

	claims := models.TokenClaims{
		Scope:   scope,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}
	return &models.IssuedToken{Token: signed, Subject: subject, IssuedAt: now, ExpiresAt: exp}, nil
}

// Introspect reports whether token is currently acceptable as an access token. It never fails.
func (s *TokenService) Introspect(ctx context.Context, token string) models.IntrospectResponse {
	claims, err := s.Verify(ctx, token, VerifyOptions{})
	if err != nil {
		if appErrors.FromError(err).Status >= 500 {
			logger.FromContext(ctx, s.logger).Error("introspection failed closed", zap.Error(err))
		}
		return models.IntrospectResponse{Valid: false}
	}
	return models.IntrospectResponse{Valid: true, Username: claims.Subject}
}

// Verify checks token strictly. Expected rejections surface as TOKEN_EXPIRED or TOKEN_INVALID
// with the specific reason attached as cause; storage failures surface as INTERNAL_ERROR.
func (s *TokenService) Verify(ctx context.Context, token string, opts VerifyOptions) (*models.TokenClaims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, s.reject(err)
	}

	now := s.clock()
	deadline, err := s.deadline(claims, opts)
	if err != nil {
		return nil, s.reject(err)
	}
	if !now.Before(deadline) {
		return nil, s.reject(errTokenExpired)
	}
	if claims.Issuer != s.config.Issuer {
		return nil, s.reject(errTokenIssuer)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(now) {
		return nil, s.reject(errTokenIssuedInFuture)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, s.reject(errTokenMissingClaims)
	}
	if claims.Purpose != opts.Purpose {
		return nil, s.reject(errTokenPurpose)
	}

	revoked, err := s.revoked.Exists(ctx, claims.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check token revocation")
	}
	if revoked {
		return nil, s.reject(errTokenRevoked)
	}
	return claims, nil
}

func (s *TokenService) parse(token string) (*models.TokenClaims, error) {
	var claims models.TokenClaims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	})
	switch {
	case err == nil:
		return &claims, nil
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return nil, fmt.Errorf("%w: %v", errTokenSignature, err)
	default:
		return nil, fmt.Errorf("%w: %v", errTokenMalformed, err)
	}
}

func (s *TokenService) deadline(claims *models.TokenClaims, opts VerifyOptions) (time.Time, error) {
	if opts.RefreshWindow {
		if claims.IssuedAt == nil {
			return time.Time{}, errTokenMissingExpiry
		}
		return claims.IssuedAt.Time.Add(s.config.RefreshTTL), nil
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errTokenMissingExpiry
	}
	return claims.ExpiresAt.Time, nil
}

func (s *TokenService) reject(reason error) *appErrors.Error {
	if errors.Is(reason, errTokenExpired) {
		s.events.RecordAuthEvent("token_verify", "expired")
		return appErrors.WithCause(appErrors.ErrTokenExpired, reason)
	}
	s.events.RecordAuthEvent("token_verify", "invalid")
	return appErrors.WithCause(appErrors.ErrTokenInvalid, reason)
}

// Refresh consumes token within its refresh window and issues a new access token for the same subject.
func (s *TokenService) Refresh(ctx context.Context, token string) (*models.IssuedToken, error) {
	claims, err := s.Verify(ctx, token, VerifyOptions{RefreshWindow: true})
	if err != nil {
		return nil, err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}

	user, err := s.users.FindByUsername(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	issued, err := s.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.events.RecordAuthEvent("token_refresh", "success")
	return issued, nil
}

// Logout revokes token so it is rejected for the rest of its lifetime.
func (s *TokenService) Logout(ctx context.Context, token string) (*models.TokenClaims, error) {
	claims, err := s.Verify(ctx, token, VerifyOptions{})
	if err != nil {
		return nil, err
	}
	if err := s.revoke(ctx, claims); err != nil {
		return nil, err
	}
	s.events.RecordAuthEvent("logout", "success")
	return claims, nil
}

// revoke inserts the token id; losing a concurrent insert means another caller already consumed it.
func (s *TokenService) revoke(ctx context.Context, claims *models.TokenClaims) error {
	inserted, err := s.revoked.Insert(ctx, claims.ID, s.revocationExpiry(claims))
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke token")
	}
	if !inserted {
		return s.reject(errTokenRevoked)
	}
	return nil
}

// revocationExpiry keeps the record until neither the access expiry nor the refresh window can accept the token.
func (s *TokenService) revocationExpiry(claims *models.TokenClaims) time.Time {
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		if window := claims.IssuedAt.Time.Add(s.config.RefreshTTL); window.After(exp) {
			exp = window
		}
	}
	return exp
}

// CleanupExpired deletes revocation records whose expiry has passed.
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.revoked.DeleteExpiredBefore(ctx, s.clock())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clean up revoked tokens")
	}
	return n, nil
}
