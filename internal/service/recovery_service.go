package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/identity-api/internal/dto"
	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/repository"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
	"github.com/noah-isme/identity-api/pkg/logger"
)

const (
	otpMin   = 100000
	otpRange = 900000
)

type recoveryUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type recoveryStore interface {
	ReserveRequest(ctx context.Context, username string, now time.Time, cooldown time.Duration) (time.Duration, bool, error)
	PutChallenge(ctx context.Context, username string, challenge models.OTPChallenge) error
	ComputeChallenge(ctx context.Context, username string, update repository.ChallengeUpdate) error
	MarkResetTokenUsed(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	ReleaseResetToken(ctx context.Context, jti string) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

type resetTokenSigner interface {
	SignResetToken(username string) (*models.IssuedToken, error)
	Verify(ctx context.Context, token string, opts VerifyOptions) (*models.TokenClaims, error)
}

// otpNotifier hands a code to the delivery channel without waiting for delivery.
type otpNotifier interface {
	NotifyOTP(ctx context.Context, user *models.User, code string, expiresAt time.Time) error
}

var (
	errOTPMissing    = errors.New("no pending otp")
	errOTPExpired    = errors.New("otp expired")
	errOTPMismatch   = errors.New("otp mismatch")
	errOTPExhausted  = errors.New("otp attempts exhausted")
	errResetReplayed = errors.New("reset token already used")
)

// RecoveryConfig tunes the OTP flow.
type RecoveryConfig struct {
	OTPTTL      time.Duration
	Cooldown    time.Duration
	MaxAttempts int
}

// RecoveryService runs the OTP based password reset flow.
type RecoveryService struct {
	users     recoveryUserRepository
	store     recoveryStore
	tokens    resetTokenSigner
	notifier  otpNotifier
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	config    RecoveryConfig
	events    eventRecorder

	clock        func() time.Time
	otpGenerator func() (string, error)
}

// NewRecoveryService constructs a RecoveryService instance.
func NewRecoveryService(
	users recoveryUserRepository,
	store recoveryStore,
	tokens resetTokenSigner,
	notifier otpNotifier,
	audit auditRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
	config RecoveryConfig,
	events eventRecorder,
) *RecoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if events == nil {
		events = nopRecorder{}
	}
	return &RecoveryService{
		users:        users,
		store:        store,
		tokens:       tokens,
		notifier:     notifier,
		audit:        audit,
		validator:    validate,
		logger:       logger,
		config:       config,
		events:       events,
		clock:        time.Now,
		otpGenerator: generateOTP,
	}
}

// OTPTTL reports how long an issued code stays valid.
func (s *RecoveryService) OTPTTL() time.Duration {
	return s.config.OTPTTL
}

// RequestOTP issues a fresh code for username and queues it for delivery.
// Only the most recent code is ever accepted.
func (s *RecoveryService) RequestOTP(ctx context.Context, req dto.OTPRequest) (time.Time, error) {
	if err := s.validator.Struct(req); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp request")
	}
	log := logger.FromContext(ctx, s.logger).With(zap.String("username", req.Username))
	now := s.clock()

	wait, ok, err := s.store.ReserveRequest(ctx, req.Username, now, s.config.Cooldown)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rate limit otp request")
	}
	if !ok {
		s.events.RecordAuthEvent("otp_request", "rate_limited")
		return time.Time{}, appErrors.WithDetail(
			appErrors.Clone(appErrors.ErrTooManyRequests, "otp requested too recently"),
			appErrors.DetailRetryAfter, int(math.Ceil(wait.Seconds())),
		)
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.events.RecordAuthEvent("otp_request", "unknown_user")
			return time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	code, err := s.otpGenerator()
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate otp")
	}

	expiresAt := now.Add(s.config.OTPTTL)
	if err := s.store.PutChallenge(ctx, req.Username, models.OTPChallenge{Code: code, ExpiresAt: expiresAt}); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store otp")
	}

	if err := s.notifier.NotifyOTP(ctx, user, code, expiresAt); err != nil {
		log.Warn("failed to queue otp delivery", zap.Error(err))
	}

	s.events.RecordAuthEvent("otp_request", "success")
	log.Info("otp issued", zap.Time("expires_at", expiresAt))
	return expiresAt, nil
}

// VerifyOTP redeems code and returns a password reset token. A wrong code keeps the challenge
// pending until it expires or the attempt cap is reached.
func (s *RecoveryService) VerifyOTP(ctx context.Context, req dto.VerifyOTPRequest) (*models.IssuedToken, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid otp verification payload")
	}
	now := s.clock()

	err := s.store.ComputeChallenge(ctx, req.Username, func(cur *models.OTPChallenge) (*models.OTPChallenge, error) {
		switch {
		case cur == nil:
			return nil, errOTPMissing
		case cur.Expired(now):
			return nil, errOTPExpired
		case subtle.ConstantTimeCompare([]byte(cur.Code), []byte(req.OTP)) != 1:
			next := *cur
			next.Attempts++
			if s.config.MaxAttempts > 0 && next.Attempts >= s.config.MaxAttempts {
				return nil, errOTPExhausted
			}
			return &next, errOTPMismatch
		default:
			return nil, nil
		}
	})

	switch {
	case err == nil:
	case errors.Is(err, errOTPMismatch):
		s.events.RecordAuthEvent("otp_verify", "incorrect")
		return nil, appErrors.WithCause(appErrors.ErrOTPIncorrect, err)
	case errors.Is(err, errOTPMissing), errors.Is(err, errOTPExpired), errors.Is(err, errOTPExhausted):
		s.events.RecordAuthEvent("otp_verify", "invalid")
		return nil, appErrors.WithCause(appErrors.ErrOTPInvalid, err)
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify otp")
	}

	token, err := s.tokens.SignResetToken(req.Username)
	if err != nil {
		return nil, err
	}
	s.events.RecordAuthEvent("otp_verify", "success")
	return token, nil
}

// ResetPassword sets a new password using a reset token. Each reset token works once.
func (s *RecoveryService) ResetPassword(ctx context.Context, req dto.ResetPasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reset payload")
	}
	if err := checkPasswordBytes("new_password", req.NewPassword); err != nil {
		return err
	}

	claims, err := s.tokens.Verify(ctx, req.ResetToken, VerifyOptions{Purpose: models.PurposePasswordReset})
	if err != nil {
		s.events.RecordAuthEvent("password_reset", "invalid_token")
		return err
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	claimed, err := s.store.MarkResetTokenUsed(ctx, claims.ID, expiresAt)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record reset token use")
	}
	if !claimed {
		s.events.RecordAuthEvent("password_reset", "replayed")
		return appErrors.WithCause(appErrors.ErrTokenInvalid, errResetReplayed)
	}

	if err := s.applyReset(ctx, claims.Subject, req.NewPassword); err != nil {
		if releaseErr := s.store.ReleaseResetToken(ctx, claims.ID); releaseErr != nil {
			logger.FromContext(ctx, s.logger).Error("failed to release reset token", zap.Error(releaseErr))
		}
		return err
	}

	s.events.RecordAuthEvent("password_reset", "success")
	return nil
}

func (s *RecoveryService) applyReset(ctx context.Context, username, password string) error {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "reset token subject no longer exists")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash), s.clock().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	recordAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:   &user.ID,
		Username: user.Username,
		Action:   models.AuditActionPasswordReset,
		Success:  true,
	})
	return nil
}

// PurgeExpired drops lapsed recovery state from stores that do not expire keys on their own.
func (s *RecoveryService) PurgeExpired(ctx context.Context) (int, error) {
	return s.store.PurgeExpired(ctx, s.clock())
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpRange))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}
