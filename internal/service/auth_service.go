package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/identity-api/internal/models"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
}

type sessionTokens interface {
	Issue(ctx context.Context, user *models.User) (*models.IssuedToken, error)
	Introspect(ctx context.Context, token string) models.IntrospectResponse
	Refresh(ctx context.Context, token string) (*models.IssuedToken, error)
	Logout(ctx context.Context, token string) (*models.TokenClaims, error)
}

// AuthService provides authentication use cases.
type AuthService struct {
	users     authUserRepository
	tokens    sessionTokens
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	events    eventRecorder

	// missingUserCompare burns bcrypt time when the username is unknown.
	missingUserCompare func(password string)
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, tokens sessionTokens, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, events eventRecorder) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if events == nil {
		events = nopRecorder{}
	}
	return &AuthService{
		users:              users,
		tokens:             tokens,
		audit:              audit,
		validator:          validate,
		logger:             logger,
		events:             events,
		missingUserCompare: compareDummyHash,
	}
}

// Login authenticates a user by username and password and returns an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.missingUserCompare(req.Password)
			s.loginFailed(ctx, req, nil, "unknown user")
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.loginFailed(ctx, req, user, "password mismatch")
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if !user.Active {
		s.loginFailed(ctx, req, user, "inactive account")
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account is inactive")
	}

	issued, err := s.tokens.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.events.RecordAuthEvent("login", "success")
	recordAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:    &user.ID,
		Username:  user.Username,
		Action:    models.AuditActionLogin,
		Success:   true,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})

	return &models.LoginResponse{
		Authenticated: true,
		Token:         issued.Token,
		ExpiresIn:     issued.ExpiresIn(),
		IssuedAt:      issued.IssuedAt,
	}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, req models.LoginRequest, user *models.User, reason string) {
	s.events.RecordAuthEvent("login", "failure")
	entry := &models.AuditLog{
		Username:  req.Username,
		Action:    models.AuditActionLogin,
		Success:   false,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
		Detail:    reason,
	}
	if user != nil {
		entry.UserID = &user.ID
	}
	recordAudit(ctx, s.audit, s.logger, entry)
}

// Introspect reports whether a token is currently valid.
func (s *AuthService) Introspect(ctx context.Context, req models.TokenRequest) (models.IntrospectResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.IntrospectResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid introspect payload")
	}
	return s.tokens.Introspect(ctx, req.Token), nil
}

// Refresh rotates a token: the presented one is revoked and a fresh access token returned.
func (s *AuthService) Refresh(ctx context.Context, req models.TokenRequest) (*models.RefreshResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	issued, err := s.tokens.Refresh(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Username:  issued.Subject,
		Action:    models.AuditActionTokenRefresh,
		Success:   true,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})

	return &models.RefreshResponse{
		Authenticated: true,
		Token:         issued.Token,
		ExpiresIn:     issued.ExpiresIn(),
		IssuedAt:      issued.IssuedAt,
	}, nil
}

// Logout revokes the presented token.
func (s *AuthService) Logout(ctx context.Context, req models.TokenRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid logout payload")
	}

	claims, err := s.tokens.Logout(ctx, req.Token)
	if err != nil {
		return err
	}

	recordAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Username:  claims.Subject,
		Action:    models.AuditActionLogout,
		Success:   true,
		IPAddress: req.IP,
		UserAgent: req.UserAgent,
	})
	return nil
}
