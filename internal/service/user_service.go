package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/identity-api/internal/dto"
	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/repository"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return s.lookup(s.repo.FindByID(ctx, id))
}

// GetByUsername returns the user owning username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.lookup(s.repo.FindByUsername(ctx, username))
}

func (s *UserService) lookup(user *models.User, err error) (*models.User, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create registers a new account with the default USER role.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest, meta models.RequestMeta) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	if err := checkPasswordBytes("password", req.Password); err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        strings.ToLower(req.Email),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		DOB:          req.DOB,
		Active:       true,
		PasswordHash: string(passwordHash),
		Roles:        []models.Role{{Name: models.RoleUser}},
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	recordAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:    &user.ID,
		Username:  user.Username,
		Action:    models.AuditActionUserCreate,
		Success:   true,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Detail:    "created by " + actorOr(meta, "self"),
	})

	return s.GetByUsername(ctx, user.Username)
}

// ChangePassword replaces the password of user id after checking the current one.
func (s *UserService) ChangePassword(ctx context.Context, id string, req dto.ChangePasswordRequest, meta models.RequestMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}
	if err := checkPasswordBytes("new_password", req.NewPassword); err != nil {
		return err
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrInvalidCredentials, "current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	recordAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:    &user.ID,
		Username:  user.Username,
		Action:    models.AuditActionPasswordChange,
		Success:   true,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	})
	return nil
}

// Delete removes a user.
func (s *UserService) Delete(ctx context.Context, id string, meta models.RequestMeta) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Username == meta.Actor {
		return appErrors.Clone(appErrors.ErrConflict, "cannot delete your own account")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	recordAudit(ctx, s.audit, s.logger, &models.AuditLog{
		Username:  user.Username,
		Action:    models.AuditActionUserDelete,
		Success:   true,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
		Detail:    "deleted by " + actorOr(meta, "unknown"),
	})
	return nil
}

func actorOr(meta models.RequestMeta, fallback string) string {
	if meta.Actor == "" {
		return fallback
	}
	return meta.Actor
}
