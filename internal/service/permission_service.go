package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/identity-api/internal/dto"
	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/repository"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

// PermissionService manages named permissions.
type PermissionService struct {
	repo      permissionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(repo permissionRepository, validate *validator.Validate, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PermissionService{repo: repo, validator: validate, logger: logger}
}

// List returns all permissions.
func (s *PermissionService) List(ctx context.Context) ([]models.Permission, error) {
	perms, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list permissions")
	}
	return perms, nil
}

// Create adds a permission.
func (s *PermissionService) Create(ctx context.Context, req dto.CreatePermissionRequest) (*models.Permission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid permission payload")
	}
	perm := &models.Permission{Name: req.Name, Description: req.Description}
	if err := s.repo.Create(ctx, perm); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "permission already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create permission")
	}
	return perm, nil
}

// Delete removes a permission and every grant of it.
func (s *PermissionService) Delete(ctx context.Context, name string) error {
	if err := s.repo.Delete(ctx, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "permission not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete permission")
	}
	return nil
}
