package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/identity-api/internal/dto"
	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/repository"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

type roleRepository interface {
	List(ctx context.Context) ([]models.Role, error)
	FindByName(ctx context.Context, name string) (*models.Role, error)
	Create(ctx context.Context, role *models.Role) error
	Delete(ctx context.Context, name string) error
}

type permissionRepository interface {
	List(ctx context.Context) ([]models.Permission, error)
	Create(ctx context.Context, perm *models.Permission) error
	Delete(ctx context.Context, name string) error
	Existing(ctx context.Context, names []string) ([]string, error)
}

// RoleService manages roles and their permission grants.
type RoleService struct {
	roles     roleRepository
	perms     permissionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoleService constructs a RoleService.
func NewRoleService(roles roleRepository, perms permissionRepository, validate *validator.Validate, logger *zap.Logger) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RoleService{roles: roles, perms: perms, validator: validate, logger: logger}
}

// List returns every role.
func (s *RoleService) List(ctx context.Context) ([]models.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roles")
	}
	return roles, nil
}

// Create adds a role granting existing permissions. Unknown permission names are rejected.
func (s *RoleService) Create(ctx context.Context, req dto.CreateRoleRequest) (*models.Role, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role payload")
	}

	names := dedupe(req.Permissions)
	found, err := s.perms.Existing(ctx, names)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check permissions")
	}
	if missing := difference(names, found); len(missing) > 0 {
		return nil, appErrors.WithDetail(
			appErrors.Clone(appErrors.ErrValidation, "unknown permissions"),
			"permissions", missing,
		)
	}

	role := &models.Role{Name: req.Name, Description: req.Description}
	for _, name := range names {
		role.Permissions = append(role.Permissions, models.Permission{Name: name})
	}

	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "role already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create role")
	}

	created, err := s.roles.FindByName(ctx, role.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load role")
	}
	return created, nil
}

// Delete removes a role. Built-in roles cannot be removed.
func (s *RoleService) Delete(ctx context.Context, name string) error {
	name = strings.ToUpper(name)
	if name == models.RoleAdmin || name == models.RoleUser {
		return appErrors.Clone(appErrors.ErrConflict, "built-in roles cannot be deleted")
	}
	if err := s.roles.Delete(ctx, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "role not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete role")
	}
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func difference(want, have []string) []string {
	present := make(map[string]struct{}, len(have))
	for _, h := range have {
		present[h] = struct{}{}
	}
	var missing []string
	for _, w := range want {
		if _, ok := present[w]; !ok {
			missing = append(missing, w)
		}
	}
	return missing
}
