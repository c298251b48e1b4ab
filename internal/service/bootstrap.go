package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/identity-api/internal/models"
	"github.com/noah-isme/identity-api/internal/repository"
)

// defaultAdminPassword is the out-of-the-box admin password that triggers a warning at boot.
const defaultAdminPassword = "admin"

type bootstrapRoleRepository interface {
	Ensure(ctx context.Context, role *models.Role) error
}

type bootstrapUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// AdminAccount describes the administrator seeded at startup.
type AdminAccount struct {
	Username string
	Password string
	Email    string
}

// Bootstrap seeds the built-in roles and the initial administrator.
type Bootstrap struct {
	roles  bootstrapRoleRepository
	users  bootstrapUserRepository
	admin  AdminAccount
	logger *zap.Logger
}

// NewBootstrap constructs a Bootstrap seeder.
func NewBootstrap(roles bootstrapRoleRepository, users bootstrapUserRepository, admin AdminAccount, logger *zap.Logger) *Bootstrap {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrap{roles: roles, users: users, admin: admin, logger: logger}
}

// Run is idempotent: existing roles and an existing admin account are left untouched.
func (b *Bootstrap) Run(ctx context.Context) error {
	for _, role := range []models.Role{
		{Name: models.RoleAdmin, Description: "Administrator"},
		{Name: models.RoleUser, Description: "Regular user"},
	} {
		role := role
		if err := b.roles.Ensure(ctx, &role); err != nil {
			return fmt.Errorf("ensure role %s: %w", role.Name, err)
		}
	}

	if b.admin.Username == "" {
		b.logger.Warn("admin username not configured; skipping admin seeding")
		return nil
	}

	_, err := b.users.FindByUsername(ctx, b.admin.Username)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(b.admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := &models.User{
		ID:           uuid.NewString(),
		Username:     b.admin.Username,
		Email:        strings.ToLower(b.admin.Email),
		PasswordHash: string(hash),
		Active:       true,
		Roles:        []models.Role{{Name: models.RoleAdmin}},
	}
	if err := b.users.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil
		}
		return fmt.Errorf("create admin: %w", err)
	}

	b.logger.Info("admin account created", zap.String("username", admin.Username))
	if b.admin.Password == defaultAdminPassword {
		b.logger.Warn("admin account uses the default password; change it immediately")
	}
	return nil
}
