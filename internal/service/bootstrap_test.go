package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/identity-api/internal/models"
)

func TestBootstrapSeedsRolesAndAdmin(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	roles := newStubRoles()
	users := newStubUsers()
	b := NewBootstrap(roles, users, AdminAccount{Username: "admin", Password: "admin", Email: "Admin@Identity.local"}, zap.New(core))

	require.NoError(t, b.Run(context.Background()))
	assert.Contains(t, roles.roles, models.RoleAdmin)
	assert.Contains(t, roles.roles, models.RoleUser)

	admin := users.users["admin"]
	require.NotNil(t, admin)
	assert.Equal(t, []string{models.RoleAdmin}, admin.RoleNames())
	assert.Equal(t, "admin@identity.local", admin.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte("admin")))
	assert.Equal(t, 1, logs.FilterLevelExact(zap.WarnLevel).Len())

	hash := admin.PasswordHash
	require.NoError(t, b.Run(context.Background()))
	assert.Equal(t, hash, users.users["admin"].PasswordHash)
}

func TestBootstrapNoWarningForCustomPassword(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := NewBootstrap(newStubRoles(), newStubUsers(), AdminAccount{Username: "root", Password: "s3cure-pass"}, zap.New(core))
	require.NoError(t, b.Run(context.Background()))
	assert.Zero(t, logs.Len())
}

func TestBootstrapPropagatesRoleFailure(t *testing.T) {
	roles := newStubRoles()
	roles.ensureErr = errors.New("db down")
	err := NewBootstrap(roles, newStubUsers(), AdminAccount{Username: "admin"}, nil).Run(context.Background())
	assert.Error(t, err)
}
