package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/identity-api/internal/dto"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

func TestPermissionLifecycle(t *testing.T) {
	perms := newStubPermissions()
	svc := NewPermissionService(perms, nil, nil)
	ctx := context.Background()

	perm, err := svc.Create(ctx, dto.CreatePermissionRequest{Name: "USER_READ", Description: "Read users"})
	require.NoError(t, err)
	assert.Equal(t, "USER_READ", perm.Name)

	_, err = svc.Create(ctx, dto.CreatePermissionRequest{Name: "USER_READ"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = svc.Create(ctx, dto.CreatePermissionRequest{Name: "user_read"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, "USER_READ"))
	assert.ErrorIs(t, svc.Delete(ctx, "USER_READ"), appErrors.ErrNotFound)
}

func TestListPermissionsFailure(t *testing.T) {
	perms := newStubPermissions()
	perms.err = errors.New("db down")
	_, err := NewPermissionService(perms, nil, nil).List(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}
