package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/identity-api/internal/dto"
	"github.com/noah-isme/identity-api/internal/models"
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

const aliceID = "6f1c2f1e-8a4b-4c55-9d63-2b6b0d0c1a01"

func newUserFixture() (*UserService, *stubUsers, *stubAudit) {
	users := newStubUsers(newTestUser(aliceID, "alice", "secret1", models.Role{Name: models.RoleAdmin}))
	audit := &stubAudit{}
	return NewUserService(users, audit, nil, nil), users, audit
}

func TestCreateUserAssignsDefaultRole(t *testing.T) {
	svc, users, audit := newUserFixture()
	dob := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)

	user, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Username:  "bob",
		Password:  "password1",
		Email:     "Bob@Example.com",
		FirstName: "Bob",
		DOB:       &dob,
	}, models.RequestMeta{IP: "10.0.0.2"})
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.Equal(t, []string{models.RoleUser}, user.RoleNames())
	assert.True(t, user.Active)

	stored := users.users["bob"]
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("password1")))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionUserCreate, audit.entries[0].Action)
	assert.Equal(t, "created by self", audit.entries[0].Detail)
}

func TestCreateUserDuplicate(t *testing.T) {
	svc, _, _ := newUserFixture()
	_, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Username: "alice", Password: "password1", Email: "a@example.com",
	}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestPasswordsOverSeventyTwoBytesAreRejected(t *testing.T) {
	svc, users, _ := newUserFixture()
	long := strings.Repeat("é", 40)

	_, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Username: "bob", Password: long, Email: "bob@example.com",
	}, models.RequestMeta{})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.NotContains(t, users.users, "bob")

	err = svc.ChangePassword(context.Background(), aliceID, dto.ChangePasswordRequest{
		OldPassword: "secret1", NewPassword: long,
	}, models.RequestMeta{})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users.users["alice"].PasswordHash), []byte("secret1")))
}

func TestCreateUserValidation(t *testing.T) {
	svc, _, _ := newUserFixture()
	_, err := svc.Create(context.Background(), dto.CreateUserRequest{
		Username: "Bad Name", Password: "x", Email: "nope",
	}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestGetUser(t *testing.T) {
	svc, _, _ := newUserFixture()

	user, err := svc.Get(context.Background(), aliceID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = svc.Get(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.GetByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListUsersPagination(t *testing.T) {
	svc, users, _ := newUserFixture()
	list, pagination, err := svc.List(context.Background(), models.UserFilter{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, pagination)

	users.listErr = errors.New("db down")
	_, _, err = svc.List(context.Background(), models.UserFilter{})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestChangePassword(t *testing.T) {
	svc, users, audit := newUserFixture()
	ctx := context.Background()

	err := svc.ChangePassword(ctx, aliceID, dto.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newpass1"}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, aliceID, dto.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "secret1"}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	require.NoError(t, svc.ChangePassword(ctx, aliceID, dto.ChangePasswordRequest{OldPassword: "secret1", NewPassword: "newpass1"}, models.RequestMeta{}))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(users.users["alice"].PasswordHash), []byte("newpass1")))
	assert.Equal(t, []string{models.AuditActionPasswordChange}, audit.actions())
}

func TestDeleteUser(t *testing.T) {
	svc, users, audit := newUserFixture()
	ctx := context.Background()
	bob := newTestUser("1d3c7a40-5f0e-4b0a-8f7b-3c9a1e2d4b55", "bob", "password1")
	users.users["bob"] = bob

	err := svc.Delete(ctx, aliceID, models.RequestMeta{Actor: "alice"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	require.NoError(t, svc.Delete(ctx, bob.ID, models.RequestMeta{Actor: "alice"}))
	assert.NotContains(t, users.users, "bob")
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "deleted by alice", audit.entries[0].Detail)

	err = svc.Delete(ctx, bob.ID, models.RequestMeta{Actor: "alice"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
