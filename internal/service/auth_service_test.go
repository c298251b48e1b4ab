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
	appErrors "github.com/noah-isme/identity-api/pkg/errors"
)

type authFixture struct {
	clock  *fakeClock
	users  *stubUsers
	audit  *stubAudit
	events *stubEvents
	tokens *TokenService
	svc    *AuthService
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		clock:  newFakeClock(),
		users:  newStubUsers(adminUser()),
		audit:  &stubAudit{},
		events: &stubEvents{},
	}
	f.tokens = newTestTokenService(f.users, newStubRevocations(), f.clock)
	f.svc = NewAuthService(f.users, f.tokens, f.audit, nil, nil, f.events)
	return f
}

func TestLoginSuccess(t *testing.T) {
	f := newAuthFixture()
	resp, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "secret1", IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, resp.Authenticated)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, testEpoch, resp.IssuedAt)

	claims, err := f.tokens.Verify(context.Background(), resp.Token, VerifyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	require.Len(t, f.audit.entries, 1)
	assert.True(t, f.audit.entries[0].Success)
	assert.Equal(t, "10.0.0.1", f.audit.entries[0].IPAddress)
	assert.Equal(t, 1, f.events.count("login/success"))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture()

	_, unknownErr := f.svc.Login(context.Background(), models.LoginRequest{Username: "bob", Password: "secret1"})
	_, wrongErr := f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "nope"})

	require.ErrorIs(t, unknownErr, appErrors.ErrInvalidCredentials)
	require.ErrorIs(t, wrongErr, appErrors.ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	assert.Equal(t, 2, f.events.count("login/failure"))
	assert.Equal(t, []string{models.AuditActionLogin, models.AuditActionLogin}, f.audit.actions())
	assert.False(t, f.audit.entries[0].Success)
}

func TestLoginUnknownUserStillComparesPassword(t *testing.T) {
	f := newAuthFixture()
	var compared []string
	f.svc.missingUserCompare = func(password string) { compared = append(compared, password) }

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "bob", Password: "guess1"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	_, err = f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "nope"})
	require.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	assert.Equal(t, []string{"guess1"}, compared)
}

func TestCompareDummyHashUsesRealBcryptCost(t *testing.T) {
	compareDummyHash("anything")

	cost, err := bcrypt.Cost(dummyHash)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
}

func TestLoginInactiveUser(t *testing.T) {
	f := newAuthFixture()
	f.users.users["alice"].Active = false
	_, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestLoginValidationAndStorageErrors(t *testing.T) {
	f := newAuthFixture()
	_, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "alice"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	f.users.findErr = errors.New("db down")
	_, err = f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "secret1"})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestLoginSurvivesAuditFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newAuthFixture()
	f.audit.err = errors.New("audit table locked")
	f.svc = NewAuthService(f.users, f.tokens, f.audit, nil, zap.New(core), nil)

	_, err := f.svc.Login(context.Background(), models.LoginRequest{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("failed to record audit log").Len())
}

func TestIntrospectRefreshLogoutFlow(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	login, err := f.svc.Login(ctx, models.LoginRequest{Username: "alice", Password: "secret1"})
	require.NoError(t, err)

	intro, err := f.svc.Introspect(ctx, models.TokenRequest{Token: login.Token})
	require.NoError(t, err)
	assert.Equal(t, models.IntrospectResponse{Valid: true, Username: "alice"}, intro)

	refreshed, err := f.svc.Refresh(ctx, models.TokenRequest{Token: login.Token})
	require.NoError(t, err)
	assert.True(t, refreshed.Authenticated)

	intro, err = f.svc.Introspect(ctx, models.TokenRequest{Token: login.Token})
	require.NoError(t, err)
	assert.False(t, intro.Valid)

	require.NoError(t, f.svc.Logout(ctx, models.TokenRequest{Token: refreshed.Token}))
	err = f.svc.Logout(ctx, models.TokenRequest{Token: refreshed.Token})
	assert.ErrorIs(t, err, appErrors.ErrTokenInvalid)

	assert.Equal(t, []string{
		models.AuditActionLogin,
		models.AuditActionTokenRefresh,
		models.AuditActionLogout,
	}, f.audit.actions())
}

func TestTokenRequestsRequireToken(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	_, err := f.svc.Introspect(ctx, models.TokenRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = f.svc.Refresh(ctx, models.TokenRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.ErrorIs(t, f.svc.Logout(ctx, models.TokenRequest{}), appErrors.ErrValidation)
}
